package domain

import "time"

// FetchStatus tags the outcome of a per-region occurrence request.
type FetchStatus string

const (
	FetchOK      FetchStatus = "ok"
	FetchSkipped FetchStatus = "skipped"
)

// RegionOutcome records what happened to one region's occurrence request.
// A skipped region contributes no incidents; StatusCode is 0 when the request
// failed before a response arrived.
type RegionOutcome struct {
	RegionID   string      `json:"region_id"`
	Status     FetchStatus `json:"status"`
	StatusCode int         `json:"status_code,omitempty"`
	Incidents  int         `json:"incidents"`
	Err        string      `json:"error,omitempty"`
}

// FetchReport is the concatenation of every successful region's incidents,
// in region order, plus one outcome per requested region.
type FetchReport struct {
	Incidents []Incident
	Outcomes  []RegionOutcome
}

// Succeeded returns the number of regions fetched with status 200.
func (r FetchReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == FetchOK {
			n++
		}
	}
	return n
}

// Skipped returns the outcomes of the regions that contributed nothing
// because their request failed.
func (r FetchReport) Skipped() []RegionOutcome {
	var out []RegionOutcome
	for _, o := range r.Outcomes {
		if o.Status == FetchSkipped {
			out = append(out, o)
		}
	}
	return out
}

// RunSummary describes a finished pipeline run.
type RunSummary struct {
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     time.Time           `json:"finished_at"`
	Regions        int                 `json:"regions"`
	RegionOutcomes []RegionOutcome     `json:"region_outcomes"`
	Incidents      int                 `json:"incidents"`
	Rows           int                 `json:"rows"`
	VictimPolicy   string              `json:"victim_policy"`
	MatchStrategy  string              `json:"match_strategy"`
	Counts         []StateCount        `json:"counts"`
	Mapping        map[string]string   `json:"mapping"`
	Unmapped       []string            `json:"unmapped"`
	Ambiguous      map[string][]string `json:"ambiguous"`
	MaxCount       int                 `json:"max_count"`
	Rendered       bool                `json:"rendered"`
}
