package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/crossfire-map/internal/domain"
	"github.com/couchcryptid/crossfire-map/internal/observability"
	"github.com/couchcryptid/crossfire-map/internal/render"
)

// API is the incident data source: login, reference data and per-region
// occurrences.
type API interface {
	Login(ctx context.Context, email, password string) (string, error)
	States(ctx context.Context, token string) ([]domain.Region, error)
	Occurrences(ctx context.Context, token string, regionIDs []string) domain.FetchReport
}

// BoundarySource provides the region geometries the map is drawn from.
type BoundarySource interface {
	Boundaries(ctx context.Context) ([]domain.Boundary, error)
}

// Loader publishes the run's flat rows and joined counts. Optional.
type Loader interface {
	LoadRows(ctx context.Context, rows []domain.FlatIncident) error
	LoadCounts(ctx context.Context, regions []domain.RegionCount) error
}

// Settings are the per-run choices passed through the pipeline.
type Settings struct {
	Email         string
	Password      string
	VictimPolicy  domain.VictimPolicy
	MatchStrategy domain.MatchStrategy
	Render        render.Options
}

// Result is the output of one run. SVG is nil when there was nothing to draw.
type Result struct {
	Summary domain.RunSummary
	Rows    []domain.FlatIncident
	Regions []domain.RegionCount
	SVG     []byte
}

// Pipeline runs auth, fetch, flatten, reconcile, join and render in sequence.
type Pipeline struct {
	api        API
	boundaries BoundarySource
	loader     Loader
	settings   Settings
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu   sync.RWMutex
	last *Result
}

// New creates a Pipeline. loader may be nil to skip publication.
func New(api API, boundaries BoundarySource, loader Loader, settings Settings, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		api:        api,
		boundaries: boundaries,
		loader:     loader,
		settings:   settings,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once a run has rendered a map.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if _, ok := p.Map(); !ok {
		return errors.New("no map has been rendered yet")
	}
	return nil
}

// Map returns the last rendered SVG.
func (p *Pipeline) Map() ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil || p.last.SVG == nil {
		return nil, false
	}
	return p.last.SVG, true
}

// Summary returns the summary of the last completed run.
func (p *Pipeline) Summary() (domain.RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return domain.RunSummary{}, false
	}
	return p.last.Summary, true
}

// Run executes one full pass. Authentication and reference-data failures
// abort the run before anything else is requested. Regions whose occurrences
// could not be fetched and state names that match no boundary are reported
// in the summary, not returned as errors.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := domain.Now()
	p.metrics.LastRunSuccess.Set(0)

	summary := domain.RunSummary{
		StartedAt:     start,
		VictimPolicy:  p.settings.VictimPolicy.String(),
		MatchStrategy: p.settings.MatchStrategy.String(),
	}

	token, err := p.api.Login(ctx, p.settings.Email, p.settings.Password)
	if err != nil {
		return Result{}, fmt.Errorf("login: %w", err)
	}
	p.logger.Info("authenticated")

	regions, err := p.api.States(ctx, token)
	if err != nil {
		return Result{}, fmt.Errorf("fetch states: %w", err)
	}
	summary.Regions = len(regions)
	p.logger.Info("fetched states", "count", len(regions))

	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}

	report := p.api.Occurrences(ctx, token, ids)
	summary.RegionOutcomes = report.Outcomes
	summary.Incidents = len(report.Incidents)
	p.metrics.IncidentsFetched.Add(float64(len(report.Incidents)))
	p.logger.Info("fetched occurrences",
		"incidents", len(report.Incidents),
		"regions_ok", report.Succeeded(),
		"regions_skipped", len(report.Skipped()),
	)

	if len(report.Incidents) == 0 {
		p.logger.Warn("no occurrences fetched, nothing to draw")
		return p.finish(Result{Summary: summary}, start), nil
	}

	rows := domain.Flatten(report.Incidents, p.settings.VictimPolicy)
	summary.Rows = len(rows)
	p.metrics.RowsFlattened.Add(float64(len(rows)))

	boundaries, err := p.boundaries.Boundaries(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load boundaries: %w", err)
	}

	rec := domain.Reconcile(stateNames(rows), boundaryNames(boundaries), p.settings.MatchStrategy)
	summary.Mapping = rec.Mapping
	summary.Unmapped = rec.Unmapped
	summary.Ambiguous = rec.Ambiguous
	p.metrics.UnmappedNames.Set(float64(len(rec.Unmapped)))
	p.metrics.AmbiguousNames.Set(float64(len(rec.Ambiguous)))
	for _, name := range rec.Unmapped {
		p.logger.Warn("state name has no boundary match", "state_name", name)
	}
	for name, candidates := range rec.Ambiguous {
		p.logger.Info("state name matched several boundaries",
			"state_name", name,
			"candidates", candidates,
			"chosen", rec.Mapping[domain.NormalizeName(name)],
			"strategy", p.settings.MatchStrategy.String(),
		)
	}

	counts := domain.CountByState(rows)
	joined := domain.JoinCounts(boundaries, counts, rec)
	summary.Counts = counts
	summary.MaxCount = domain.MaxCount(joined)
	p.metrics.MaxStateCount.Set(float64(summary.MaxCount))

	var buf bytes.Buffer
	if err := render.Choropleth(&buf, joined, p.settings.Render); err != nil {
		return Result{}, fmt.Errorf("render map: %w", err)
	}
	summary.Rendered = true
	p.metrics.LastRunSuccess.Set(1)

	p.publish(ctx, rows, joined)

	return p.finish(Result{Summary: summary, Rows: rows, Regions: joined, SVG: buf.Bytes()}, start), nil
}

// publish hands rows and counts to the loader. Failures are logged only.
func (p *Pipeline) publish(ctx context.Context, rows []domain.FlatIncident, regions []domain.RegionCount) {
	if p.loader == nil {
		return
	}
	if err := p.loader.LoadRows(ctx, rows); err != nil {
		p.logger.Error("publish rows failed", "error", err, "rows", len(rows))
	}
	if err := p.loader.LoadCounts(ctx, regions); err != nil {
		p.logger.Error("publish counts failed", "error", err, "regions", len(regions))
	}
}

func (p *Pipeline) finish(res Result, start time.Time) Result {
	res.Summary.FinishedAt = domain.Now()
	p.metrics.RunDuration.Observe(res.Summary.FinishedAt.Sub(start).Seconds())

	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()

	p.logger.Info("run finished",
		"rows", res.Summary.Rows,
		"max_count", res.Summary.MaxCount,
		"unmapped", len(res.Summary.Unmapped),
		"rendered", res.Summary.Rendered,
	)
	return res
}

func stateNames(rows []domain.FlatIncident) []string {
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.StateName
	}
	return names
}

func boundaryNames(boundaries []domain.Boundary) []string {
	names := make([]string, len(boundaries))
	for i, b := range boundaries {
		names[i] = b.Name
	}
	return names
}
