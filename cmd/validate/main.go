// Command validate performs data integrity checks on the inputs of a map run:
// the boundary shapefile, a /states response, and optionally an /occurrences
// response. It verifies boundary geometry and names, reconciles API state
// names against boundary names, and checks the flattening invariants for
// every victim policy.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -shapefile data/mock/BR_UF_demo.shp \
//	  -states-json data/mock/states.json \
//	  -occurrences-json data/mock/occurrences.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/couchcryptid/crossfire-map/internal/adapter/shapefile"
	"github.com/couchcryptid/crossfire-map/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	shpPath := flag.String("shapefile", "", "path to the boundary shapefile")
	nameField := flag.String("name-field", shapefile.DefaultNameField, "boundary name attribute")
	statesJSON := flag.String("states-json", "", "path to a /states response body")
	occurrencesJSON := flag.String("occurrences-json", "", "optional path to an /occurrences response body")
	strategy := flag.String("strategy", "exact-first", "match strategy: exact-first or last-substring")
	flag.Parse()

	if *shpPath == "" || *statesJSON == "" {
		flag.Usage()
		os.Exit(1)
	}

	ms, err := domain.ParseMatchStrategy(*strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if code := run(*shpPath, *nameField, *statesJSON, *occurrencesJSON, ms); code != 0 {
		os.Exit(code)
	}
}

func run(shpPath, nameField, statesPath, occurrencesPath string, strategy domain.MatchStrategy) int {
	fmt.Println("=== Crossfire Map Input Validation ===")
	fmt.Println()

	boundaries, err := shapefile.NewSource(shpPath, nameField).Boundaries(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load boundaries: %v\n", err)
		return 1
	}

	regions, err := loadEnvelope[domain.Region](statesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load states JSON: %v\n", err)
		return 1
	}

	var incidents []domain.Incident
	if occurrencesPath != "" {
		incidents, err = loadEnvelope[domain.Incident](occurrencesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load occurrences JSON: %v\n", err)
			return 1
		}
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateBoundaries(boundaries),
		validateReconciliation(regions, boundaries, strategy),
	}
	if occurrencesPath != "" {
		phases = append(phases, validateFlattening(incidents, regions))
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d boundaries, %d states, %d occurrences\n", len(boundaries), len(regions), len(incidents))

	for _, p := range phases {
		if len(p.notes) == 0 && p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for _, n := range p.notes {
			fmt.Printf("  note: %s\n", n)
		}
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadEnvelope[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var body struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// ── Phase 1: Boundaries ──
// Validates that every boundary has a unique name and closed rings.

func validateBoundaries(boundaries []domain.Boundary) *phase {
	p := &phase{name: "Phase 1: Boundary dataset (shapefile)"}

	seen := map[string]int{}
	for i, b := range boundaries {
		if b.Name == "" {
			p.errorf("boundary %d: empty name", i)
		}
		if j, dup := seen[b.Name]; dup {
			p.errorf("boundary %d: name %q already used by boundary %d", i, b.Name, j)
		} else {
			seen[b.Name] = i
		}
		if len(b.Rings) == 0 {
			p.errorf("boundary %d (%s): no rings", i, b.Name)
		}
		for r, ring := range b.Rings {
			if len(ring) < 4 {
				p.errorf("boundary %d (%s) ring %d: %d points, need at least 4", i, b.Name, r, len(ring))
				continue
			}
			if ring[0] != ring[len(ring)-1] {
				p.errorf("boundary %d (%s) ring %d: not closed", i, b.Name, r)
			}
		}
	}
	return p
}

// ── Phase 2: Reconciliation ──
// Validates that every API state name maps onto a boundary.

func validateReconciliation(regions []domain.Region, boundaries []domain.Boundary, strategy domain.MatchStrategy) *phase {
	p := &phase{name: "Phase 2: Name reconciliation (" + strategy.String() + ")"}

	apiNames := make([]string, len(regions))
	for i, r := range regions {
		apiNames[i] = r.Name
	}
	names := make([]string, len(boundaries))
	for i, b := range boundaries {
		names[i] = b.Name
	}

	rec := domain.Reconcile(apiNames, names, strategy)
	for _, n := range rec.Unmapped {
		p.errorf("state %q matches no boundary", n)
	}

	ambiguous := make([]string, 0, len(rec.Ambiguous))
	for n := range rec.Ambiguous {
		ambiguous = append(ambiguous, n)
	}
	sort.Strings(ambiguous)
	for _, n := range ambiguous {
		chosen, _ := rec.Lookup(n)
		p.notef("state %q matches %v, chose %q", n, rec.Ambiguous[n], chosen)
	}

	// Two API names landing on one boundary sum their counts.
	byBoundary := map[string][]string{}
	for _, n := range apiNames {
		if b, ok := rec.Lookup(n); ok {
			byBoundary[b] = append(byBoundary[b], n)
		}
	}
	for _, b := range names {
		if len(byBoundary[b]) > 1 {
			p.notef("boundary %q receives %v", b, byBoundary[b])
		}
		if len(byBoundary[b]) == 0 {
			p.notef("boundary %q receives no state and will be drawn with count 0", b)
		}
	}
	return p
}

// ── Phase 3: Flattening ──
// Validates row counts and victim columns for every victim policy.

func validateFlattening(incidents []domain.Incident, regions []domain.Region) *phase {
	p := &phase{name: "Phase 3: Flattening (all victim policies)"}

	known := map[string]bool{}
	for _, r := range regions {
		known[r.ID] = true
	}
	expanded := 0
	for i := range incidents {
		if !known[incidents[i].State.ID] {
			p.errorf("occurrence %s: state id %q not in states response", incidents[i].ID, incidents[i].State.ID)
		}
		expanded += max(1, len(incidents[i].Victims))
	}

	for _, policy := range []domain.VictimPolicy{domain.VictimLast, domain.VictimFirst, domain.VictimExpand} {
		rows := domain.Flatten(incidents, policy)
		want := len(incidents)
		if policy == domain.VictimExpand {
			want = expanded
		}
		if len(rows) != want {
			p.errorf("%s: expected %d rows, got %d", policy, want, len(rows))
			continue
		}
		checkRows(p, policy, incidents, rows)
	}
	return p
}

func checkRows(p *phase, policy domain.VictimPolicy, incidents []domain.Incident, rows []domain.FlatIncident) {
	byID := make(map[string]*domain.Incident, len(incidents))
	for i := range incidents {
		byID[incidents[i].ID] = &incidents[i]
	}

	for i := range rows {
		row := &rows[i]
		inc, ok := byID[row.ID]
		if !ok {
			p.errorf("%s row %d: unknown occurrence %q", policy, i, row.ID)
			continue
		}
		if row.VictimsCount != len(inc.Victims) {
			p.errorf("%s row %d (%s): victims_count=%d, occurrence has %d", policy, i, row.ID, row.VictimsCount, len(inc.Victims))
		}
		if len(inc.Victims) == 0 && row.VictimID != nil {
			p.errorf("%s row %d (%s): victim columns set on occurrence without victims", policy, i, row.ID)
		}
		if row.StateName != inc.State.Name {
			p.errorf("%s row %d (%s): state_name=%q, occurrence has %q", policy, i, row.ID, row.StateName, inc.State.Name)
		}
		if (row.NeighborhoodID == nil) != (inc.Neighborhood == nil) {
			p.errorf("%s row %d (%s): neighborhood presence mismatch", policy, i, row.ID)
		}
	}
}
