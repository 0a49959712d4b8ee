package domain

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName uppercases a place name and strips its diacritics,
// e.g. "São Paulo" -> "SAO PAULO". It is idempotent.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	return strings.ToUpper(strings.TrimSpace(stripped))
}

// MatchStrategy decides which boundary name wins when a normalized API name is
// contained in more than one normalized boundary name.
type MatchStrategy int

const (
	// MatchExactFirst prefers an exact normalized match, then the shortest
	// containing boundary name, then the lexicographically smallest.
	MatchExactFirst MatchStrategy = iota
	// MatchLastSubstring keeps the last containing boundary name in iteration
	// order. "PARA" against [PARA, PARAIBA, PARANA] maps to PARANA.
	MatchLastSubstring
)

func (s MatchStrategy) String() string {
	switch s {
	case MatchExactFirst:
		return "exact-first"
	case MatchLastSubstring:
		return "last-substring"
	default:
		return fmt.Sprintf("MatchStrategy(%d)", int(s))
	}
}

// ParseMatchStrategy converts "exact-first" or "last-substring" to a MatchStrategy.
func ParseMatchStrategy(s string) (MatchStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact-first":
		return MatchExactFirst, nil
	case "last-substring":
		return MatchLastSubstring, nil
	default:
		return 0, fmt.Errorf("unknown match strategy %q", s)
	}
}

// Reconciliation is the outcome of matching API state names to boundary names.
type Reconciliation struct {
	// Mapping is keyed by the normalized API name.
	Mapping map[string]string
	// Unmapped lists the API names (as received) with no containing boundary name.
	Unmapped []string
	// Ambiguous lists API names with more than one candidate, keyed by the
	// name as received, with candidates in iteration order.
	Ambiguous map[string][]string
}

// Lookup returns the boundary name an API name was mapped to.
func (r Reconciliation) Lookup(apiName string) (string, bool) {
	name, ok := r.Mapping[NormalizeName(apiName)]
	return name, ok
}

// Reconcile matches every distinct API name against every distinct boundary
// name. A pair matches when the normalized API name is a substring of the
// normalized boundary name. Names are iterated in order of first appearance.
func Reconcile(apiNames, boundaryNames []string, strategy MatchStrategy) Reconciliation {
	apiNames = distinct(apiNames)
	boundaryNames = distinct(boundaryNames)

	normBoundary := make([]string, len(boundaryNames))
	for i, b := range boundaryNames {
		normBoundary[i] = NormalizeName(b)
	}

	rec := Reconciliation{
		Mapping:   make(map[string]string, len(apiNames)),
		Ambiguous: make(map[string][]string),
	}

	for _, apiName := range apiNames {
		key := NormalizeName(apiName)
		var candidates []int
		for i, nb := range normBoundary {
			if strings.Contains(nb, key) {
				candidates = append(candidates, i)
			}
		}

		if len(candidates) == 0 {
			rec.Unmapped = append(rec.Unmapped, apiName)
			continue
		}
		if len(candidates) > 1 {
			names := make([]string, len(candidates))
			for j, i := range candidates {
				names[j] = boundaryNames[i]
			}
			rec.Ambiguous[apiName] = names
		}

		var chosen int
		switch strategy {
		case MatchLastSubstring:
			chosen = candidates[len(candidates)-1]
		default:
			chosen = pickExactFirst(key, candidates, normBoundary)
		}
		rec.Mapping[key] = boundaryNames[chosen]
	}

	return rec
}

func pickExactFirst(key string, candidates []int, normBoundary []string) int {
	ordered := append([]int(nil), candidates...)
	sort.SliceStable(ordered, func(a, b int) bool {
		na, nb := normBoundary[ordered[a]], normBoundary[ordered[b]]
		ea, eb := na == key, nb == key
		if ea != eb {
			return ea
		}
		if len(na) != len(nb) {
			return len(na) < len(nb)
		}
		return na < nb
	})
	return ordered[0]
}

func distinct(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
