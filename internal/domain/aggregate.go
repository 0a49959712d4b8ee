package domain

// StateCount is the number of incidents sharing a state name.
type StateCount struct {
	StateName string `json:"state_name"`
	Count     int    `json:"count"`
}

// Point is a vertex in the boundary dataset's coordinate system (X = lon, Y = lat).
type Point struct {
	X float64
	Y float64
}

// Boundary is one region of the boundary dataset: its name attribute and the
// rings of its polygon, outer and inner alike.
type Boundary struct {
	Name  string
	Rings [][]Point
}

// RegionCount is a boundary with the incident count joined onto it.
// MatchedName is the API state name that contributed the count, nil when no
// API name mapped onto this boundary.
type RegionCount struct {
	Boundary    Boundary
	MatchedName *string
	Count       int
}

// CountByState counts incidents per StateName. Rows sharing an incident ID
// count once, so the result does not depend on the victim policy. Rows with
// an empty ID count individually. The result is ordered by first appearance
// of each name.
func CountByState(rows []FlatIncident) []StateCount {
	index := make(map[string]int)
	seen := make(map[[2]string]struct{}, len(rows))
	var counts []StateCount
	for _, r := range rows {
		if r.ID != "" {
			key := [2]string{r.StateName, r.ID}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		i, ok := index[r.StateName]
		if !ok {
			i = len(counts)
			index[r.StateName] = i
			counts = append(counts, StateCount{StateName: r.StateName})
		}
		counts[i].Count++
	}
	return counts
}

// JoinCounts left-joins boundaries with counts through the reconciled name
// mapping. Boundaries no count maps onto get Count 0. Counts whose state name
// is unmapped are dropped. When several API names map onto one boundary their
// counts are summed and MatchedName holds the first of them.
func JoinCounts(boundaries []Boundary, counts []StateCount, rec Reconciliation) []RegionCount {
	byBoundary := make(map[string]int)
	matched := make(map[string]string)
	for _, c := range counts {
		name, ok := rec.Lookup(c.StateName)
		if !ok {
			continue
		}
		byBoundary[name] += c.Count
		if _, seen := matched[name]; !seen {
			matched[name] = c.StateName
		}
	}

	out := make([]RegionCount, len(boundaries))
	for i, b := range boundaries {
		out[i] = RegionCount{Boundary: b, Count: byBoundary[b.Name]}
		if api, ok := matched[b.Name]; ok {
			out[i].MatchedName = ptr(api)
		}
	}
	return out
}

// MaxCount returns the largest count among regions, 0 for none.
func MaxCount(regions []RegionCount) int {
	m := 0
	for _, r := range regions {
		if r.Count > m {
			m = r.Count
		}
	}
	return m
}
