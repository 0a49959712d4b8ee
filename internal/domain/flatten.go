package domain

import (
	"fmt"
	"strings"
)

// VictimPolicy selects which victims populate the victim columns of a flat row.
type VictimPolicy int

const (
	// VictimLast keeps the last victim of the list. Earlier victims' details
	// are dropped; only VictimsCount accounts for them.
	VictimLast VictimPolicy = iota
	// VictimFirst keeps the first victim of the list.
	VictimFirst
	// VictimExpand emits one row per victim.
	VictimExpand
)

func (p VictimPolicy) String() string {
	switch p {
	case VictimLast:
		return "last"
	case VictimFirst:
		return "first"
	case VictimExpand:
		return "expand"
	default:
		return fmt.Sprintf("VictimPolicy(%d)", int(p))
	}
}

// ParseVictimPolicy converts "last", "first" or "expand" to a VictimPolicy.
func ParseVictimPolicy(s string) (VictimPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "last":
		return VictimLast, nil
	case "first":
		return VictimFirst, nil
	case "expand":
		return VictimExpand, nil
	default:
		return 0, fmt.Errorf("unknown victim policy %q", s)
	}
}

// Flatten converts raw incidents into flat rows in input order.
// Every row carries VictimsCount equal to the length of its incident's victim
// list regardless of policy. An incident without victims yields one row with
// nil victim columns under every policy.
func Flatten(incidents []Incident, policy VictimPolicy) []FlatIncident {
	rows := make([]FlatIncident, 0, len(incidents))
	for _, inc := range incidents {
		base := flattenIncident(inc)

		if len(inc.Victims) == 0 {
			rows = append(rows, base)
			continue
		}

		switch policy {
		case VictimFirst:
			rows = append(rows, withVictim(base, inc.Victims[0]))
		case VictimExpand:
			for _, v := range inc.Victims {
				rows = append(rows, withVictim(base, v))
			}
		default:
			rows = append(rows, withVictim(base, inc.Victims[len(inc.Victims)-1]))
		}
	}
	return rows
}

// flattenIncident copies the scalar and embedded fields, leaving victim
// columns nil.
func flattenIncident(inc Incident) FlatIncident {
	row := FlatIncident{
		ID:             inc.ID,
		DocumentNumber: inc.DocumentNumber,
		Address:        inc.Address,
		Latitude:       inc.Latitude,
		Longitude:      inc.Longitude,
		Date:           inc.Date,
		PoliceAction:   inc.PoliceAction,
		AgentPresence:  inc.AgentPresence,
		StateID:        inc.State.ID,
		StateName:      inc.State.Name,
		CityID:         inc.City.ID,
		CityName:       inc.City.Name,
		VictimsCount:   len(inc.Victims),
	}
	if inc.Neighborhood != nil {
		row.NeighborhoodID = ptr(inc.Neighborhood.ID)
		row.NeighborhoodName = ptr(inc.Neighborhood.Name)
	}
	return row
}

func withVictim(row FlatIncident, v Victim) FlatIncident {
	row.VictimID = ptr(v.ID)
	row.VictimType = ptr(v.Type)
	if v.Age != nil {
		row.VictimAge = ptr(*v.Age)
	}
	if v.Genre != nil {
		row.VictimGenre = ptr(v.Genre.Name)
	}
	return row
}

func ptr[T any](v T) *T {
	return &v
}
