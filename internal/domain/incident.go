package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Region is a Brazilian state as listed by the reference-data endpoint.
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NamedRef is the {id, name} shape shared by embedded state, city and
// neighborhood objects.
type NamedRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Genre is the victim's declared gender as returned by the API.
type Genre struct {
	Name string `json:"name"`
}

// Victim is one entry of an occurrence's victim list.
type Victim struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Age   *int   `json:"age"`
	Genre *Genre `json:"genre"`
}

// Incident is a raw occurrence record as returned by the occurrences endpoint.
type Incident struct {
	ID             string     `json:"id"`
	DocumentNumber int64      `json:"documentNumber"`
	Address        string     `json:"address"`
	Latitude       Coordinate `json:"latitude"`
	Longitude      Coordinate `json:"longitude"`
	Date           string     `json:"date"`
	PoliceAction   bool       `json:"policeAction"`
	AgentPresence  bool       `json:"agentPresence"`
	State          NamedRef   `json:"state"`
	City           NamedRef   `json:"city"`
	Neighborhood   *NamedRef  `json:"neighborhood"`
	Victims        []Victim   `json:"victims"`
}

// Coordinate keeps a latitude or longitude exactly as the API sent it.
// The v2 API sends coordinates as strings; numbers are accepted too.
type Coordinate string

// UnmarshalJSON accepts a JSON string, number or null.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("parse coordinate: %w", err)
		}
		*c = Coordinate(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("parse coordinate: %w", err)
		}
		*c = Coordinate(n.String())
		return nil
	}
}

// FlatIncident is the single-level row derived from an Incident.
// Nil pointers mark absent values and are serialized as null.
type FlatIncident struct {
	ID               string     `json:"id"`
	DocumentNumber   int64      `json:"documentNumber"`
	Address          string     `json:"address"`
	Latitude         Coordinate `json:"latitude"`
	Longitude        Coordinate `json:"longitude"`
	Date             string     `json:"date"`
	PoliceAction     bool       `json:"policeAction"`
	AgentPresence    bool       `json:"agentPresence"`
	StateID          string     `json:"state_id"`
	StateName        string     `json:"state_name"`
	CityID           string     `json:"city_id"`
	CityName         string     `json:"city_name"`
	NeighborhoodID   *string    `json:"neighborhood_id"`
	NeighborhoodName *string    `json:"neighborhood_name"`
	VictimsCount     int        `json:"victims_count"`
	VictimID         *string    `json:"victim_id"`
	VictimType       *string    `json:"victim_type"`
	VictimAge        *int       `json:"victim_age"`
	VictimGenre      *string    `json:"victim_genre"`
}
