// Package shapefile loads region boundaries from an ESRI shapefile such as
// IBGE's BR_UF_2023.shp.
package shapefile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/crossfire-map/internal/domain"
	"github.com/jonas-p/go-shp"
)

// DefaultNameField is the IBGE attribute holding the state name.
const DefaultNameField = "NM_UF"

// Source reads polygon boundaries and their name attribute from a shapefile.
// The .dbf sidecar must sit next to the .shp file.
type Source struct {
	path      string
	nameField string
}

// NewSource creates a shapefile boundary source. An empty nameField selects
// DefaultNameField.
func NewSource(path, nameField string) *Source {
	if nameField == "" {
		nameField = DefaultNameField
	}
	return &Source{path: path, nameField: nameField}
}

// Boundaries reads every polygon record in file order. Non-polygon records
// are skipped.
func (s *Source) Boundaries(ctx context.Context) ([]domain.Boundary, error) {
	r, err := shp.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", s.path, err)
	}
	defer r.Close()

	field, err := fieldIndex(r.Fields(), s.nameField)
	if err != nil {
		return nil, err
	}

	var boundaries []domain.Boundary
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		boundaries = append(boundaries, domain.Boundary{
			Name:  strings.TrimSpace(r.ReadAttribute(n, field)),
			Rings: rings(poly),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile %s: %w", s.path, err)
	}
	if len(boundaries) == 0 {
		return nil, fmt.Errorf("shapefile %s has no polygon records", s.path)
	}

	return boundaries, nil
}

func fieldIndex(fields []shp.Field, name string) (int, error) {
	for i, f := range fields {
		if strings.EqualFold(strings.TrimSpace(f.String()), name) {
			return i, nil
		}
	}
	return 0, errors.New("shapefile has no attribute " + name)
}

// rings splits a polygon's flat point list into its parts.
func rings(p *shp.Polygon) [][]domain.Point {
	out := make([][]domain.Point, 0, len(p.Parts))
	for i, start := range p.Parts {
		end := len(p.Points)
		if i+1 < len(p.Parts) {
			end = int(p.Parts[i+1])
		}
		if int(start) >= end {
			continue
		}
		ring := make([]domain.Point, 0, end-int(start))
		for _, pt := range p.Points[start:end] {
			ring = append(ring, domain.Point{X: pt.X, Y: pt.Y})
		}
		out = append(out, ring)
	}
	return out
}
