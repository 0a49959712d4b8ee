package render

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// orRd is the ColorBrewer 9-class OrRd sequential palette, light to dark.
var orRd = []string{
	"#fff7ec", "#fee8c8", "#fdd49e", "#fdbb84", "#fc8d59",
	"#ef6548", "#d7301f", "#b30000", "#7f0000",
}

// Scale maps values in [Min, Max] onto a sequential palette.
type Scale struct {
	Min   float64
	Max   float64
	stops []colorful.Color
}

// NewScale creates an OrRd scale over [vmin, vmax].
func NewScale(vmin, vmax float64) Scale {
	stops := make([]colorful.Color, len(orRd))
	for i, hex := range orRd {
		stops[i] = colorful.MustParseHex(hex)
	}
	return Scale{Min: vmin, Max: vmax, stops: stops}
}

// Color returns the hex colour for v. Values outside the range are clamped;
// a collapsed range (Max <= Min) maps everything to the lightest colour.
func (s Scale) Color(v float64) string {
	return s.At(s.position(v))
}

// At returns the hex colour at relative position t in [0, 1].
func (s Scale) At(t float64) string {
	t = math.Max(0, math.Min(1, t))
	seg := t * float64(len(s.stops)-1)
	i := int(math.Floor(seg))
	if i >= len(s.stops)-1 {
		return s.stops[len(s.stops)-1].Hex()
	}
	frac := seg - float64(i)
	if frac == 0 {
		return s.stops[i].Hex()
	}
	return s.stops[i].BlendLab(s.stops[i+1], frac).Clamped().Hex()
}

func (s Scale) position(v float64) float64 {
	if s.Max <= s.Min {
		return 0
	}
	return (v - s.Min) / (s.Max - s.Min)
}
