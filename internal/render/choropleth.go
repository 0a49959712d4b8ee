// Package render draws region counts as an SVG choropleth map.
package render

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/couchcryptid/crossfire-map/internal/domain"
)

const (
	DefaultTitle       = "Mapa de Ocorrências no Brasil"
	DefaultLegendLabel = "Número de Ocorrências por Estado"
)

// Options controls the figure layout and labels.
type Options struct {
	Title       string
	LegendLabel string
	Width       int // total figure width in pixels
	EdgeColor   string
	EdgeWidth   float64
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.LegendLabel == "" {
		o.LegendLabel = DefaultLegendLabel
	}
	if o.Width <= 0 {
		o.Width = 900
	}
	if o.EdgeColor == "" {
		o.EdgeColor = "#cccccc"
	}
	if o.EdgeWidth <= 0 {
		o.EdgeWidth = 0.8
	}
	return o
}

const (
	margin       = 20
	titleHeight  = 50
	legendHeight = 90
	legendBarH   = 16
	legendTicks  = 5
)

// Choropleth writes an SVG map of regions shaded by Count. The colour scale
// runs from 0 to the highest count. No axes or gridlines are drawn.
func Choropleth(w io.Writer, regions []domain.RegionCount, opts Options) error {
	opts = opts.withDefaults()
	ew := &errWriter{w: w}

	bounds := boundsOf(regions)
	mapW := float64(opts.Width - 2*margin)
	mapH := mapW
	if bounds.width() > 0 {
		mapH = mapW * bounds.height() / bounds.width()
	}
	proj := projection{bounds: bounds, x0: margin, y0: titleHeight, w: mapW, h: mapH}
	height := titleHeight + int(math.Ceil(mapH)) + legendHeight

	scale := NewScale(0, float64(domain.MaxCount(regions)))

	canvas := svg.New(ew)
	canvas.Start(opts.Width, height)
	canvas.Title(opts.Title)
	canvas.Rect(0, 0, opts.Width, height, "fill:#ffffff")
	canvas.Text(opts.Width/2, titleHeight/2+8, opts.Title,
		"text-anchor:middle;font-family:sans-serif;font-size:20px")

	canvas.Gid("regions")
	for _, r := range regions {
		d := proj.pathData(r.Boundary.Rings)
		if d == "" {
			continue
		}
		style := fmt.Sprintf("fill:%s;stroke:%s;stroke-width:%s;fill-rule:evenodd",
			scale.Color(float64(r.Count)), opts.EdgeColor, formatFloat(opts.EdgeWidth))
		canvas.Group()
		canvas.Title(fmt.Sprintf("%s: %d", r.Boundary.Name, r.Count))
		canvas.Path(d, style)
		canvas.Gend()
	}
	canvas.Gend()

	drawLegend(canvas, scale, opts, titleHeight+int(math.Ceil(mapH)))
	canvas.End()

	return ew.err
}

func drawLegend(canvas *svg.SVG, scale Scale, opts Options, top int) {
	barX := opts.Width / 4
	barW := opts.Width / 2
	barY := top + 20

	stops := make([]svg.Offcolor, len(orRd))
	for i := range stops {
		t := float64(i) / float64(len(stops)-1)
		stops[i] = svg.Offcolor{Offset: uint8(math.Round(t * 100)), Color: scale.At(t), Opacity: 1}
	}
	canvas.Def()
	canvas.LinearGradient("legend-scale", 0, 0, 100, 0, stops)
	canvas.DefEnd()

	canvas.Gid("legend")
	canvas.Rect(barX, barY, barW, legendBarH, "fill:url(#legend-scale);stroke:#999999;stroke-width:0.5")
	for i := 0; i < legendTicks; i++ {
		t := float64(i) / float64(legendTicks-1)
		x := barX + int(math.Round(t*float64(barW)))
		value := scale.Min + t*(scale.Max-scale.Min)
		canvas.Line(x, barY+legendBarH, x, barY+legendBarH+4, "stroke:#333333;stroke-width:1")
		canvas.Text(x, barY+legendBarH+16, formatTick(value),
			"text-anchor:middle;font-family:sans-serif;font-size:11px")
	}
	canvas.Text(opts.Width/2, barY+legendBarH+40, opts.LegendLabel,
		"text-anchor:middle;font-family:sans-serif;font-size:13px")
	canvas.Gend()
}

type bbox struct {
	minX, minY, maxX, maxY float64
}

func (b bbox) width() float64  { return b.maxX - b.minX }
func (b bbox) height() float64 { return b.maxY - b.minY }

func boundsOf(regions []domain.RegionCount) bbox {
	b := bbox{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	for _, r := range regions {
		for _, ring := range r.Boundary.Rings {
			for _, p := range ring {
				b.minX = math.Min(b.minX, p.X)
				b.minY = math.Min(b.minY, p.Y)
				b.maxX = math.Max(b.maxX, p.X)
				b.maxY = math.Max(b.maxY, p.Y)
			}
		}
	}
	if math.IsInf(b.minX, 1) {
		return bbox{}
	}
	return b
}

// projection is an equirectangular fit of bounds into the map area, with
// north up.
type projection struct {
	bounds bbox
	x0, y0 float64
	w, h   float64
}

func (p projection) point(pt domain.Point) (float64, float64) {
	if p.bounds.width() == 0 || p.bounds.height() == 0 {
		return p.x0, p.y0
	}
	x := p.x0 + (pt.X-p.bounds.minX)/p.bounds.width()*p.w
	y := p.y0 + (p.bounds.maxY-pt.Y)/p.bounds.height()*p.h
	return x, y
}

func (p projection) pathData(rings [][]domain.Point) string {
	var sb strings.Builder
	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		for i, pt := range ring {
			x, y := p.point(pt)
			if i == 0 {
				sb.WriteString("M")
			} else {
				sb.WriteString(" L")
			}
			sb.WriteString(formatFloat(x))
			sb.WriteByte(' ')
			sb.WriteString(formatFloat(y))
		}
		sb.WriteString(" Z ")
	}
	return strings.TrimSpace(sb.String())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatTick(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// errWriter keeps the first write error so svgo's fire-and-forget calls
// can be checked once at the end.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
