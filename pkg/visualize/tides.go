package visualize

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/volatiletech/null/v8"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	labelFormat = "01/02 15:04"

	// Padding for ranges that would otherwise be a single value.
	minSpan    = 30 * time.Minute
	minHeight  = 1.0
	headroom   = 0.1
	lineWidth  = 2.0
	pointWidth = 4.0
)

// Tidal is a long lived chart. Its chart.Chart is kept between updates; only
// the series and ranges are rebuilt.
type Tidal struct {
	surface  *Surface
	datasets []string

	graph  chart.Chart
	axis   []time.Time
	values map[string][]null.Float64
}

func newTidal(s *Surface, datasets []string) *Tidal {
	img := &Tidal{
		surface:  s,
		datasets: append([]string(nil), datasets...),
		values:   make(map[string][]null.Float64, len(datasets)),
	}
	img.graph = chart.Chart{
		Width:  s.width,
		Height: s.height,
		Background: chart.Style{
			Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 16},
		},
		XAxis: chart.XAxis{
			ValueFormatter: img.formatTime,
		},
		YAxis: chart.YAxis{
			Name: "ft",
		},
	}
	return img
}

func (img *Tidal) SetAxis(axis []time.Time) {
	img.axis = axis
}

func (img *Tidal) SetDataset(name string, values []null.Float64) {
	img.values[name] = values
}

// Update renders the current axis and datasets and publishes the frame. With
// nothing present to draw the surface frame is cleared.
func (img *Tidal) Update() error {
	var series []chart.Series
	bounds := newExtent()
	for i, name := range img.datasets {
		for _, r := range runs(img.axis, img.values[name]) {
			bounds.add(r)
			series = append(series, r.series(name, chart.GetDefaultColor(i)))
		}
	}
	if len(series) == 0 {
		img.graph.Series = nil
		img.surface.publish(nil)
		return nil
	}

	img.graph.Series = series
	img.graph.XAxis.Range, img.graph.YAxis.Range = bounds.ranges()

	var buf bytes.Buffer
	if err := img.graph.Render(img.renderer(), &buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	img.surface.publish(buf.Bytes())
	return nil
}

func (img *Tidal) renderer() chart.RendererProvider {
	if img.surface.format == SVG {
		return chart.SVG
	}
	return chart.PNG
}

func (img *Tidal) formatTime(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	loc := time.Local
	if img.surface.norm != nil {
		loc = img.surface.norm.Location()
	}
	return chart.TimeFromFloat64(f).In(loc).Format(labelFormat)
}

// run is a stretch of consecutive present values.
type run struct {
	xs []time.Time
	ys []float64
}

// runs splits values into runs separated by absent markers, so a gap is a
// break in the line rather than a drop to zero.
func runs(axis []time.Time, values []null.Float64) []run {
	var result []run
	var cur run
	for i, t := range axis {
		if i >= len(values) || !values[i].Valid {
			if len(cur.xs) > 0 {
				result = append(result, cur)
				cur = run{}
			}
			continue
		}
		cur.xs = append(cur.xs, t)
		cur.ys = append(cur.ys, values[i].Float64)
	}
	if len(cur.xs) > 0 {
		result = append(result, cur)
	}
	return result
}

func (r run) series(name string, color drawing.Color) chart.Series {
	style := chart.Style{
		StrokeColor: color,
		StrokeWidth: lineWidth,
	}
	xs, ys := r.xs, r.ys
	if len(xs) == 1 {
		// go-chart needs two points; draw a lone sample as a dot.
		style = chart.Style{DotColor: color, DotWidth: pointWidth}
		xs = []time.Time{xs[0], xs[0].Add(time.Second)}
		ys = []float64{ys[0], ys[0]}
	}
	return chart.TimeSeries{
		Name:    name,
		Style:   style,
		XValues: xs,
		YValues: ys,
	}
}

type extent struct {
	first, last time.Time
	low, high   float64
}

func newExtent() *extent {
	return &extent{low: math.Inf(1), high: math.Inf(-1)}
}

func (e *extent) add(r run) {
	if e.first.IsZero() || r.xs[0].Before(e.first) {
		e.first = r.xs[0]
	}
	if end := r.xs[len(r.xs)-1]; end.After(e.last) {
		e.last = end
	}
	for _, y := range r.ys {
		e.low = math.Min(e.low, y)
		e.high = math.Max(e.high, y)
	}
}

func (e *extent) ranges() (x, y *chart.ContinuousRange) {
	first, last := e.first, e.last
	if last.Sub(first) < minSpan {
		mid := first.Add(last.Sub(first) / 2)
		first, last = mid.Add(-minSpan/2), mid.Add(minSpan/2)
	}
	x = &chart.ContinuousRange{
		Min: chart.TimeToFloat64(first),
		Max: chart.TimeToFloat64(last),
	}

	low, high := e.low, e.high
	if high-low < minHeight {
		mid := (high + low) / 2
		low, high = mid-minHeight/2, mid+minHeight/2
	}
	pad := (high - low) * headroom
	y = &chart.ContinuousRange{Min: low - pad, Max: high + pad}
	return x, y
}
