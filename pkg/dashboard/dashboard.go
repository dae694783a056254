// Package dashboard reacts to observer coordinates. It requests each metric
// for the coordinate, discards responses for coordinates that are no longer
// current, and keeps the tide chart and panels in sync with what arrived.
package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spencer-p/tidedash/pkg/align"
	"github.com/spencer-p/tidedash/pkg/lifecycle"
	"github.com/spencer-p/tidedash/pkg/metrics"
	"github.com/spencer-p/tidedash/pkg/timetricks"
	"github.com/spencer-p/tidedash/pkg/weather"
)

// Chart datasets.
const (
	TideDataset   = "Tide"
	LevelsDataset = "Water Levels"
)

const (
	defaultFetchTimeout = 10 * time.Second
	eventBuffer         = 32
)

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithFetchTimeout bounds each upstream request.
func WithFetchTimeout(d time.Duration) Option {
	return func(dash *Dashboard) { dash.fetchTimeout = d }
}

// WithRefreshInterval re-requests the current coordinate periodically. Zero
// disables refreshing.
func WithRefreshInterval(d time.Duration) Option {
	return func(dash *Dashboard) { dash.refresh = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(dash *Dashboard) { dash.now = now }
}

// Dashboard owns the chart lifecycle and the per-coordinate state. All of it
// is touched only by the goroutine in Run; other goroutines talk to it by
// posting events.
type Dashboard struct {
	log          *zap.Logger
	fetcher      Fetcher
	norm         *timetricks.Normalizer
	fetchTimeout time.Duration
	refresh      time.Duration
	now          func() time.Time

	events chan event
	done   chan struct{}

	// Loop state.
	seq         uint64
	coord       *Coordinate
	surface     lifecycle.Surface
	chart       *lifecycle.Manager
	aligned     *align.Result
	predictions StationSeries
	levels      StationSeries
	temps       StationSeries
	state       *Snapshot

	mu        sync.RWMutex
	published *Snapshot
}

type event interface{}

type coordinateEvent struct{ coord Coordinate }

type surfaceEvent struct{ surface lifecycle.Surface }

type releaseEvent struct{}

type resultEvent struct {
	seq    uint64
	metric Metric
	series StationSeries
	period weather.Period
	err    error
}

func New(log *zap.Logger, f Fetcher, n *timetricks.Normalizer, opts ...Option) *Dashboard {
	d := &Dashboard{
		log:          log,
		fetcher:      f,
		norm:         n,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		events:       make(chan event, eventBuffer),
		done:         make(chan struct{}),
		chart:        lifecycle.NewManager(log, n, TideDataset, LevelsDataset),
		state:        &Snapshot{Status: map[Metric]MetricStatus{}},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.publish()
	return d
}

// Run processes events until ctx is done. It must be called exactly once.
func (d *Dashboard) Run(ctx context.Context) error {
	defer close(d.done)

	var tick <-chan time.Time
	if d.refresh > 0 {
		ticker := time.NewTicker(d.refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.events:
			d.handle(ctx, ev)
		case <-tick:
			if d.coord != nil {
				d.log.Debug("refreshing", zap.Stringer("coordinate", d.coord))
				d.request(ctx, false)
			}
		}
	}
}

// SetCoordinate makes c the current coordinate and requests its data.
func (d *Dashboard) SetCoordinate(c Coordinate) {
	d.post(coordinateEvent{c})
}

// SurfaceAvailable binds the chart to s.
func (d *Dashboard) SurfaceAvailable(s lifecycle.Surface) {
	d.post(surfaceEvent{s})
}

// ReleaseSurface unbinds the chart from its surface.
func (d *Dashboard) ReleaseSurface() {
	d.post(releaseEvent{})
}

// Snapshot returns the last published snapshot. It must not be modified.
func (d *Dashboard) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.published
}

// post hands ev to the loop. Once Run has returned events are dropped.
func (d *Dashboard) post(ev event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

func (d *Dashboard) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case coordinateEvent:
		c := ev.coord
		d.coord = &c
		d.log.Info("coordinate changed", zap.Stringer("coordinate", c))
		d.request(ctx, true)

	case surfaceEvent:
		d.surface = ev.surface
		d.redraw()
		d.publish()

	case releaseEvent:
		d.chart.Release()
		d.surface = nil
		d.publish()

	case resultEvent:
		d.receive(ev)
	}
}

// request issues one fetch per metric for the current coordinate. A new
// coordinate also forgets everything known about the old one.
func (d *Dashboard) request(ctx context.Context, reset bool) {
	d.seq++
	c := *d.coord
	now := d.now()

	if reset {
		d.predictions, d.levels, d.temps = StationSeries{}, StationSeries{}, StationSeries{}
		d.state.Tide = TidePanel{}
		d.state.WaterTemperature = TemperaturePanel{}
		d.state.Weather = nil
		d.state.Chart = ChartData{}
		// Nothing drawn for the old coordinate may outlive it.
		d.realign()
		d.redraw()
	}
	d.state.Seq = d.seq
	d.state.Coordinate = &c
	d.state.Sun = sunPanel(c, d.norm.Location(), now)
	for _, m := range Metrics {
		d.state.Status[m] = MetricStatus{Loading: true}
		go d.fetch(ctx, d.seq, m, c)
	}
	d.publish()
}

// fetch runs off the loop. It only talks to the fetcher and posts the result.
func (d *Dashboard) fetch(ctx context.Context, seq uint64, m Metric, c Coordinate) {
	ctx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	res := resultEvent{seq: seq, metric: m}
	switch m {
	case Predictions:
		res.series, res.err = d.fetcher.Predictions(ctx, c)
	case WaterLevels:
		res.series, res.err = d.fetcher.WaterLevels(ctx, c)
	case WaterTemperature:
		res.series, res.err = d.fetcher.WaterTemperature(ctx, c)
	case Weather:
		res.period, res.err = d.fetcher.Weather(ctx, c)
	}
	metrics.ObserveUpstream(string(m), res.err)
	d.post(res)
}

func (d *Dashboard) receive(res resultEvent) {
	log := d.log.With(zap.String("metric", string(res.metric)), zap.Uint64("seq", res.seq))
	if res.seq != d.seq {
		metrics.StaleResponses.WithLabelValues(string(res.metric)).Inc()
		log.Debug("discarding stale response", zap.Uint64("current", d.seq))
		return
	}

	status := MetricStatus{}
	if res.err != nil {
		err := &FetchError{Metric: res.metric, Err: res.err}
		log.Warn("fetch failed", zap.Error(err))
		status.Error = err.Error()
		// A failed metric is empty, not left over from an earlier pass.
		res.series, res.period = StationSeries{}, weather.Period{}
	}
	d.state.Status[res.metric] = status

	now := d.now()
	switch res.metric {
	case Predictions, WaterLevels:
		if res.metric == Predictions {
			d.predictions = res.series
		} else {
			d.levels = res.series
		}
		d.state.Tide = tidePanel(d.norm, d.predictions, d.levels, now)
		d.realign()
		d.redraw()
	case WaterTemperature:
		d.temps = res.series
		d.state.WaterTemperature = temperaturePanel(d.norm, d.temps, now)
	case Weather:
		d.state.Weather = nil
		if res.err == nil {
			p := res.period
			d.state.Weather = &p
		}
	}
	log.Debug("received")
	d.publish()
}

// realign merges the tide series onto one axis. A series that has not arrived
// is aligned as empty.
func (d *Dashboard) realign() {
	res, err := align.Align(d.norm, []align.Series{
		d.predictions.Series(TideDataset),
		d.levels.Series(LevelsDataset),
	})
	if err != nil {
		d.log.Error("failed to align series", zap.Error(err))
		return
	}
	if res.Dropped > 0 {
		metrics.DroppedSamples.Add(float64(res.Dropped))
		d.log.Warn("dropped malformed samples", zap.Int("count", res.Dropped))
	}
	d.aligned = res

	labels := make([]string, len(res.Axis))
	for i, k := range res.Axis {
		labels[i] = d.norm.Label(k)
	}
	datasets := make([]Dataset, len(res.Names))
	for i, name := range res.Names {
		datasets[i] = Dataset{Name: name, Values: res.Values[name]}
	}
	d.state.Chart.Labels = labels
	d.state.Chart.Datasets = datasets
}

// redraw makes sure the bound surface has its instance, then pushes the last
// aligned pass into it.
func (d *Dashboard) redraw() {
	if err := d.chart.EnsureInstance(d.surface); err != nil {
		d.log.Warn("failed to create chart", zap.Error(err))
		return
	}
	if d.aligned == nil {
		return
	}
	if err := d.chart.ApplyAligned(d.aligned.Axis, d.aligned.Values); err != nil {
		d.log.Error("failed to update chart", zap.Error(err))
	}
}

// publish swaps in a copy of the loop's snapshot.
func (d *Dashboard) publish() {
	d.state.Updated = d.now()
	d.state.Chart.State = d.chart.State().String()
	d.state.Chart.Instances = d.chart.Created()
	s := d.state.clone()

	d.mu.Lock()
	d.published = s
	d.mu.Unlock()
}
