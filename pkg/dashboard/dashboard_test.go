package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"github.com/spencer-p/tidedash/pkg/align"
	"github.com/spencer-p/tidedash/pkg/lifecycle"
	"github.com/spencer-p/tidedash/pkg/meta"
	"github.com/spencer-p/tidedash/pkg/metrics"
	"github.com/spencer-p/tidedash/pkg/noaa"
	"github.com/spencer-p/tidedash/pkg/timetricks"
	"github.com/spencer-p/tidedash/pkg/visualize"
	"github.com/spencer-p/tidedash/pkg/weather"
)

var (
	now       = time.Date(2025, time.March, 1, 12, 30, 0, 0, time.UTC)
	santaCruz = Coordinate{Lat: 36.9741, Long: -122.0308}
	monterey  = Coordinate{Lat: 36.6088, Long: -121.8906}
)

type gateKey struct {
	metric Metric
	lat    float64
}

// fakeFetcher answers from canned readings. A request with a gate waits until
// the gate is closed, and one with a failure returns its error. Both must be
// set up before the dashboard runs.
type fakeFetcher struct {
	gates    map[gateKey]chan struct{}
	failures map[gateKey]error
}

func (f *fakeFetcher) fail(m Metric, c Coordinate, err error) *fakeFetcher {
	if f.failures == nil {
		f.failures = map[gateKey]error{}
	}
	f.failures[gateKey{m, c.Lat}] = err
	return f
}

func (f *fakeFetcher) gate(m Metric, c Coordinate) chan struct{} {
	if f.gates == nil {
		f.gates = map[gateKey]chan struct{}{}
	}
	g := make(chan struct{})
	f.gates[gateKey{m, c.Lat}] = g
	return g
}

func (f *fakeFetcher) wait(ctx context.Context, m Metric, c Coordinate) error {
	if g, ok := f.gates[gateKey{m, c.Lat}]; ok {
		select {
		case <-g:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.failures[gateKey{m, c.Lat}]
}

func station(c Coordinate) noaa.Station {
	return noaa.Station{ID: fmt.Sprintf("st-%.2f", c.Lat), Name: "Test", Lat: c.Lat, Lng: c.Long}
}

func (f *fakeFetcher) Predictions(ctx context.Context, c Coordinate) (StationSeries, error) {
	if err := f.wait(ctx, Predictions, c); err != nil {
		return StationSeries{}, err
	}
	return StationSeries{Station: station(c), Readings: noaa.Readings{
		{T: "2025-03-01 04:00", V: noaa.NewValue(0.5), Type: noaa.LowTide},
		{T: "2025-03-01 10:00", V: noaa.NewValue(4.5), Type: noaa.HighTide},
		{T: "2025-03-01 16:00", V: noaa.NewValue(0.2), Type: noaa.LowTide},
	}}, nil
}

func (f *fakeFetcher) WaterLevels(ctx context.Context, c Coordinate) (StationSeries, error) {
	if err := f.wait(ctx, WaterLevels, c); err != nil {
		return StationSeries{}, err
	}
	return StationSeries{Station: station(c), Readings: noaa.Readings{
		{T: "2025-03-01 12:00", V: noaa.NewValue(3.9)},
		{T: "2025-03-01 12:06", V: noaa.NewValue(3.8)},
		{T: "2025-03-01 12:12"},
	}}, nil
}

func (f *fakeFetcher) WaterTemperature(ctx context.Context, c Coordinate) (StationSeries, error) {
	if err := f.wait(ctx, WaterTemperature, c); err != nil {
		return StationSeries{}, err
	}
	// Every six minutes from 11:30 to 12:24, warming 0.2 degrees each.
	var rs noaa.Readings
	at := time.Date(2025, time.March, 1, 11, 30, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rs = append(rs, noaa.Reading{
			T: at.Add(time.Duration(i) * 6 * time.Minute).Format("2006-01-02 15:04"),
			V: noaa.NewValue(55 + 0.2*float64(i)),
		})
	}
	return StationSeries{Station: station(c), Readings: rs}, nil
}

func (f *fakeFetcher) Weather(ctx context.Context, c Coordinate) (weather.Period, error) {
	if err := f.wait(ctx, Weather, c); err != nil {
		return weather.Period{}, err
	}
	return weather.Period{Temperature: 58, TemperatureUnit: "F", ShortForecast: "Sunny"}, nil
}

// stubSurface counts instances and their redraws.
type stubSurface struct {
	mu      sync.Mutex
	created int
	updates int
}

func (s *stubSurface) NewInstance(datasets []string) (lifecycle.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return &stubInstance{s}, nil
}

func (s *stubSurface) counts() (created, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, s.updates
}

type stubInstance struct{ s *stubSurface }

func (i *stubInstance) SetAxis([]time.Time)               {}
func (i *stubInstance) SetDataset(string, []null.Float64) {}
func (i *stubInstance) Update() error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	i.s.updates++
	return nil
}

func start(t *testing.T, f Fetcher) *Dashboard {
	t.Helper()
	d := New(zap.NewNop(), f, timetricks.NewNormalizer(time.UTC),
		WithClock(func() time.Time { return now }),
		WithFetchTimeout(5*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)
	return d
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func settled(d *Dashboard, m Metric) func() bool {
	return func() bool {
		s := d.Snapshot()
		st, ok := s.Status[m]
		return s.Coordinate != nil && ok && !st.Loading
	}
}

func allSettled(d *Dashboard) func() bool {
	return func() bool {
		for _, m := range Metrics {
			if !settled(d, m)() {
				return false
			}
		}
		return true
	}
}

func TestSnapshotBeforeCoordinate(t *testing.T) {
	d := start(t, &fakeFetcher{})
	s := d.Snapshot()
	if s.Coordinate != nil || s.Seq != 0 {
		t.Errorf("fresh snapshot has coordinate %v seq %d", s.Coordinate, s.Seq)
	}
	if s.Chart.State != lifecycle.Unbound.String() {
		t.Errorf("chart state %q", s.Chart.State)
	}
}

func TestCoordinateFillsPanels(t *testing.T) {
	d := start(t, &fakeFetcher{})
	d.SetCoordinate(santaCruz)
	eventually(t, "all metrics", allSettled(d))

	s := d.Snapshot()
	for m, st := range s.Status {
		if st.Error != "" {
			t.Errorf("%s failed: %s", m, st.Error)
		}
	}

	wantTide := TidePanel{
		Station:         stationRef(station(santaCruz)),
		Cycle:           meta.Falling,
		NextTide:        "03/01 16:00",
		NextTideType:    noaa.LowTide,
		NextTideHeight:  null.Float64From(0.2),
		WaterLevel:      null.Float64From(3.8),
		WaterLevelTime:  "03/01 12:06",
		EstimatedHeight: s.Tide.EstimatedHeight,
	}
	if diff := cmp.Diff(wantTide, s.Tide); diff != "" {
		t.Errorf("tide panel (-want,+got): %s", diff)
	}
	if h := s.Tide.EstimatedHeight; !h.Valid || h.Float64 > 4.5 || h.Float64 < 0.2 {
		t.Errorf("estimated height %v outside of the tide range", h)
	}

	if got := s.WaterTemperature; got.Time != "03/01 12:24" || got.Trend != meta.Warming {
		t.Errorf("water temperature panel %+v", got)
	}
	if s.Weather == nil || s.Weather.ShortForecast != "Sunny" {
		t.Errorf("weather panel %+v", s.Weather)
	}
	if s.Sun.Sunrise == "" || s.Sun.NextEvent == "" {
		t.Errorf("sun panel %+v", s.Sun)
	}

	wantLabels := []string{"03/01 04:00", "03/01 10:00", "03/01 12:00", "03/01 12:06", "03/01 16:00"}
	if diff := cmp.Diff(wantLabels, s.Chart.Labels); diff != "" {
		t.Errorf("labels (-want,+got): %s", diff)
	}
	wantData := []Dataset{
		{Name: TideDataset, Values: []null.Float64{null.Float64From(0.5), null.Float64From(4.5), {}, {}, null.Float64From(0.2)}},
		{Name: LevelsDataset, Values: []null.Float64{{}, {}, null.Float64From(3.9), null.Float64From(3.8), {}}},
	}
	if diff := cmp.Diff(wantData, s.Chart.Datasets); diff != "" {
		t.Errorf("datasets (-want,+got): %s", diff)
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	f := &fakeFetcher{}
	gate := f.gate(Predictions, santaCruz)
	d := start(t, f)

	d.SetCoordinate(santaCruz)
	d.SetCoordinate(monterey)
	eventually(t, "monterey predictions", func() bool {
		s := d.Snapshot()
		return settled(d, Predictions)() && s.Tide.Station != nil && s.Tide.Station.ID == station(monterey).ID
	})

	stale := metrics.StaleResponses.WithLabelValues(string(Predictions))
	before := testutil.ToFloat64(stale)
	close(gate)
	eventually(t, "stale predictions", func() bool {
		return testutil.ToFloat64(stale) == before+1
	})

	s := d.Snapshot()
	if s.Coordinate == nil || *s.Coordinate != monterey {
		t.Errorf("coordinate %v, want %v", s.Coordinate, monterey)
	}
	if s.Tide.Station.ID != station(monterey).ID {
		t.Errorf("stale response replaced the station with %s", s.Tide.Station.ID)
	}
}

func TestIncrementalUpdate(t *testing.T) {
	f := &fakeFetcher{}
	gate := f.gate(WaterLevels, santaCruz)
	d := start(t, f)
	surface := &stubSurface{}

	// The new coordinate clears the chart, then predictions draw it.
	d.SurfaceAvailable(surface)
	d.SetCoordinate(santaCruz)
	eventually(t, "predictions redraw", func() bool {
		_, updates := surface.counts()
		return updates == 2 && settled(d, Predictions)()
	})
	if got := d.Snapshot().Chart.Datasets[1].Values; len(got) != 3 {
		t.Errorf("water levels before arrival: %v", got)
	}

	close(gate)
	eventually(t, "water levels redraw", func() bool {
		_, updates := surface.counts()
		return updates == 3
	})
	if created, _ := surface.counts(); created != 1 {
		t.Errorf("created %d chart instances, want 1", created)
	}

	eventually(t, "water levels", settled(d, WaterLevels))
	s := d.Snapshot()
	if s.Chart.Instances != 1 || s.Chart.State != lifecycle.BoundLive.String() {
		t.Errorf("chart %d instances in state %s", s.Chart.Instances, s.Chart.State)
	}
}

func TestWeatherFailureKeepsTide(t *testing.T) {
	f := (&fakeFetcher{}).fail(Weather, santaCruz, errors.New("weather.gov returned 503"))
	d := start(t, f)
	d.SetCoordinate(santaCruz)
	eventually(t, "all metrics", allSettled(d))

	s := d.Snapshot()
	if got := s.Status[Weather].Error; !strings.Contains(got, "failed to fetch weather") {
		t.Errorf("weather status error %q", got)
	}
	if s.Weather != nil {
		t.Errorf("failed weather has a panel: %+v", s.Weather)
	}
	if s.Tide.Cycle != meta.Falling || len(s.Chart.Labels) == 0 {
		t.Errorf("tide did not render after a weather failure: %+v", s.Tide)
	}
}

func present(values []null.Float64) int {
	n := 0
	for _, v := range values {
		if v.Valid {
			n++
		}
	}
	return n
}

func TestTideFailureKeepsTheOtherSeries(t *testing.T) {
	norm := timetricks.NewNormalizer(time.UTC)
	table := []struct {
		failed, kept         Metric
		failedName, keptName string
	}{
		{Predictions, WaterLevels, TideDataset, LevelsDataset},
		{WaterLevels, Predictions, LevelsDataset, TideDataset},
	}

	for _, test := range table {
		t.Run(string(test.failed), func(t *testing.T) {
			f := (&fakeFetcher{}).fail(test.failed, santaCruz, errors.New("No data was found"))
			d := start(t, f)
			surface := visualize.NewSurface(600, 200, visualize.SVG, norm)
			d.SurfaceAvailable(surface)
			d.SetCoordinate(santaCruz)
			eventually(t, "all metrics", allSettled(d))

			s := d.Snapshot()
			if s.Status[test.failed].Error == "" {
				t.Errorf("%s reported no error", test.failed)
			}
			if got := s.Status[test.kept].Error; got != "" {
				t.Errorf("%s failed: %s", test.kept, got)
			}

			var preds, levels StationSeries
			var err error
			if test.kept == Predictions {
				preds, err = f.Predictions(context.Background(), santaCruz)
			} else {
				levels, err = f.WaterLevels(context.Background(), santaCruz)
			}
			if err != nil {
				t.Fatal(err)
			}
			want, err := align.Align(norm, []align.Series{
				preds.Series(TideDataset),
				levels.Series(LevelsDataset),
			})
			if err != nil {
				t.Fatal(err)
			}

			if len(s.Chart.Datasets) != 2 {
				t.Fatalf("got %d datasets", len(s.Chart.Datasets))
			}
			for _, ds := range s.Chart.Datasets {
				switch ds.Name {
				case test.failedName:
					if n := present(ds.Values); n != 0 {
						t.Errorf("failed dataset %q has %d values", ds.Name, n)
					}
				case test.keptName:
					if diff := cmp.Diff(want.Values[test.keptName], ds.Values); diff != "" {
						t.Errorf("dataset %q (-want,+got): %s", ds.Name, diff)
					}
				}
			}

			// The same pass drawn on a fresh surface gives the same frame.
			expected := visualize.NewSurface(600, 200, visualize.SVG, norm)
			m := lifecycle.NewManager(zap.NewNop(), norm, TideDataset, LevelsDataset)
			if err := m.EnsureInstance(expected); err != nil {
				t.Fatal(err)
			}
			if err := m.ApplyAligned(want.Axis, want.Values); err != nil {
				t.Fatal(err)
			}
			wantFrame, _, _ := expected.Frame()
			gotFrame, _, ok := surface.Frame()
			if !ok {
				t.Fatal("no frame drawn for the surviving series")
			}
			if !bytes.Equal(wantFrame, gotFrame) {
				t.Errorf("frame does not match the surviving series alone")
			}
		})
	}
}

func TestCoordinateChangeWithoutTideClearsChart(t *testing.T) {
	norm := timetricks.NewNormalizer(time.UTC)
	f := (&fakeFetcher{}).
		fail(Predictions, monterey, errors.New("No data was found")).
		fail(WaterLevels, monterey, errors.New("No data was found"))
	d := start(t, f)
	surface := visualize.NewSurface(600, 200, visualize.PNG, norm)
	d.SurfaceAvailable(surface)

	d.SetCoordinate(santaCruz)
	eventually(t, "santa cruz", allSettled(d))
	if _, _, ok := surface.Frame(); !ok {
		t.Fatal("santa cruz tide was not drawn")
	}

	d.SetCoordinate(monterey)
	eventually(t, "monterey", func() bool {
		s := d.Snapshot()
		return s.Coordinate != nil && *s.Coordinate == monterey && allSettled(d)()
	})

	s := d.Snapshot()
	for _, m := range []Metric{Predictions, WaterLevels} {
		if s.Status[m].Error == "" {
			t.Errorf("%s reported no error", m)
		}
	}
	if len(s.Chart.Labels) != 0 {
		t.Errorf("chart still has labels %v", s.Chart.Labels)
	}
	for _, ds := range s.Chart.Datasets {
		if n := present(ds.Values); n != 0 {
			t.Errorf("dataset %q kept %d values", ds.Name, n)
		}
	}
	if diff := cmp.Diff(TidePanel{}, s.Tide); diff != "" {
		t.Errorf("tide panel (-want,+got): %s", diff)
	}
	if frame, _, ok := surface.Frame(); ok {
		t.Errorf("surface still shows santa cruz: %d byte frame", len(frame))
	}
	if surface.Instances() != 1 {
		t.Errorf("created %d chart instances, want 1", surface.Instances())
	}
}

func TestReleaseAndRebind(t *testing.T) {
	d := start(t, &fakeFetcher{})
	first := &stubSurface{}
	d.SurfaceAvailable(first)
	d.SetCoordinate(santaCruz)
	eventually(t, "all metrics", allSettled(d))

	d.ReleaseSurface()
	eventually(t, "release", func() bool {
		return d.Snapshot().Chart.State == lifecycle.Unbound.String()
	})

	second := &stubSurface{}
	d.SurfaceAvailable(second)
	eventually(t, "redraw on the new surface", func() bool {
		created, updates := second.counts()
		return created == 1 && updates == 1
	})
	if created, _ := first.counts(); created != 1 {
		t.Errorf("first surface has %d instances", created)
	}
}

func TestPostAfterRunReturns(t *testing.T) {
	d := New(zap.NewNop(), &fakeFetcher{}, timetricks.NewNormalizer(time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan error)
	go func() { returned <- d.Run(ctx) }()
	cancel()
	if err := <-returned; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}

	posted := make(chan struct{})
	go func() {
		for i := 0; i < 2*eventBuffer; i++ {
			d.SetCoordinate(santaCruz)
		}
		close(posted)
	}()
	select {
	case <-posted:
	case <-time.After(5 * time.Second):
		t.Fatal("posting blocked after Run returned")
	}
}

func TestFetchError(t *testing.T) {
	inner := &noaa.APIError{Message: "No data was found"}
	var err error = &FetchError{Metric: WaterTemperature, Err: inner}

	var apiErr *noaa.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("%v does not unwrap to an APIError", err)
	}
	want := "failed to fetch water_temperature: " + inner.Error()
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
