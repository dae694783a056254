package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/spencer-p/tidedash/pkg/align"
	"github.com/spencer-p/tidedash/pkg/noaa"
	"github.com/spencer-p/tidedash/pkg/timetricks"
	"github.com/spencer-p/tidedash/pkg/weather"
)

// Metric names one upstream request issued per coordinate.
type Metric string

const (
	Predictions      Metric = "predictions"
	WaterLevels      Metric = "water_level"
	WaterTemperature Metric = "water_temperature"
	Weather          Metric = "weather"
)

// Metrics lists every metric in the order requests are issued.
var Metrics = []Metric{Predictions, WaterLevels, WaterTemperature, Weather}

// Coordinate is an observer position in degrees. Accuracy is in meters and
// only informational.
type Coordinate struct {
	Lat      float64 `json:"lat"`
	Long     float64 `json:"long"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Long)
}

// StationSeries is a series of readings from one NOAA station.
type StationSeries struct {
	Station  noaa.Station
	Readings noaa.Readings
}

// Series labels the readings for alignment.
func (s StationSeries) Series(name string) align.Series {
	samples := make([]align.Sample, len(s.Readings))
	for i, r := range s.Readings {
		samples[i] = align.Sample{Time: r.T, Value: r.V.Float64}
	}
	return align.Series{Name: name, Samples: samples}
}

// Fetcher retrieves the readings for a coordinate.
type Fetcher interface {
	Predictions(ctx context.Context, c Coordinate) (StationSeries, error)
	WaterLevels(ctx context.Context, c Coordinate) (StationSeries, error)
	WaterTemperature(ctx context.Context, c Coordinate) (StationSeries, error)
	Weather(ctx context.Context, c Coordinate) (weather.Period, error)
}

// FetchError is a failed request for one metric.
type FetchError struct {
	Metric Metric
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Metric, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

const forecastDays = 2

// Upstream fetches from NOAA CO-OPS at the water level station nearest the
// coordinate and from the National Weather Service.
type Upstream struct {
	tides   *noaa.Client
	weather *weather.Client
	now     func() time.Time
}

func NewUpstream(tides *noaa.Client, w *weather.Client) *Upstream {
	return &Upstream{
		tides:   tides,
		weather: w,
		now:     time.Now,
	}
}

func (u *Upstream) station(ctx context.Context, c Coordinate) (noaa.Station, error) {
	stations, err := u.tides.Nearest(ctx, c.Lat, c.Long, 1)
	if err != nil {
		return noaa.Station{}, err
	}
	return stations[0], nil
}

// today is the start of the current GMT day.
func (u *Upstream) today() time.Time {
	return timetricks.TrimClock(u.now().UTC())
}

// Predictions are the highs and lows from today through two days out.
func (u *Upstream) Predictions(ctx context.Context, c Coordinate) (StationSeries, error) {
	st, err := u.station(ctx, c)
	if err != nil {
		return StationSeries{}, err
	}
	preds, err := u.tides.GetPredictions(ctx, st.ID, u.today(), forecastDays*24*time.Hour)
	if err != nil {
		return StationSeries{}, err
	}
	return StationSeries{Station: st, Readings: preds}, nil
}

// WaterLevels are the observations over the same window as Predictions.
func (u *Upstream) WaterLevels(ctx context.Context, c Coordinate) (StationSeries, error) {
	st, err := u.station(ctx, c)
	if err != nil {
		return StationSeries{}, err
	}
	res, err := u.tides.GetWaterLevels(ctx, st.ID, u.today(), forecastDays*24*time.Hour)
	if err != nil {
		return StationSeries{}, err
	}
	return StationSeries{Station: st, Readings: res.Data}, nil
}

// WaterTemperature is today's temperature record.
func (u *Upstream) WaterTemperature(ctx context.Context, c Coordinate) (StationSeries, error) {
	st, err := u.station(ctx, c)
	if err != nil {
		return StationSeries{}, err
	}
	res, err := u.tides.GetWaterTemperature(ctx, st.ID, u.today(), 0)
	if err != nil {
		return StationSeries{}, err
	}
	return StationSeries{Station: st, Readings: res.Data}, nil
}

// Weather is the hourly forecast period covering now.
func (u *Upstream) Weather(ctx context.Context, c Coordinate) (weather.Period, error) {
	return u.weather.Current(ctx, c.Lat, c.Long, u.now())
}
