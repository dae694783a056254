package dashboard

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/spencer-p/tidedash/pkg/meta"
	"github.com/spencer-p/tidedash/pkg/noaa"
	"github.com/spencer-p/tidedash/pkg/sunset"
	"github.com/spencer-p/tidedash/pkg/timetricks"
	"github.com/spencer-p/tidedash/pkg/weather"
)

const clockFormat = "15:04"

// Snapshot is an immutable view of the dashboard. Absent values marshal to
// JSON null.
type Snapshot struct {
	Seq        uint64                  `json:"seq"`
	Coordinate *Coordinate             `json:"coordinate,omitempty"`
	Updated    time.Time               `json:"updated"`
	Status     map[Metric]MetricStatus `json:"status"`

	Tide             TidePanel        `json:"tide"`
	WaterTemperature TemperaturePanel `json:"water_temperature"`
	Weather          *weather.Period  `json:"weather,omitempty"`
	Sun              SunPanel         `json:"sun"`
	Chart            ChartData        `json:"chart"`
}

// MetricStatus tracks the request for one metric at the current coordinate.
type MetricStatus struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

type TidePanel struct {
	Station         *noaa.Station `json:"station,omitempty"`
	Cycle           meta.Cycle    `json:"cycle,omitempty"`
	NextTide        string        `json:"next_tide,omitempty"`
	NextTideType    noaa.Tide     `json:"next_tide_type,omitempty"`
	NextTideHeight  null.Float64  `json:"next_tide_height"`
	EstimatedHeight null.Float64  `json:"estimated_height"`
	WaterLevel      null.Float64  `json:"water_level"`
	WaterLevelTime  string        `json:"water_level_time,omitempty"`
}

type TemperaturePanel struct {
	Station     *noaa.Station `json:"station,omitempty"`
	Temperature null.Float64  `json:"temperature"`
	Time        string        `json:"time,omitempty"`
	Trend       meta.Trend    `json:"trend,omitempty"`
}

type SunPanel struct {
	Sunrise   string `json:"sunrise,omitempty"`
	Sunset    string `json:"sunset,omitempty"`
	NextEvent string `json:"next_event,omitempty"`
	NextTime  string `json:"next_time,omitempty"`
}

// ChartData is the last aligned render pass, as drawn on the chart.
type ChartData struct {
	Labels    []string  `json:"labels"`
	Datasets  []Dataset `json:"datasets"`
	State     string    `json:"state"`
	Instances int       `json:"instances"`
}

type Dataset struct {
	Name   string         `json:"name"`
	Values []null.Float64 `json:"values"`
}

// clone copies the parts of s that the loop mutates in place.
func (s *Snapshot) clone() *Snapshot {
	c := *s
	c.Status = make(map[Metric]MetricStatus, len(s.Status))
	for m, st := range s.Status {
		c.Status[m] = st
	}
	return &c
}

func tidePanel(n *timetricks.Normalizer, preds, levels StationSeries, now time.Time) TidePanel {
	var p TidePanel
	switch {
	case preds.Station.ID != "":
		p.Station = stationRef(preds.Station)
	case levels.Station.ID != "":
		p.Station = stationRef(levels.Station)
	}

	extremes := meta.Normalize(n, preds.Readings)
	if len(extremes) > 0 {
		p.Cycle = meta.UnknownCycle
	}
	if next, err := meta.NextExtreme(extremes, timetricks.FromTime(now)); err == nil {
		p.Cycle = meta.TideCycle(next.Tide)
		p.NextTide = n.Label(next.Key)
		p.NextTideType = next.Tide
		p.NextTideHeight = null.Float64From(next.Value)
	}
	if h, ok := meta.EstimateHeight(n, extremes, now); ok {
		p.EstimatedHeight = null.Float64From(h)
	}

	if last, err := meta.Latest(meta.Normalize(n, levels.Readings)); err == nil {
		p.WaterLevel = null.Float64From(last.Value)
		p.WaterLevelTime = n.Label(last.Key)
	}
	return p
}

func temperaturePanel(n *timetricks.Normalizer, temps StationSeries, now time.Time) TemperaturePanel {
	var p TemperaturePanel
	if temps.Station.ID != "" {
		p.Station = stationRef(temps.Station)
	}
	readings := meta.Normalize(n, temps.Readings)
	if closest, err := meta.Closest(readings, timetricks.FromTime(now)); err == nil {
		p.Temperature = null.Float64From(closest.Value)
		p.Time = n.Label(closest.Key)
	}
	if temps.Station.ID != "" {
		p.Trend = meta.TemperatureTrend(readings, now)
	}
	return p
}

func sunPanel(c Coordinate, loc *time.Location, now time.Time) SunPanel {
	place := sunset.NewPlace(c.Lat, c.Long, loc)
	events := sunset.GetSunEvents(now, 2*24*time.Hour, place)

	var p SunPanel
	if rise, set, ok := events.On(now.In(place.Location)); ok {
		p.Sunrise = rise.Time.Format(clockFormat)
		p.Sunset = set.Time.Format(clockFormat)
	}
	if next, ok := events.Next(now); ok {
		p.NextEvent = next.Event.String()
		p.NextTime = next.Time.Format(clockFormat)
	}
	return p
}

func stationRef(s noaa.Station) *noaa.Station {
	return &s
}
