// Package meta derives panel values from raw readings: which way the tide is
// heading, when the next high or low is, and whether the water is warming.
package meta

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/spencer-p/tidedash/pkg/noaa"
	"github.com/spencer-p/tidedash/pkg/noaa/splines"
	"github.com/spencer-p/tidedash/pkg/timetricks"
)

const (
	trendWindow    = 3 * time.Hour
	trendThreshold = 0.2 // degrees
	trendAverage   = 5   // readings averaged at each end
)

var notFound = errors.New("not found")

// Cycle is the direction the tide is moving.
type Cycle string

const (
	Rising       Cycle = "Rising"
	Falling      Cycle = "Falling"
	UnknownCycle Cycle = "Unknown"
)

// Trend is the direction of a reading over the recent past.
type Trend string

const (
	Warming       Trend = "Rising"
	Cooling       Trend = "Falling"
	Stable        Trend = "Stable"
	NotEnoughData Trend = "Not enough data"
)

// Reading is a normalized reading with a present value.
type Reading struct {
	Key   timetricks.Key
	Value float64
	Tide  noaa.Tide
}

// Normalize keeps the readings that have a parsable time and a value, in
// chronological order.
func Normalize(n *timetricks.Normalizer, rs noaa.Readings) []Reading {
	result := make([]Reading, 0, len(rs))
	for _, r := range rs {
		if !r.V.Valid {
			continue
		}
		key, err := n.Normalize(r.T)
		if err != nil {
			continue
		}
		result = append(result, Reading{Key: key, Value: r.V.Float64.Float64, Tide: r.Type})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}

// NextExtreme returns the first high or low tide strictly after now.
func NextExtreme(preds []Reading, now timetricks.Key) (Reading, error) {
	i := sort.Search(len(preds), func(i int) bool {
		return preds[i].Key > now
	})
	for ; i < len(preds); i++ {
		if preds[i].Tide.Valid() {
			return preds[i], nil
		}
	}
	return Reading{}, notFound
}

// TideCycle is Rising when the next extreme is a high tide and Falling when
// it is a low tide.
func TideCycle(next noaa.Tide) Cycle {
	switch next {
	case noaa.HighTide:
		return Rising
	case noaa.LowTide:
		return Falling
	default:
		return UnknownCycle
	}
}

// EstimateHeight interpolates tide height at now from the hi/lo predictions
// surrounding it. ok is false when now is outside the predictions.
func EstimateHeight(n *timetricks.Normalizer, preds []Reading, now time.Time) (height float64, ok bool) {
	points := make([]splines.Point, 0, len(preds))
	for _, p := range preds {
		if !p.Tide.Valid() {
			continue
		}
		points = append(points, splines.Point{Time: n.Time(p.Key), Height: p.Value})
	}
	h := splines.CurvesBetween(points).Eval(now)
	if math.IsNaN(h) {
		return 0, false
	}
	return h, true
}

// Latest returns the last reading.
func Latest(rs []Reading) (Reading, error) {
	if len(rs) == 0 {
		return Reading{}, notFound
	}
	return rs[len(rs)-1], nil
}

// Closest returns the reading nearest to now.
func Closest(rs []Reading, now timetricks.Key) (Reading, error) {
	if len(rs) == 0 {
		return Reading{}, notFound
	}
	best := rs[0]
	for _, r := range rs[1:] {
		if abs(r.Key-now) < abs(best.Key-now) {
			best = r
		}
	}
	return best, nil
}

// TemperatureTrend compares the average of the first and last few readings
// from the three hours before now.
func TemperatureTrend(rs []Reading, now time.Time) Trend {
	since := timetricks.FromTime(now.Add(-trendWindow))
	i := sort.Search(len(rs), func(i int) bool {
		return rs[i].Key >= since
	})
	recent := rs[i:]
	if len(recent) < 2 {
		return NotEnoughData
	}

	first := mean(recent[:min(trendAverage, len(recent))])
	last := mean(recent[len(recent)-min(trendAverage, len(recent)):])
	switch {
	case last > first+trendThreshold:
		return Warming
	case last < first-trendThreshold:
		return Cooling
	default:
		return Stable
	}
}

func mean(rs []Reading) float64 {
	var sum float64
	for _, r := range rs {
		sum += r.Value
	}
	return sum / float64(len(rs))
}

func abs(k timetricks.Key) timetricks.Key {
	if k < 0 {
		return -k
	}
	return k
}
