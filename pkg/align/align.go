// Package align merges independently sampled time series onto one time axis.
// Every input series gets a slice parallel to the axis holding either its
// value at that time or an absent marker (an invalid null.Float64). Nothing is
// interpolated.
package align

import (
	"errors"
	"fmt"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/spencer-p/tidedash/pkg/timetricks"
)

// ErrInvalidSeries marks a series collection that cannot be aligned at all.
var ErrInvalidSeries = errors.New("invalid series")

// Sample is one reading as delivered upstream. Time is a naive UTC timestamp.
// A null Value means the source had no reading.
type Sample struct {
	Time  string
	Value null.Float64
}

// Series is one source's readings in delivery order.
type Series struct {
	Name    string
	Samples []Sample
}

// Result is an aligned render pass.
type Result struct {
	// Axis is strictly increasing.
	Axis []timetricks.Key
	// Names lists the input series in input order.
	Names []string
	// Values holds one slice per series name, each len(Axis) long.
	Values map[string][]null.Float64
	// Dropped counts samples skipped for malformed timestamps.
	Dropped int
}

// Len is the number of axis positions.
func (r *Result) Len() int {
	return len(r.Axis)
}

// Align merges series onto one axis. Samples with malformed timestamps are
// skipped individually. When a series has more than one sample for the same
// key the later one wins, including a later null, which leaves the key absent
// for that series. A key present in no series is not on the axis.
func Align(n *timetricks.Normalizer, series []Series) (*Result, error) {
	if err := validate(series); err != nil {
		return nil, err
	}

	result := &Result{
		Names:  make([]string, len(series)),
		Values: make(map[string][]null.Float64, len(series)),
	}

	lookups := make([]map[timetricks.Key]float64, len(series))
	union := make(map[timetricks.Key]struct{})
	for i, s := range series {
		result.Names[i] = s.Name
		lookup := make(map[timetricks.Key]float64, len(s.Samples))
		for _, sample := range s.Samples {
			key, err := n.Normalize(sample.Time)
			if err != nil {
				result.Dropped++
				continue
			}
			if !sample.Value.Valid {
				delete(lookup, key)
				continue
			}
			lookup[key] = sample.Value.Float64
		}
		for key := range lookup {
			union[key] = struct{}{}
		}
		lookups[i] = lookup
	}

	result.Axis = make([]timetricks.Key, 0, len(union))
	for key := range union {
		result.Axis = append(result.Axis, key)
	}
	sort.Slice(result.Axis, func(i, j int) bool {
		return result.Axis[i] < result.Axis[j]
	})

	for i, s := range series {
		values := make([]null.Float64, len(result.Axis))
		for j, key := range result.Axis {
			if v, ok := lookups[i][key]; ok {
				values[j] = null.Float64From(v)
			}
		}
		result.Values[s.Name] = values
	}

	return result, nil
}

func validate(series []Series) error {
	seen := make(map[string]bool, len(series))
	for i, s := range series {
		if s.Name == "" {
			return fmt.Errorf("%w: series %d has no name", ErrInvalidSeries, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate series name %q", ErrInvalidSeries, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
