// Package sunset lists sunrises and sunsets for a place.
package sunset

import (
	"math"
	"time"

	"github.com/keep94/sunrise"

	"github.com/spencer-p/tidedash/pkg/timetricks"
)

// maxSeek bounds the search for the first sunrise. Polar days and nights have
// none.
const maxSeek = 3

// GetSunEvents returns a list of ordered sun events from the starting time to
// the end time in the given place. The first result will always be a sunrise.
func GetSunEvents(start time.Time, duration time.Duration, place Place) SunEvents {
	start = start.In(place.Location)

	var s sunrise.Sunrise
	s.Around(place.Lat, place.Long, start)

	// The sunrise package is not very clean with its dates.
	for i := 0; !timetricks.SameDay(start, s.Sunrise()); i++ {
		if i == maxSeek || s.Sunrise().IsZero() {
			return nil
		}
		if s.Sunrise().Before(start) {
			s.AddDays(1)
		} else {
			s.AddDays(-1)
		}
	}

	numDays := int(math.Ceil(duration.Hours() / 24))
	ret := make(SunEvents, 0, numDays*2)
	for i := 0; i < numDays; i++ {
		rise, set := s.Sunrise(), s.Sunset()
		if rise.IsZero() || set.IsZero() {
			break
		}
		ret = append(ret,
			SunEvent{rise.In(place.Location), Sunrise},
			SunEvent{set.In(place.Location), Sunset})
		s.AddDays(1)
	}
	return ret
}

func sameDay(a, b time.Time) bool {
	return timetricks.SameDay(a, b.In(a.Location()))
}
