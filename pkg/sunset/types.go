package sunset

import (
	"fmt"
	"time"
)

// Place is a lat/long coordinate on the Earth matched with its time zone.
type Place struct {
	Lat, Long float64
	Location  *time.Location
}

// NewPlace pins a coordinate to loc. A nil loc means time.Local.
func NewPlace(lat, long float64, loc *time.Location) Place {
	if loc == nil {
		loc = time.Local
	}
	return Place{Lat: lat, Long: long, Location: loc}
}

// SunEvents is a time series of SunEvent.
type SunEvents []SunEvent

// SunEvent is a sunrise or sunset event.
type SunEvent struct {
	Time  time.Time
	Event Event
}

func (s *SunEvent) String() string {
	return fmt.Sprintf("%s %s", s.Time.Format(time.RFC822), s.Event)
}

// Event encodes a sunrise or sunset event.
type Event bool

const (
	Sunrise Event = true
	Sunset  Event = false
)

func (e Event) String() string {
	if e == Sunrise {
		return "Sunrise"
	}
	return "Sunset"
}

// Next returns the first event after t.
func (events SunEvents) Next(t time.Time) (SunEvent, bool) {
	for _, e := range events {
		if e.Time.After(t) {
			return e, true
		}
	}
	return SunEvent{}, false
}

// On returns the sunrise and sunset falling on the same day as t.
func (events SunEvents) On(t time.Time) (rise, set SunEvent, ok bool) {
	for i := 0; i+1 < len(events); i += 2 {
		if events[i].Event == Sunrise && sameDay(events[i].Time, t) {
			return events[i], events[i+1], true
		}
	}
	return SunEvent{}, SunEvent{}, false
}
