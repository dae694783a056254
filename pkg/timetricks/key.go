package timetricks

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedTimestamp is returned by Normalize when a timestamp cannot be
// read as a date and time.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

const labelFormat = "01/02 15:04"

// layouts accepted by Normalize, all read as naive UTC. The first is what NOAA
// sends when asked for time_zone=GMT.
var layouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// Key is a canonical time key: an instant at minute resolution, counted in
// minutes since the Unix epoch. Keys order chronologically with < and are
// safe to use as map keys.
type Key int64

// FromTime returns the key for t, truncated to the minute.
func FromTime(t time.Time) Key {
	sec := t.Unix()
	if sec < 0 && sec%60 != 0 {
		sec -= 60
	}
	return Key(sec / 60)
}

// Unix returns the key as seconds since the epoch.
func (k Key) Unix() int64 {
	return int64(k) * 60
}

// Normalizer turns upstream UTC timestamps into keys and renders keys in the
// observer's time zone.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer returns a Normalizer for the observer zone loc. A nil loc
// means time.Local.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// Location is the observer's time zone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize parses a naive UTC timestamp like "2025-03-01 12:42". Errors wrap
// ErrMalformedTimestamp.
func (n *Normalizer) Normalize(utc string) (Key, error) {
	s := strings.TrimSpace(utc)
	for _, layout := range layouts {
		if len(s) != len(layout) {
			continue
		}
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return FromTime(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, utc)
}

// Time returns the instant of k in the observer's zone.
func (n *Normalizer) Time(k Key) time.Time {
	return time.Unix(k.Unix(), 0).In(n.loc)
}

// Label formats k as local "MM/DD HH:MM".
func (n *Normalizer) Label(k Key) string {
	return n.Time(k).Format(labelFormat)
}
