package noaa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/volatiletech/null/v8"
)

// Reading holds a single time series point.
type Reading struct {
	// UTC time of the reading, "2006-01-02 15:04". Left unparsed; callers
	// decide what to do with malformed times.
	T string `json:"t"`
	// Height in feet or temperature in Fahrenheit, depending on product.
	V Value `json:"v"`
	// High or low tide for hi/lo predictions, unset otherwise.
	Type Tide `json:"type,omitempty"`
}

// Readings is a time series of Reading.
type Readings []Reading

// Verify the custom types can be unmarshaled
var _ json.Unmarshaler = new(Value)
var _ json.Unmarshaler = new(Tide)

// Value is a reading NOAA encodes as a decimal string, or as "" when a sensor
// had no data. Numbers and null are accepted too.
type Value struct {
	null.Float64
}

// NewValue returns a present Value.
func NewValue(f float64) Value {
	return Value{null.Float64From(f)}
}

func (v *Value) UnmarshalJSON(buf []byte) error {
	buf = bytes.TrimSpace(buf)
	if bytes.Equal(buf, []byte("null")) {
		*v = Value{}
		return nil
	}

	s := string(buf)
	if len(buf) > 0 && buf[0] == '"' {
		if err := json.Unmarshal(buf, &s); err != nil {
			return fmt.Errorf("value %q not a string: %w", buf, err)
		}
		if s == "" {
			*v = Value{}
			return nil
		}
	}

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("value %q not a float: %w", s, err)
	}
	*v = NewValue(parsed)
	return nil
}

type Tide uint

const (
	UnknownTide Tide = iota
	HighTide
	LowTide
)

func (t Tide) Valid() bool {
	return t == HighTide || t == LowTide
}

func (t *Tide) UnmarshalJSON(buf []byte) error {
	var s string
	if err := json.Unmarshal(buf, &s); err != nil {
		return fmt.Errorf("tide %q not a string: %w", buf, err)
	}
	switch s {
	case "H", "HH":
		*t = HighTide
	case "L", "LL":
		*t = LowTide
	case "":
		*t = UnknownTide
	default:
		return fmt.Errorf("invalid tide type %q", s)
	}
	return nil
}

func (t Tide) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.String())
}

func (t Tide) String() string {
	switch t {
	case HighTide:
		return "H"
	case LowTide:
		return "L"
	default:
		return "unknown"
	}
}

func (r Reading) String() string {
	v := "none"
	if r.V.Valid {
		v = fmt.Sprintf("%f", r.V.Float64.Float64)
	}
	return fmt.Sprintf("{t: %s, v: %s, type: %s}", r.T, v, r.Type)
}

// Metadata describes the station a data response came from.
type Metadata struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Lat  string `json:"lat"`
	Lon  string `json:"lon"`
}

// APIError is the error payload NOAA returns with a 200 status.
type APIError struct {
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("noaa: %s", e.Message)
}

// StatusError reports a non-200 response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("noaa: unexpected status %s", e.Status)
}

// PredictionsResult is returned for the predictions product.
type PredictionsResult struct {
	Predictions Readings  `json:"predictions"`
	Error       *APIError `json:"error,omitempty"`
}

// DataResult is returned for observed products such as water_level and
// water_temperature.
type DataResult struct {
	Metadata *Metadata `json:"metadata,omitempty"`
	Data     Readings  `json:"data"`
	Error    *APIError `json:"error,omitempty"`
}

// Station is an entry in the NOAA station catalog.
type Station struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	State string  `json:"state"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`

	// Distance in km from the coordinate the station was looked up for.
	Distance float64 `json:"distance,omitempty"`
}

type stationList struct {
	Stations []Station `json:"stations"`
}
