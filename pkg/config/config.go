// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/spencer-p/tidedash/pkg/dashboard"
	"github.com/spencer-p/tidedash/pkg/noaa"
	"github.com/spencer-p/tidedash/pkg/visualize"
	"github.com/spencer-p/tidedash/pkg/weather"
)

type Config struct {
	Port   string `default:"8080"`
	Prefix string `default:"/"`

	NOAAURL     string `envconfig:"NOAA_URL"`
	StationsURL string `envconfig:"STATIONS_URL"`
	WeatherURL  string `envconfig:"WEATHER_URL"`
	UserAgent   string `envconfig:"USER_AGENT"`

	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"15m"`
	StationCacheTTL time.Duration `envconfig:"STATION_CACHE_TTL" default:"24h"`

	TimeZone    string `envconfig:"TIME_ZONE" default:"Local"`
	ChartWidth  int    `envconfig:"CHART_WIDTH" default:"1200"`
	ChartHeight int    `envconfig:"CHART_HEIGHT" default:"300"`
	ChartFormat string `envconfig:"CHART_FORMAT" default:"png"`

	StartCoordinate Coordinate `envconfig:"START_COORDINATE"`
	Debug           bool       `default:"false"`
}

// Coordinate is an optional "lat,long" pair.
type Coordinate struct {
	dashboard.Coordinate
	Set bool
}

// Decode implements envconfig.Decoder.
func (c *Coordinate) Decode(value string) error {
	if strings.TrimSpace(value) == "" {
		*c = Coordinate{}
		return nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return fmt.Errorf("coordinate %q is not lat,long", value)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return fmt.Errorf("bad latitude: %w", err)
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return fmt.Errorf("bad longitude: %w", err)
	}
	*c = Coordinate{Coordinate: dashboard.Coordinate{Lat: lat, Long: long}, Set: true}
	return nil
}

// Load processes the environment and validates the result.
func Load() (*Config, error) {
	var env Config
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}
	env.fillDefaults()
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *Config) fillDefaults() {
	if c.NOAAURL == "" {
		c.NOAAURL = noaa.DataURL
	}
	if c.StationsURL == "" {
		c.StationsURL = noaa.StationsURL
	}
	if c.WeatherURL == "" {
		c.WeatherURL = weather.BaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = weather.UserAgent
	}
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if !strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("prefix %q must start with /", c.Prefix)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must not be negative")
	}
	if c.StationCacheTTL <= 0 {
		return fmt.Errorf("station cache TTL must be positive")
	}
	if c.ChartWidth <= 0 || c.ChartHeight <= 0 {
		return fmt.Errorf("chart size %dx%d must be positive", c.ChartWidth, c.ChartHeight)
	}
	if _, err := c.Format(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if s := c.StartCoordinate; s.Set && (s.Lat < -90 || s.Lat > 90 || s.Long < -180 || s.Long > 180) {
		return fmt.Errorf("start coordinate %s out of range", s.Coordinate)
	}
	return nil
}

// Location is the observer time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("bad time zone: %w", err)
	}
	return loc, nil
}

func (c *Config) Format() (visualize.Format, error) {
	return visualize.ParseFormat(c.ChartFormat)
}
