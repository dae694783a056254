// Package weather reads hourly forecasts from the National Weather Service.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"github.com/spencer-p/tidedash/pkg/cache"
)

const (
	BaseURL   = "https://api.weather.gov"
	UserAgent = "tidedash (github.com/spencer-p/tidedash)"

	gridTTL = 24 * time.Hour
)

// ErrNoPeriod is returned when no forecast period covers the requested time.
var ErrNoPeriod = errors.New("no forecast period covers the time")

// StatusError is a non-200 response from the NWS API.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weather.gov returned %s", e.Status)
}

// Period is one hour of the hourly forecast.
type Period struct {
	StartTime        time.Time   `json:"startTime"`
	EndTime          time.Time   `json:"endTime"`
	IsDaytime        bool        `json:"isDaytime"`
	Temperature      float64     `json:"temperature"`
	TemperatureUnit  string      `json:"temperatureUnit"`
	TemperatureTrend null.String `json:"temperatureTrend"`
	Precipitation    Quantity    `json:"probabilityOfPrecipitation"`
	WindSpeed        string      `json:"windSpeed"`
	WindDirection    string      `json:"windDirection"`
	Icon             string      `json:"icon"`
	ShortForecast    string      `json:"shortForecast"`
	DetailedForecast string      `json:"detailedForecast"`
}

// Quantity is an NWS value with its unit. Value is null when unknown.
type Quantity struct {
	UnitCode string       `json:"unitCode"`
	Value    null.Float64 `json:"value"`
}

// Covers reports whether t falls in [StartTime, EndTime).
func (p *Period) Covers(t time.Time) bool {
	return !t.Before(p.StartTime) && t.Before(p.EndTime)
}

type points struct {
	Properties struct {
		Forecast       string `json:"forecast"`
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type forecast struct {
	Properties struct {
		Periods []Period `json:"periods"`
	} `json:"properties"`
}

// Client looks up gridpoints and their hourly forecasts.
type Client struct {
	log       *zap.Logger
	http      *http.Client
	baseURL   string
	userAgent string

	grids *cache.Timed
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.http = c }
}

// WithBaseURL points the client at another NWS API root.
func WithBaseURL(u string) Option {
	return func(client *Client) { client.baseURL = strings.TrimSuffix(u, "/") }
}

// WithUserAgent sets the User-Agent header NWS requires.
func WithUserAgent(ua string) Option {
	return func(client *Client) { client.userAgent = ua }
}

func NewClient(log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		log:       log,
		http:      http.DefaultClient,
		baseURL:   BaseURL,
		userAgent: UserAgent,
		grids:     cache.NewTimed(gridTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hourly fetches the hourly forecast for a coordinate.
func (c *Client) Hourly(ctx context.Context, lat, long float64) ([]Period, error) {
	addr, err := c.hourlyURL(ctx, lat, long)
	if err != nil {
		return nil, err
	}
	var f forecast
	if err := c.getJSON(ctx, addr, &f); err != nil {
		return nil, fmt.Errorf("failed to get hourly forecast: %w", err)
	}
	return f.Properties.Periods, nil
}

// Current fetches the hourly forecast and picks the period covering now.
func (c *Client) Current(ctx context.Context, lat, long float64, now time.Time) (Period, error) {
	periods, err := c.Hourly(ctx, lat, long)
	if err != nil {
		return Period{}, err
	}
	return Current(periods, now)
}

// Current returns the period covering now.
func Current(periods []Period, now time.Time) (Period, error) {
	for _, p := range periods {
		if p.Covers(now) {
			return p, nil
		}
	}
	return Period{}, ErrNoPeriod
}

func (c *Client) hourlyURL(ctx context.Context, lat, long float64) (string, error) {
	key := PointsPath(lat, long)
	if addr, ok := c.grids.Get(key); ok {
		return string(addr), nil
	}

	var p points
	if err := c.getJSON(ctx, c.baseURL+key, &p); err != nil {
		return "", fmt.Errorf("failed to get gridpoint: %w", err)
	}
	addr := p.Properties.ForecastHourly
	if addr == "" && p.Properties.Forecast != "" {
		addr = p.Properties.Forecast + "/hourly"
	}
	if addr == "" {
		return "", fmt.Errorf("gridpoint %s has no forecast", key)
	}
	c.grids.Set(key, []byte(addr))
	c.log.Debug("resolved gridpoint", zap.String("points", key), zap.String("forecast", addr))
	return addr, nil
}

// PointsPath is the API path for a coordinate. NWS only accepts four decimal
// places.
func PointsPath(lat, long float64) string {
	return "/points/" + round4(lat) + "," + round4(long)
}

func round4(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e4)/1e4, 'f', -1, 64)
}

func (c *Client) getJSON(ctx context.Context, addr string, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode weather response: %w", err)
	}
	return nil
}
