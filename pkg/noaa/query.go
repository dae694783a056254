package noaa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spencer-p/tidedash/pkg/cache"
)

const (
	DataURL     = "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter"
	StationsURL = "https://api.tidesandcurrents.noaa.gov/mdapi/prod/webapi/stations.json"
	TIME_FMT    = "20060102"

	application = "tidedash"
)

// Product is a NOAA data product.
type Product string

const (
	Predictions      Product = "predictions"
	WaterLevel       Product = "water_level"
	WaterTemperature Product = "water_temperature"
)

// Query is used to query a product at a station in a given time window. Times
// in the response are GMT.
type Query struct {
	Product  Product
	Station  string
	Start    time.Time
	Duration time.Duration
	// Interval is "hilo" for high/low predictions, a number of minutes, or
	// empty for the product's default.
	Interval string
}

func (q *Query) build() url.Values {
	vals := make(url.Values)
	vals.Add("begin_date", q.Start.UTC().Format(TIME_FMT))
	vals.Add("end_date", q.Start.Add(q.Duration).UTC().Format(TIME_FMT))
	vals.Add("station", q.Station)
	vals.Add("product", string(q.Product))
	if q.Product != WaterTemperature {
		vals.Add("datum", "MLLW")
	}
	vals.Add("time_zone", "gmt")
	if q.Interval != "" {
		vals.Add("interval", q.Interval)
	}
	vals.Add("units", "english")
	vals.Add("application", application)
	vals.Add("format", "json")
	return vals
}

// Client queries the NOAA data and metadata APIs.
type Client struct {
	log         *zap.Logger
	http        *http.Client
	dataURL     string
	stationsURL string

	catalog *cache.Timed
	loads   singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.http = c }
}

// WithDataURL points the client at another datagetter endpoint.
func WithDataURL(u string) Option {
	return func(client *Client) { client.dataURL = u }
}

// WithStationsURL points the client at another station catalog.
func WithStationsURL(u string) Option {
	return func(client *Client) { client.stationsURL = u }
}

// NewClient returns a Client that caches the station catalog for catalogTTL.
func NewClient(log *zap.Logger, catalogTTL time.Duration, opts ...Option) (*Client, error) {
	catalog, err := cache.NewCompressed(catalogTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create station cache: %w", err)
	}
	c := &Client{
		log:         log,
		http:        http.DefaultClient,
		dataURL:     DataURL,
		stationsURL: StationsURL,
		catalog:     catalog,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetPredictions fetches hi/lo tide predictions.
func (c *Client) GetPredictions(ctx context.Context, station string, start time.Time, dur time.Duration) (Readings, error) {
	var result PredictionsResult
	q := Query{
		Product:  Predictions,
		Station:  station,
		Start:    start,
		Duration: dur,
		Interval: "hilo",
	}
	if err := c.get(ctx, &q, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Predictions, nil
}

// GetWaterLevels fetches observed water levels at the product's default six
// minute interval.
func (c *Client) GetWaterLevels(ctx context.Context, station string, start time.Time, dur time.Duration) (*DataResult, error) {
	return c.getData(ctx, &Query{
		Product:  WaterLevel,
		Station:  station,
		Start:    start,
		Duration: dur,
	})
}

// GetWaterTemperature fetches water temperature readings.
func (c *Client) GetWaterTemperature(ctx context.Context, station string, start time.Time, dur time.Duration) (*DataResult, error) {
	return c.getData(ctx, &Query{
		Product:  WaterTemperature,
		Station:  station,
		Start:    start,
		Duration: dur,
		Interval: "6",
	})
}

func (c *Client) getData(ctx context.Context, q *Query) (*DataResult, error) {
	var result DataResult
	if err := c.get(ctx, q, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, q *Query, into interface{}) error {
	// Build request URL first
	addr, err := url.Parse(c.dataURL)
	if err != nil {
		return err
	}
	addr.RawQuery = q.build().Encode()

	c.log.Debug("querying noaa",
		zap.String("product", string(q.Product)),
		zap.String("station", q.Station))
	return c.getJSON(ctx, addr.String(), into)
}

func (c *Client) getJSON(ctx context.Context, addr string, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode noaa response: %w", err)
	}
	return nil
}
