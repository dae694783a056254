package noaa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"
)

const earthRadiusKm = 6371

const catalogKey = "stations"

// catalogTimeout bounds a shared catalog load, which outlives any one caller.
const catalogTimeout = 30 * time.Second

// ErrNoStations is returned when the catalog has no stations to choose from.
var ErrNoStations = errors.New("no stations in catalog")

// Stations returns the catalog of water level stations. The raw catalog is
// cached; concurrent misses share one request. A caller that gives up
// returns ctx's error without cancelling the shared request.
func (c *Client) Stations(ctx context.Context) ([]Station, error) {
	raw, ok := c.catalog.Get(catalogKey)
	if !ok {
		load := c.loads.DoChan(catalogKey, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogTimeout)
			defer cancel()
			return c.fetchCatalog(ctx)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-load:
			if res.Err != nil {
				return nil, res.Err
			}
			if res.Shared {
				c.log.Debug("shared station catalog load")
			}
			raw = res.Val.([]byte)
		}
	}

	var list stationList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode station catalog: %w", err)
	}
	return list.Stations, nil
}

func (c *Client) fetchCatalog(ctx context.Context) ([]byte, error) {
	addr, err := url.Parse(c.stationsURL)
	if err != nil {
		return nil, err
	}
	vals := addr.Query()
	vals.Set("type", "waterlevels")
	addr.RawQuery = vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read station catalog: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("station catalog is not valid json")
	}
	c.catalog.Set(catalogKey, raw)
	c.log.Info("loaded station catalog", zap.Int("bytes", len(raw)))
	return raw, nil
}

// Nearest returns up to n stations closest to lat/long, nearest first, with
// Distance filled in.
func (c *Client) Nearest(ctx context.Context, lat, long float64, n int) ([]Station, error) {
	stations, err := c.Stations(ctx)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, ErrNoStations
	}
	return nearest(stations, lat, long, n), nil
}

func nearest(stations []Station, lat, long float64, n int) []Station {
	result := make([]Station, len(stations))
	copy(result, stations)
	for i := range result {
		result[i].Distance = Haversine(lat, long, result[i].Lat, result[i].Lng)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Distance < result[j].Distance
	})
	if n > 0 && n < len(result) {
		result = result[:n]
	}
	return result
}

// Haversine is the great-circle distance in km between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dlat := rad(lat2 - lat1)
	dlon := rad(lon2 - lon1)
	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Pow(math.Sin(dlon/2), 2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
