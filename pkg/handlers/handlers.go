package handlers

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"path"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spencer-p/tidedash/pkg/dashboard"
)

//go:embed static
var content embed.FS

// maxBody bounds the location payload.
const maxBody = 1 << 12

// Dashboard accepts coordinates and serves snapshots.
type Dashboard interface {
	SetCoordinate(dashboard.Coordinate)
	Snapshot() *dashboard.Snapshot
}

// Frames serves the last rendered chart.
type Frames interface {
	Frame() (buf []byte, contentType string, ok bool)
}

// Register adds the dashboard routes to r. Prefix is the path r is mounted
// under, used to build links in the page.
func Register(r *mux.Router, prefix string, log *zap.Logger, d Dashboard, frames Frames) {
	r.Handle("/", makeIndexHandler(log, prefix)).Methods(http.MethodGet)
	r.Handle("/api/v1/location", makeLocationHandler(log, d)).Methods(http.MethodPost)
	r.Handle("/api/v1/dashboard", makeSnapshotHandler(log, d)).Methods(http.MethodGet)
	r.Handle("/api/v1/chart", makeChartHandler(frames)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
}

type indexInput struct {
	Location  string
	Dashboard string
	Chart     string
}

func makeIndexHandler(log *zap.Logger, prefix string) http.HandlerFunc {
	indexTemplate := template.Must(template.ParseFS(content, "static/index.template.html"))
	input := indexInput{
		Location:  pathJoinPreservePrefix(prefix, "/api/v1/location"),
		Dashboard: pathJoinPreservePrefix(prefix, "/api/v1/dashboard"),
		Chart:     pathJoinPreservePrefix(prefix, "/api/v1/chart"),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTemplate.Execute(w, input); err != nil {
			log.Error("failed to execute template", zap.Error(err))
		}
	}
}

func makeLocationHandler(log *zap.Logger, d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c dashboard.Coordinate
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
		if err := dec.Decode(&c); err != nil {
			http.Error(w, fmt.Sprintf("bad location: %v", err), http.StatusBadRequest)
			return
		}
		if err := validCoordinate(c); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Debug("location", zap.Stringer("coordinate", c), zap.Float64("accuracy", c.Accuracy))
		d.SetCoordinate(c)
		w.WriteHeader(http.StatusAccepted)
	}
}

func validCoordinate(c dashboard.Coordinate) error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", c.Lat)
	}
	if c.Long < -180 || c.Long > 180 {
		return fmt.Errorf("longitude %v out of range", c.Long)
	}
	return nil
}

func makeSnapshotHandler(log *zap.Logger, d Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(d.Snapshot()); err != nil {
			log.Error("failed to encode snapshot", zap.Error(err))
		}
	}
}

func makeChartHandler(frames Frames) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buf, contentType, ok := frames.Frame()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		w.Write(buf)
	}
}

func pathJoinPreservePrefix(prefix string, suffix string) string {
	trimmedPrefix := path.Join(prefix, "")
	result := path.Join(prefix, suffix)
	if result == trimmedPrefix {
		return prefix
	}
	return result
}
