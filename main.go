package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/spencer-p/tidedash/pkg/config"
	"github.com/spencer-p/tidedash/pkg/dashboard"
	"github.com/spencer-p/tidedash/pkg/handlers"
	"github.com/spencer-p/tidedash/pkg/metrics"
	"github.com/spencer-p/tidedash/pkg/noaa"
	"github.com/spencer-p/tidedash/pkg/timetricks"
	"github.com/spencer-p/tidedash/pkg/visualize"
	"github.com/spencer-p/tidedash/pkg/weather"
)

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	env, err := config.Load()
	if err != nil {
		log.Fatal(err.Error())
	}
	logger, err := newLogger(env.Debug)
	if err != nil {
		log.Fatal(err.Error())
	}
	defer logger.Sync()

	// Both were checked by Load.
	loc, _ := env.Location()
	format, _ := env.Format()
	norm := timetricks.NewNormalizer(loc)

	tides, err := noaa.NewClient(logger.Named("noaa"), env.StationCacheTTL,
		noaa.WithDataURL(env.NOAAURL),
		noaa.WithStationsURL(env.StationsURL))
	if err != nil {
		logger.Fatal("failed to create noaa client", zap.Error(err))
	}
	nws := weather.NewClient(logger.Named("weather"),
		weather.WithBaseURL(env.WeatherURL),
		weather.WithUserAgent(env.UserAgent))

	dash := dashboard.New(logger.Named("dashboard"), dashboard.NewUpstream(tides, nws), norm,
		dashboard.WithFetchTimeout(env.FetchTimeout),
		dashboard.WithRefreshInterval(env.RefreshInterval))
	surface := visualize.NewSurface(env.ChartWidth, env.ChartHeight, format, norm)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go dash.Run(ctx)
	dash.SurfaceAvailable(surface)
	if env.StartCoordinate.Set {
		dash.SetCoordinate(env.StartCoordinate.Coordinate)
	}

	r := mux.NewRouter().StrictSlash(true)
	r.Use(metrics.LatencyHandler)
	s := r.PathPrefix(env.Prefix).Subrouter()
	handlers.Register(s, env.Prefix, logger.Named("http"), dash, surface)

	srv := &http.Server{
		Handler:      r,
		Addr:         "0.0.0.0:" + env.Port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		dash.ReleaseSurface()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	logger.Info("listening and serving",
		zap.String("addr", srv.Addr),
		zap.String("prefix", env.Prefix),
		zap.String("time_zone", loc.String()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}
