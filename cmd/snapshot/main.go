// Command snapshot fetches the tide series for a coordinate once and writes
// the chart to a file.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spencer-p/tidedash/pkg/align"
	"github.com/spencer-p/tidedash/pkg/dashboard"
	"github.com/spencer-p/tidedash/pkg/lifecycle"
	"github.com/spencer-p/tidedash/pkg/noaa"
	"github.com/spencer-p/tidedash/pkg/timetricks"
	"github.com/spencer-p/tidedash/pkg/visualize"
	"github.com/spencer-p/tidedash/pkg/weather"
)

var (
	lat, long     float64
	outputPath    string
	format        string
	timeZone      string
	width, height int
	timeout       time.Duration
	dump          bool
	verbose       bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "snapshot --lat LAT --long LONG",
		Short: "Render the tide chart for a coordinate",
		Long: `snapshot looks up the NOAA station nearest the coordinate, aligns its
predicted and observed water levels, and writes the chart.`,
		Args: cobra.NoArgs,
		RunE: run,
	}

	rootCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude in degrees")
	rootCmd.Flags().Float64Var(&long, "long", 0, "Longitude in degrees")
	rootCmd.Flags().StringVarP(&outputPath, "out", "o", "", "Output file (default: tides.<format>)")
	rootCmd.Flags().StringVar(&format, "format", "png", "Chart format: png or svg")
	rootCmd.Flags().StringVar(&timeZone, "tz", "Local", "Time zone for labels")
	rootCmd.Flags().IntVar(&width, "width", 1200, "Chart width")
	rootCmd.Flags().IntVar(&height, "height", 300, "Chart height")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time allowed for fetching")
	rootCmd.Flags().BoolVar(&dump, "dump", false, "Dump the aligned series to stdout")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log requests")
	rootCmd.MarkFlagRequired("lat")
	rootCmd.MarkFlagRequired("long")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	f, err := visualize.ParseFormat(format)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return fmt.Errorf("bad time zone: %w", err)
	}
	if outputPath == "" {
		outputPath = "tides." + string(f)
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}

	tides, err := noaa.NewClient(logger, time.Hour)
	if err != nil {
		return err
	}
	upstream := dashboard.NewUpstream(tides, weather.NewClient(logger))
	c := dashboard.Coordinate{Lat: lat, Long: long}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var preds, levels dashboard.StationSeries
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		preds, err = upstream.Predictions(gctx, c)
		return err
	})
	g.Go(func() (err error) {
		levels, err = upstream.WaterLevels(gctx, c)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	norm := timetricks.NewNormalizer(loc)
	res, err := align.Align(norm, []align.Series{
		preds.Series(dashboard.TideDataset),
		levels.Series(dashboard.LevelsDataset),
	})
	if err != nil {
		return err
	}
	if dump {
		spew.Dump(preds.Station, res)
	}

	surface := visualize.NewSurface(width, height, f, norm)
	chart := lifecycle.NewManager(logger, norm, dashboard.TideDataset, dashboard.LevelsDataset)
	if err := chart.EnsureInstance(surface); err != nil {
		return err
	}
	if err := chart.ApplyAligned(res.Axis, res.Values); err != nil {
		return err
	}
	buf, _, ok := surface.Frame()
	if !ok {
		return fmt.Errorf("station %s had nothing to draw", preds.Station.ID)
	}
	if err := os.WriteFile(outputPath, buf, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Printf("%s (%s, %.1f km): %d points, %d dropped -> %s\n",
		preds.Station.Name, preds.Station.ID, preds.Station.Distance, res.Len(), res.Dropped, outputPath)
	return nil
}
