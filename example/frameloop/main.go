// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command frameloop runs a small frame loop on the compute pool with
// telemetry installed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/asyncscope"
	"github.com/z5labs/telemetry/config"
	"github.com/z5labs/telemetry/guard"
	"github.com/z5labs/telemetry/intern"
	"github.com/z5labs/telemetry/lifecycle"
	"github.com/z5labs/telemetry/schedule"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var (
	movementScope = telemetry.NewScope("movement")
	physicsScope  = telemetry.NewScope("physics")
)

// defaults are applied before the config file and environment.
var defaults = config.Map{
	"console": map[string]any{
		"enabled": true,
	},
	"bridge": map[string]any{
		"install": true,
	},
	"workers": map[string]any{
		"install": true,
	},
}

type flags struct {
	configPath  string
	frames      int
	frameTime   time.Duration
	metricsAddr string
}

func main() {
	var f flags
	cmd := &cobra.Command{
		Use:   "frameloop",
		Short: "Run a frame loop with telemetry installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&f.configPath, "config", "frameloop.yaml", "optional yaml config file")
	cmd.Flags().IntVar(&f.frames, "frames", 60, "number of frames to run")
	cmd.Flags().DurationVar(&f.frameTime, "frame-time", 16*time.Millisecond, "minimum time between frames")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	cfgFile := config.NewOptionalFileReader(os.DirFS("."), f.configPath)
	defer cfgFile.Close()

	lc := &lifecycle.Context{}
	ctx = lifecycle.NewContext(ctx, lc)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lc.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}()

	reg := prometheus.NewRegistry()
	g, err := guard.FromSources(
		ctx,
		[]config.Source{
			defaults,
			config.FromFile(cfgFile, f.configPath),
			config.FromEnv("TELEMETRY_"),
		},
		guard.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}
	log := g.Logger().With(slog.String("component", "frameloop"))

	mainCtx := g.Dispatcher().RegisterThread(telemetry.WithThreadName(ctx, "main"))
	defer telemetry.UnregisterThread(mainCtx)

	app := schedule.New()
	app.AddSystems(schedule.Update,
		schedule.SystemFunc("movement", movement),
		schedule.SystemFunc("physics", physics),
	)

	eg, egctx := errgroup.WithContext(mainCtx)
	var srv *http.Server
	if f.metricsAddr != "" {
		srv = &http.Server{
			Addr:    f.metricsAddr,
			Handler: otelhttp.NewHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), "metrics"),
		}
		eg.Go(func() error {
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	eg.Go(func() error {
		if srv != nil {
			defer srv.Shutdown(context.Background())
		}
		return loop(egctx, app, f, log)
	})
	return eg.Wait()
}

func loop(ctx context.Context, app *schedule.App, f flags, log *slog.Logger) error {
	var slots asyncscope.Registry
	streaming := slots.Slot("asset_streaming")

	ticker := time.NewTicker(f.frameTime)
	defer ticker.Stop()

	for frame := range f.frames {
		if frame%10 == 0 {
			streaming.Begin(ctx)
		}
		if err := app.Update(ctx); err != nil {
			return err
		}
		if frame%10 == 9 {
			streaming.End(ctx)
			telemetry.FlushThread(ctx)
			telemetry.FlushLogs()
			telemetry.FlushMetrics()
			log.Info("streamed assets", slog.Int("frame", frame))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	streaming.End(ctx)
	return nil
}

var movementProps = intern.Props(intern.Property{Key: "system", Value: "movement"})

func movement(ctx context.Context) error {
	defer telemetry.BeginSpan(ctx, movementScope).End()

	telemetry.EmitIntMetric("entities_moved", "count", 128, movementProps)
	return nil
}

var physicsProps = intern.Props(intern.Property{Key: "system", Value: "physics"})

func physics(ctx context.Context) error {
	defer telemetry.BeginSpan(ctx, physicsScope).End()

	start := time.Now()
	time.Sleep(time.Millisecond)
	telemetry.EmitMetric("step_time", "ms", float64(time.Since(start).Microseconds())/1000, physicsProps)
	telemetry.Debugf("physics step took %s", time.Since(start))
	return nil
}
