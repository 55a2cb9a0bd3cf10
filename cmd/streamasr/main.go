// Command streamasr streams a raw PCM audio file through a vendor speech
// recognition session and prints results as structured logs. It also serves
// /metrics, /healthz and /readyz on the configured listen address.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/verbatim-ai/streamasr/internal/app"
	"github.com/verbatim-ai/streamasr/internal/config"
	"github.com/verbatim-ai/streamasr/internal/health"
	"github.com/verbatim-ai/streamasr/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "-", "raw PCM input file, or - for stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "streamasr: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "streamasr: %v\n", err)
		}
		return 1
	}

	// The level var lets the config watcher hot-apply log level changes.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("streamasr starting",
		"version", version,
		"config", *configPath,
		"vendor", cfg.Vendor.Name,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	input, err := openInput(*inputPath)
	if err != nil {
		slog.Error("failed to open input", "err", err)
		return 1
	}
	defer input.Close()

	runner, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise runner", "err", err)
		return 1
	}
	defer func() {
		if err := runner.Close(); err != nil {
			slog.Warn("runner close error", "err", err)
		}
	}()

	// Config watcher hot-applies the log level; everything else needs a
	// restart and is only reported.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Compute(old, new)
		if diff.LogLevelChanged {
			level.Set(diff.NewLogLevel.Level())
			slog.Info("log level updated", "level", diff.NewLogLevel)
		}
		if len(diff.RestartRequired) > 0 {
			slog.Warn("config changes require a restart", "sections", diff.RestartRequired)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: newHTTPHandler(runner),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer stop() // session done, unwind the HTTP server too
		if err := runner.Run(gctx, input); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newHTTPHandler builds the mux serving metrics and health probes.
func newHTTPHandler(runner *app.Runner) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(
		health.SessionChecker("session", runner.State),
	)
	h.Register(mux)

	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// openInput opens the PCM source, with "-" meaning stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
