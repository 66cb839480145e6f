package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platformbuilds/pstated/internal/config"
	"github.com/platformbuilds/pstated/internal/engine"
	"github.com/platformbuilds/pstated/internal/nvapi"
	"github.com/platformbuilds/pstated/internal/nvml"
	"github.com/platformbuilds/pstated/internal/selftelemetry"
	"github.com/platformbuilds/pstated/internal/version"
)

func main() {
	cfgPath := flag.String("config", "", "path to config yaml (defaults apply when empty)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("pstated %s (%s/%s)", version.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	// Log startup info
	log.Printf("pstated %s starting", version.Version())
	log.Printf("  iterations before switch: %d", cfg.IterationsBeforeSwitch)
	log.Printf("  performance states: high=%d low=%d", cfg.PerformanceStateHigh, cfg.PerformanceStateLow)
	log.Printf("  sleep interval: %s", cfg.SleepInterval)
	log.Printf("  temperature threshold: %d", cfg.TemperatureThreshold)
	if cfg.Fallback.Disabled {
		log.Printf("  clock fallback: disabled")
	}
	if len(cfg.GPUs) > 0 {
		log.Printf("  managed GPU ids: %v", cfg.GPUs)
	}

	mux := http.NewServeMux()
	st := selftelemetry.InstallHandlers(mux)
	srv := &http.Server{Addr: cfg.SelfTelemetry.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	metrics := engine.NewMetrics(cfg.SelfTelemetry.NS, prometheus.DefaultRegisterer)
	eng := engine.New(cfg, nvml.New(), nvapi.New(), metrics)
	if err := eng.Start(); err != nil {
		if cerr := eng.Close(); cerr != nil {
			log.Printf("close: %v", cerr)
		}
		log.Fatalf("start: %v", err)
	}
	st.SetReady(true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		log.Printf("HTTP server listening on %s", cfg.SelfTelemetry.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		st.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := eng.Close(); cerr != nil {
		log.Printf("close: %v", cerr)
	}
	if err != nil {
		log.Fatalf("pstated: %v", err)
	}
	log.Println("pstated: shut down cleanly")
}
