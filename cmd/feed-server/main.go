// Command feed-server runs the EVA telemetry simulator and serves its frames
// over gRPC, with Prometheus metrics on a side HTTP listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/config"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/feed"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/observability"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/sim"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	flag.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "TCP address the feed gRPC server listens on")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics; empty disables")
	flag.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "simulation tick interval")
	flag.BoolVar(&cfg.Accelerated, "accelerated", cfg.Accelerated, "tick as fast as possible instead of in real time")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "feed server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. A fatal simulator failure does not end
// the process: the feed keeps answering snapshot reads and reports
// NOT_SERVING to health checks.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener, simOpts ...sim.Option) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewTelemetryCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	opts := append([]sim.Option{sim.WithLogger(log), sim.WithMetricsRecorder(collector)}, simOpts...)
	s := sim.New(opts...)
	defer s.Close()

	srv := feed.NewServer(feed.NewService(s, log, feed.WithWatchBuffer(cfg.WatchBuffer)), log, collector)

	if err := s.Start(sim.Config{TickInterval: cfg.TickInterval, Accelerated: cfg.Accelerated}); err != nil {
		return fmt.Errorf("start simulator: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(lis) }()
	log.Info(ctx, "serving telemetry feed",
		logging.String("addr", lis.Addr().String()),
		logging.Duration("tick_interval", cfg.TickInterval),
		logging.Bool("accelerated", cfg.Accelerated),
	)

	var runErr error
	simDone := s.Done()
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case err := <-serveErr:
			runErr = fmt.Errorf("grpc serve: %w", err)
			break wait
		case <-simDone:
			simDone = nil
			if err := s.Err(); err != nil {
				log.Error(ctx, "simulator failed; feed marked NOT_SERVING", logging.Err(err))
				srv.SetServing(false)
				// Ends open watch streams.
				s.Close()
			}
		}
	}

	log.Info(context.Background(), "shutting down feed server")
	s.Close()
	srv.GracefulStop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.TelemetryCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
