// Command evasim runs the EVA telemetry simulator and prints a HUD readout
// to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/eva-telemetry-sim/core"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/config"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/sim"
)

const maxFrameBuffer = 1 << 16

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, simOpts ...sim.Option) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("evasim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	duration := fs.Duration("duration", 30*time.Second, "simulated run length; 0 runs until interrupted")
	tick := fs.Duration("tick", cfg.TickInterval, "tick interval")
	accelerated := fs.Bool("accelerated", cfg.Accelerated, "tick as fast as possible instead of in real time")
	printEvery := fs.Int("print-every", 10, "print a HUD line every N ticks")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *printEvery < 1 {
		*printEvery = 1
	}

	log := logging.New(logging.Config{Level: *logLevel, Format: cfg.LogFormat, Output: stderr})
	s := sim.New(append([]sim.Option{sim.WithLogger(log)}, simOpts...)...)
	defer s.Close()

	frames, cancel := s.Subscribe(frameBuffer(*duration, *tick))
	defer cancel()

	runCfg := sim.Config{TickInterval: *tick, Accelerated: *accelerated, Duration: *duration}
	if err := s.Start(runCfg); err != nil {
		log.Error(ctx, "failed to start simulator", logging.Err(err))
		return 1
	}
	fmt.Fprintf(stdout, "EVA telemetry: duration=%s tick=%s accelerated=%v\n", *duration, *tick, *accelerated)

	done := s.Done()
	show := func(f sim.Frame) {
		if f.Snapshot.MissionTimeTicks%int64(*printEvery) == 0 {
			fmt.Fprintln(stdout, formatHUD(f))
		}
	}

loop:
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				break loop
			}
			show(f)
		case <-done:
			break loop
		case <-ctx.Done():
			_ = s.Stop()
			break loop
		}
	}
	for drained := false; !drained; {
		select {
		case f, ok := <-frames:
			if !ok {
				drained = true
				break
			}
			show(f)
		default:
			drained = true
		}
	}

	if err := s.Err(); err != nil {
		log.Error(ctx, "simulation aborted", logging.Err(err))
		return 1
	}
	final := s.Frame()
	fmt.Fprintf(stdout, "Simulation complete at %s (%d ticks).\n",
		core.FormatMissionTime(final.Snapshot.MissionTimeTicks), final.Snapshot.MissionTimeTicks)
	return 0
}

func frameBuffer(duration, tick time.Duration) int {
	if duration <= 0 || tick <= 0 {
		return 1024
	}
	return int(min(int64(duration/tick)+1, maxFrameBuffer))
}

func formatHUD(f sim.Frame) string {
	s := f.Snapshot
	line := fmt.Sprintf("[%s] pos=%03d %-8s RAD %.2f mSv/h  HR %3.0f bpm  O2 %.0f%%  SOLAR %3.0f%%  BATT %.1f%% (%s)  TEMP %d°C  SHELTER %dm",
		core.FormatMissionTime(s.MissionTimeTicks),
		s.Position,
		s.Phase,
		s.RadiationLevel,
		s.HeartRate,
		s.OxygenLevel,
		s.SolarExposure,
		s.SuitBattery,
		f.Battery,
		s.ExternalTemp,
		s.ShelterDistance,
	)
	if s.HazardActive {
		line += "  !! SOLAR FLARE: RETURN TO SHELTER"
	}
	return line
}
