// Package sim runs the EVA telemetry state machine on a tick loop and
// publishes immutable frames to any number of readers.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/signalsfoundry/eva-telemetry-sim/core"
	"github.com/signalsfoundry/eva-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/eva-telemetry-sim/timectrl"
)

var (
	// ErrAlreadyRunning is returned by Start while the tick loop is active.
	ErrAlreadyRunning = errors.New("simulator already running")
	// ErrNotRunning is returned by Stop when no tick loop is active.
	ErrNotRunning = errors.New("simulator not running")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("simulator closed")
	// ErrBadTickInterval is returned by Start for a non-positive interval.
	ErrBadTickInterval = errors.New("tick interval must be positive")
)

// DefaultTickInterval is the HUD refresh cadence.
const DefaultTickInterval = 100 * time.Millisecond

// Config controls a single Start.
type Config struct {
	TickInterval time.Duration
	// Accelerated ticks as fast as steps complete instead of waiting for
	// the wall clock.
	Accelerated bool
	// Duration bounds the run in simulated time; 0 runs until Stop.
	Duration time.Duration
}

// Frame is one published readout: the snapshot plus values derived from it
// for display.
type Frame struct {
	Snapshot   core.Snapshot
	Battery    core.BatteryEstimate
	SimTime    time.Time
	JulianDate float64
}

// MetricsRecorder receives per-step observations.
type MetricsRecorder interface {
	ObserveStep(snap core.Snapshot, took time.Duration)
	FlareEntered()
	InvalidState()
}

type noopMetrics struct{}

func (noopMetrics) ObserveStep(core.Snapshot, time.Duration) {}
func (noopMetrics) FlareEntered()                            {}
func (noopMetrics) InvalidState()                            {}

// Simulator owns a core.State and advances it through core.Step. Steps are
// serialized; readers only ever see fully built frames.
type Simulator struct {
	// stepMu guards state, failed, and tick, and serializes steps.
	stepMu sync.Mutex
	state  core.State
	failed error
	tick   time.Duration
	epoch  time.Time

	frame atomic.Pointer[Frame]

	// runMu serializes Start, Stop, and Close. The tick loop never takes it.
	runMu  sync.Mutex
	ticker atomic.Pointer[timectrl.TimeController]
	done   <-chan struct{}

	subsMu  sync.Mutex
	subs    map[int]chan Frame
	nextSub int
	closed  bool

	log     logging.Logger
	metrics MetricsRecorder
}

// Option customises Simulator construction.
type Option func(*Simulator)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Simulator) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithInitialState seeds the simulator with st instead of
// core.InitialState. st is not validated until the first step.
func WithInitialState(st core.State) Option {
	return func(s *Simulator) { s.state = st }
}

// WithEpoch sets the wall-clock time of mission tick 0.
func WithEpoch(t time.Time) Option {
	return func(s *Simulator) { s.epoch = t.UTC() }
}

// New creates a simulator and publishes its initial frame.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		state:   core.InitialState(),
		tick:    DefaultTickInterval,
		epoch:   time.Now().UTC(),
		subs:    make(map[int]chan Frame),
		log:     logging.Noop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	f := s.buildFrame(s.state)
	s.frame.Store(&f)
	return s
}

// Start begins periodic stepping. The caller owns the returned lifecycle and
// must call Stop or Close to release the ticker.
func (s *Simulator) Start(cfg Config) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	if err := s.Err(); err != nil {
		return err
	}
	if tc := s.ticker.Load(); tc != nil && tc.Running() {
		return ErrAlreadyRunning
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrBadTickInterval, cfg.TickInterval)
	}

	s.stepMu.Lock()
	s.tick = cfg.TickInterval
	simNow := s.simTime(s.state.MissionTimeTicks)
	s.stepMu.Unlock()

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(simNow, cfg.TickInterval, mode)
	tc.AddListener(func(time.Time) {
		// Failures are latched and logged inside Step.
		_ = s.Step()
	})

	s.ticker.Store(tc)
	done, err := tc.Start(context.Background(), cfg.Duration)
	if err != nil {
		s.ticker.Store(nil)
		return err
	}
	s.done = done

	s.log.Info(context.Background(), "simulator started",
		logging.Duration("tick_interval", cfg.TickInterval),
		logging.String("mode", mode.String()),
		logging.Duration("duration", cfg.Duration),
	)
	return nil
}

// Stop halts stepping and releases the ticker. It returns ErrNotRunning, and
// does nothing else, when no tick loop is active.
func (s *Simulator) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.stopLocked()
}

func (s *Simulator) stopLocked() error {
	tc := s.ticker.Load()
	if tc == nil || !tc.Stop() {
		return ErrNotRunning
	}
	s.log.Info(context.Background(), "simulator stopped",
		logging.Int64("mission_time_ticks", s.Snapshot().MissionTimeTicks),
	)
	return nil
}

// Running reports whether the tick loop is active.
func (s *Simulator) Running() bool {
	tc := s.ticker.Load()
	return tc != nil && tc.Running()
}

// Done returns a channel closed when the current run ends, whether through
// Stop, an elapsed Duration, or a fatal step. It is closed immediately when
// the simulator has never been started.
func (s *Simulator) Done() <-chan struct{} {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Close stops the simulator if running and closes every subscription.
func (s *Simulator) Close() {
	s.runMu.Lock()
	_ = s.stopLocked()
	s.runMu.Unlock()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Step performs one synchronous advance and publishes the resulting frame.
// After a step fails with core.ErrInvalidState the simulator stays failed:
// every later Step and Start returns the same error.
func (s *Simulator) Step() error {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	if s.failed != nil {
		return s.failed
	}

	started := time.Now()
	prev := s.state
	next, err := core.Step(prev)
	if err != nil {
		s.failed = err
		s.metrics.InvalidState()
		s.log.Error(context.Background(), "simulation halted on invalid state",
			logging.Err(err),
			logging.Int64("mission_time_ticks", prev.MissionTimeTicks),
			logging.Int("position", prev.Position),
		)
		if tc := s.ticker.Load(); tc != nil {
			tc.Cancel()
		}
		return err
	}

	s.state = next
	f := s.buildFrame(next)
	s.frame.Store(&f)
	s.metrics.ObserveStep(f.Snapshot, time.Since(started))
	s.logTransition(prev, next)
	s.broadcast(f)
	return nil
}

// Err returns the latched step failure, if any.
func (s *Simulator) Err() error {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	return s.failed
}

// Snapshot returns the latest published readings.
func (s *Simulator) Snapshot() core.Snapshot {
	return s.frame.Load().Snapshot
}

// Frame returns the latest published frame.
func (s *Simulator) Frame() Frame {
	return *s.frame.Load()
}

// State returns a copy of the internal state, for replays and tests.
func (s *Simulator) State() core.State {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	return s.state
}

func (s *Simulator) buildFrame(st core.State) Frame {
	snap := st.Snapshot()
	at := s.simTime(st.MissionTimeTicks)
	return Frame{
		Snapshot:   snap,
		Battery:    core.EstimateBatteryTime(snap),
		SimTime:    at,
		JulianDate: julianDate(at),
	}
}

func (s *Simulator) simTime(ticks int64) time.Time {
	return s.epoch.Add(time.Duration(ticks) * s.tick)
}

// julianDate adds the sub-second remainder that satellite.JDay drops.
func julianDate(t time.Time) float64 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return jd + float64(t.Nanosecond())/float64(24*time.Hour)
}

func (s *Simulator) logTransition(prev, next core.State) {
	ctx := context.Background()
	switch {
	case !prev.HazardActive && next.HazardActive:
		s.metrics.FlareEntered()
		s.log.Warn(ctx, "solar flare detected; retreat to shelter",
			logging.Int64("mission_time_ticks", next.MissionTimeTicks),
			logging.Int("position", next.Position),
			logging.Int("shelter_distance_m", next.ShelterDistance),
		)
	case prev.HazardActive && !next.HazardActive:
		s.log.Info(ctx, "solar flare cleared",
			logging.Int64("mission_time_ticks", next.MissionTimeTicks),
			logging.Float64("suit_battery_pct", next.SuitBattery),
		)
	case next.Position < prev.Position:
		s.log.Debug(ctx, "patrol cycle complete",
			logging.Int64("mission_time_ticks", next.MissionTimeTicks),
		)
	}
}

func (s *Simulator) isClosed() bool {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return s.closed
}
