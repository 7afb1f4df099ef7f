package sim

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/eva-telemetry-sim/core"
)

var testEpoch = time.Date(2031, time.July, 20, 20, 17, 0, 0, time.UTC)

type recordingMetrics struct {
	mu       sync.Mutex
	steps    int
	flares   int
	invalids int
	last     core.Snapshot
}

func (r *recordingMetrics) ObserveStep(snap core.Snapshot, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps++
	r.last = snap
}

func (r *recordingMetrics) FlareEntered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flares++
}

func (r *recordingMetrics) InvalidState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalids++
}

func stepN(t *testing.T, s *Simulator, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
}

func TestNewPublishesInitialFrame(t *testing.T) {
	s := New(WithEpoch(testEpoch))

	snap := s.Snapshot()
	want := core.InitialState().Snapshot()
	if snap != want {
		t.Fatalf("initial snapshot = %+v, want %+v", snap, want)
	}
	f := s.Frame()
	if !f.SimTime.Equal(testEpoch) {
		t.Fatalf("initial sim time = %v, want %v", f.SimTime, testEpoch)
	}
	if !f.Battery.Infinite {
		t.Fatalf("initial battery estimate = %v, want infinite", f.Battery)
	}
}

func TestStepMatchesPureStep(t *testing.T) {
	s := New(WithEpoch(testEpoch))
	stepN(t, s, 50)

	want, err := core.StepN(core.InitialState(), 50)
	if err != nil {
		t.Fatalf("core.StepN: %v", err)
	}
	if got := s.Snapshot(); got != want.Snapshot() {
		t.Fatalf("snapshot = %+v, want %+v", got, want.Snapshot())
	}
	if s.State() != want {
		t.Fatalf("state diverged from pure step")
	}

	f := s.Frame()
	if wantTime := testEpoch.Add(50 * DefaultTickInterval); !f.SimTime.Equal(wantTime) {
		t.Fatalf("sim time = %v, want %v", f.SimTime, wantTime)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	snap.Position = 150
	snap.HazardActive = true

	if got := s.Snapshot(); got.Position != 0 || got.HazardActive {
		t.Fatalf("mutating returned snapshot leaked into simulator: %+v", got)
	}
}

func TestDeterministicAcrossSimulators(t *testing.T) {
	a := New(WithEpoch(testEpoch))
	b := New(WithEpoch(testEpoch))
	for i := 0; i < 333; i++ {
		stepN(t, a, 1)
		stepN(t, b, 1)
		if a.Frame() != b.Frame() {
			t.Fatalf("tick %d: frames differ", i)
		}
	}
}

func TestJulianDate(t *testing.T) {
	// J2000.0 epoch.
	s := New(WithEpoch(time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)))
	if jd := s.Frame().JulianDate; math.Abs(jd-2451545.0) > 1e-6 {
		t.Fatalf("julian date = %v, want 2451545.0", jd)
	}

	half := julianDate(time.Date(2000, time.January, 1, 12, 0, 0, int(500*time.Millisecond), time.UTC))
	if want := 2451545.0 + 0.5/86400; math.Abs(half-want) > 1e-8 {
		t.Fatalf("julian date with fraction = %v, want %v", half, want)
	}
}

func TestInvalidStateLatches(t *testing.T) {
	bad := core.InitialState()
	bad.Position = -4
	metrics := &recordingMetrics{}
	s := New(WithInitialState(bad), WithMetricsRecorder(metrics))

	err := s.Step()
	if !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("Step error = %v, want ErrInvalidState", err)
	}
	if err2 := s.Step(); !errors.Is(err2, core.ErrInvalidState) {
		t.Fatalf("second Step error = %v, want latched ErrInvalidState", err2)
	}
	if err := s.Start(Config{TickInterval: time.Millisecond}); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("Start after failure = %v, want ErrInvalidState", err)
	}
	if metrics.invalids != 1 {
		t.Fatalf("invalid state count = %d, want 1", metrics.invalids)
	}
	if !errors.Is(s.Err(), core.ErrInvalidState) {
		t.Fatalf("Err() = %v", s.Err())
	}
}

func TestMetricsRecorderSeesFlareEntry(t *testing.T) {
	metrics := &recordingMetrics{}
	s := New(WithMetricsRecorder(metrics))
	stepN(t, s, 101)

	if metrics.steps != 101 {
		t.Fatalf("observed steps = %d, want 101", metrics.steps)
	}
	if metrics.flares != 1 {
		t.Fatalf("flare entries = %d, want 1", metrics.flares)
	}
	if metrics.last != s.Snapshot() {
		t.Fatalf("last observed snapshot differs from published snapshot")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s := New()
	defer s.Close()

	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop before Start = %v, want ErrNotRunning", err)
	}
	if err := s.Start(Config{TickInterval: time.Millisecond}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(Config{TickInterval: time.Millisecond}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if !s.Running() {
		t.Fatalf("Running() = false after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().MissionTimeTicks < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("simulator did not tick; mission time %d", s.Snapshot().MissionTimeTicks)
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	stopped := s.Snapshot().MissionTimeTicks
	time.Sleep(10 * time.Millisecond)
	if got := s.Snapshot().MissionTimeTicks; got != stopped {
		t.Fatalf("mission time advanced after Stop: %d -> %d", stopped, got)
	}
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second Stop = %v, want ErrNotRunning", err)
	}

	// Restart continues from the current state.
	if err := s.Start(Config{TickInterval: time.Millisecond}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
	if s.Snapshot().MissionTimeTicks < stopped {
		t.Fatalf("restart went backwards")
	}
}

func TestStartRejectsBadInterval(t *testing.T) {
	s := New()
	if err := s.Start(Config{}); !errors.Is(err, ErrBadTickInterval) {
		t.Fatalf("Start with zero interval = %v, want ErrBadTickInterval", err)
	}
	if s.Running() {
		t.Fatalf("Running() after rejected Start")
	}
}

func TestAcceleratedRunForDuration(t *testing.T) {
	s := New(WithEpoch(testEpoch))
	if err := s.Start(Config{TickInterval: 100 * time.Millisecond, Accelerated: true, Duration: 7500 * time.Millisecond}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("accelerated run did not finish")
	}

	snap := s.Snapshot()
	if snap.MissionTimeTicks != 75 {
		t.Fatalf("mission time = %d, want 75", snap.MissionTimeTicks)
	}
	if snap.Position != 150 || snap.HazardActive || snap.ShelterDistance != 0 {
		t.Fatalf("after 75 ticks: %+v", snap)
	}
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop after finished run = %v, want ErrNotRunning", err)
	}
}

func TestTimerStopsOnInvalidState(t *testing.T) {
	bad := core.InitialState()
	bad.SuitBattery = 10
	s := New(WithInitialState(bad))
	if err := s.Start(Config{TickInterval: time.Millisecond}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("tick loop kept running after invalid state")
	}
	if !errors.Is(s.Err(), core.ErrInvalidState) {
		t.Fatalf("Err() = %v, want ErrInvalidState", s.Err())
	}
	if s.Running() {
		t.Fatalf("Running() after fatal step")
	}
}

func TestConcurrentReadersSeeConsistentFrames(t *testing.T) {
	s := New()
	if err := s.Start(Config{TickInterval: time.Microsecond, Accelerated: true}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				snap := s.Snapshot()
				if snap.HazardActive != (snap.Position >= core.FlareStart && snap.Position < core.FlareEnd) {
					errs <- "hazard flag inconsistent with position"
					return
				}
				if snap.HazardActive && snap.ExternalTemp != core.FlareExternalTemp {
					errs <- "flare frame with nominal temperature"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}

func TestDirectStepWhileRunningIsSerialized(t *testing.T) {
	s := New()
	if err := s.Start(Config{TickInterval: time.Microsecond, Accelerated: true}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 500; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("direct Step: %v", err)
		}
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Every tick, direct or timed, went through core.Step exactly once.
	want, err := core.StepN(core.InitialState(), int(s.State().MissionTimeTicks))
	if err != nil {
		t.Fatalf("core.StepN: %v", err)
	}
	if s.State() != want {
		t.Fatalf("state after mixed stepping diverged from pure replay")
	}
}
