package timectrl

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAlreadyStarted is returned by Start while a previous run is still active.
var ErrAlreadyStarted = errors.New("time controller already started")

// SimClock is the read side of the controller. Consumers that only need the
// current simulation time depend on this instead of *TimeController.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Ticks returns the number of ticks elapsed since StartTime.
	Ticks() int64
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances one Tick per wall-clock Tick.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow while still
	// stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController owns the tick loop. It decides when a tick happens; the
// registered listeners decide what a tick does. Listeners run sequentially
// on the loop goroutine, so a tick never overlaps the previous one.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       int64

	listeners []func(time.Time)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTimeController constructs a controller. It does not start ticking.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks returns the number of ticks delivered so far.
func (tc *TimeController) Ticks() int64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// AddListener registers a callback invoked on every tick. Listeners added
// while running take effect on the next Start.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Running reports whether the tick loop is active.
func (tc *TimeController) Running() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.done != nil
}

// Start runs the tick loop in a separate goroutine until ctx is cancelled,
// Stop is called, or duration of simulation time has elapsed (0 runs
// forever). The returned channel is closed when the loop exits and its
// ticker has been released.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) (<-chan struct{}, error) {
	if tc.Tick <= 0 {
		return nil, errors.New("time controller tick must be positive")
	}

	tc.mu.Lock()
	if tc.done != nil {
		tc.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	tc.cancel = cancel
	tc.done = done
	listeners := append([]func(time.Time){}, tc.listeners...)
	simTime := tc.currentTime
	tc.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			tc.mu.Lock()
			if tc.done == done {
				tc.done = nil
				tc.cancel = nil
			}
			tc.mu.Unlock()
			close(done)
		}()

		var ticks <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			ticks = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if ticks != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticks:
				}
			}
			if ctx.Err() != nil {
				return
			}

			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.ticks++
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done, nil
}

// Stop ends the tick loop and waits for it to release its ticker. It reports
// false if the loop was not running. Listeners must use Cancel instead, since
// the loop cannot wait for itself.
func (tc *TimeController) Stop() bool {
	done := tc.Cancel()
	if done == nil {
		return false
	}
	<-done
	return true
}

// Cancel asks the tick loop to exit without waiting. The returned channel
// closes once it has; it is nil if the loop was not running.
func (tc *TimeController) Cancel() <-chan struct{} {
	tc.mu.Lock()
	cancel, done := tc.cancel, tc.done
	tc.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	return done
}

// SetTime moves the simulation clock, for replays and tests.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}
