package sim

import (
	"testing"
)

func TestSubscribeReceivesFrames(t *testing.T) {
	s := New()
	frames, cancel := s.Subscribe(8)
	defer cancel()

	stepN(t, s, 3)

	for want := int64(1); want <= 3; want++ {
		f := <-frames
		if f.Snapshot.MissionTimeTicks != want {
			t.Fatalf("frame tick = %d, want %d", f.Snapshot.MissionTimeTicks, want)
		}
	}
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	s := New()
	frames, cancel := s.Subscribe(2)
	defer cancel()

	stepN(t, s, 10)

	if got := len(frames); got != 2 {
		t.Fatalf("buffered frames = %d, want 2", got)
	}
	first := <-frames
	if first.Snapshot.MissionTimeTicks != 1 {
		t.Fatalf("first buffered tick = %d, want 1", first.Snapshot.MissionTimeTicks)
	}
	if s.Snapshot().MissionTimeTicks != 10 {
		t.Fatalf("stepping was held back by subscriber")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	s := New()
	frames, cancel := s.Subscribe(1)
	if s.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", s.Subscribers())
	}

	cancel()
	cancel()

	if _, ok := <-frames; ok {
		t.Fatalf("channel still open after cancel")
	}
	if s.Subscribers() != 0 {
		t.Fatalf("subscribers = %d after cancel, want 0", s.Subscribers())
	}
	stepN(t, s, 1)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := New()
	frames, cancel := s.Subscribe(1)
	defer cancel()

	s.Close()
	if _, ok := <-frames; ok {
		t.Fatalf("channel still open after Close")
	}

	late, lateCancel := s.Subscribe(1)
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Fatalf("subscription after Close is open")
	}
	if err := s.Start(Config{TickInterval: DefaultTickInterval}); err != ErrClosed {
		t.Fatalf("Start after Close = %v, want ErrClosed", err)
	}
}
