package sim

import "sync"

// Subscribe returns a channel that receives every frame published after the
// call. A subscriber that falls more than buffer frames behind misses frames;
// stepping never waits on it. The returned cancel func closes the channel and
// is safe to call more than once.
func (s *Simulator) Subscribe(buffer int) (<-chan Frame, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Frame, buffer)

	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	return ch, sync.OnceFunc(func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	})
}

// Subscribers returns the number of open subscriptions.
func (s *Simulator) Subscribers() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

func (s *Simulator) broadcast(f Frame) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- f:
		default:
		}
	}
}
