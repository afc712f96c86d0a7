package sim

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrStalled is returned when no progress happens within the stall timeout.
	ErrStalled = errors.New("simulation stalled")
	// ErrClosed is returned to waiters once the round signal has been aborted.
	ErrClosed = errors.New("round signal closed")
)

// RoundSignal publishes the completed-round counter. The aggregator is the only
// writer; node actors wait on it. Every Advance closes the current changed
// channel so all waiters wake at once.
type RoundSignal struct {
	mu      sync.Mutex
	round   int
	done    bool
	err     error
	changed chan struct{}
}

func NewRoundSignal() *RoundSignal {
	return &RoundSignal{changed: make(chan struct{})}
}

// Advance increments the round counter. When stop is true the waiters are
// told the simulation is over. The counter and the stop flag change together.
func (s *RoundSignal) Advance(stop bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.round
	}
	s.round++
	s.done = stop
	close(s.changed)
	s.changed = make(chan struct{})
	return s.round
}

// Abort releases every waiter with err. Later calls are ignored.
func (s *RoundSignal) Abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	s.done = true
	s.err = err
	close(s.changed)
	s.changed = make(chan struct{})
}

// Round returns the number of completed rounds.
func (s *RoundSignal) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// Continue reports whether further rounds will be published.
func (s *RoundSignal) Continue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

// WaitUntil blocks until at least target rounds are complete. It returns true
// when the caller should run another round. A zero stall waits forever.
func (s *RoundSignal) WaitUntil(ctx context.Context, target int, stall time.Duration) (bool, error) {
	var timeout <-chan time.Time
	if stall > 0 {
		t := time.NewTimer(stall)
		defer t.Stop()
		timeout = t.C
	}
	for {
		s.mu.Lock()
		round, done, err, changed := s.round, s.done, s.err, s.changed
		s.mu.Unlock()

		if err != nil {
			return false, err
		}
		if round >= target {
			return !done, nil
		}
		if done {
			return false, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timeout:
			return false, ErrStalled
		}
	}
}
