package hoardlib

import (
	"context"
	"sync"
)

// States are the process-wide run flags shared by the orchestrator and
// the downloaders. RUNNING gates every loop iteration so a pause blocks
// transfers; SHUTTING_DOWN marks the final wind-down.
type States struct {
	mu       sync.Mutex
	running  chan struct{}
	shutdown chan struct{}
	shutOnce sync.Once
}

// NewStates creates the flags with RUNNING unset.
func NewStates() *States {
	s := &States{
		running:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}
	return s
}

// SetRunning opens the RUNNING gate.
func (s *States) SetRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.running:
	default:
		close(s.running)
	}
}

// Pause closes the RUNNING gate; in-flight transfers block at their next
// iteration until SetRunning is called again.
func (s *States) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.running:
		s.running = make(chan struct{})
	default:
	}
}

// WaitRunning blocks until RUNNING is set or ctx is done.
func (s *States) WaitRunning(ctx context.Context) error {
	s.mu.Lock()
	ch := s.running
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-s.shutdown:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetShuttingDown marks the run as winding down. Idempotent.
func (s *States) SetShuttingDown() {
	s.shutOnce.Do(func() { close(s.shutdown) })
}

// ShuttingDown reports whether shutdown has been signalled.
func (s *States) ShuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// Done exposes the shutdown channel for select loops.
func (s *States) Done() <-chan struct{} {
	return s.shutdown
}
