package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Signal tracks the last success/failure of a recurring background
// operation (e.g. the monitoring flush loop) and exposes it as a Checker.
// An operation that has never run reports healthy.
type Signal struct {
	mu          sync.Mutex
	lastOK      time.Time
	lastErr     error
	lastErrTime time.Time
}

// NewSignal creates a new background-operation health signal.
func NewSignal() *Signal {
	return &Signal{}
}

// Succeeded records a successful run.
func (s *Signal) Succeeded() {
	s.mu.Lock()
	s.lastOK = time.Now()
	s.lastErr = nil
	s.mu.Unlock()
}

// Failed records a failed run.
func (s *Signal) Failed(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.lastErrTime = time.Now()
	s.mu.Unlock()
}

// Checker returns a health Checker reporting the most recent outcome.
func (s *Signal) Checker(name string) Checker {
	return func(ctx context.Context) Status {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.lastErr != nil {
			return Status{
				Name:    name,
				Healthy: false,
				Detail:  fmt.Sprintf("last failure %s ago: %v", time.Since(s.lastErrTime).Round(time.Second), s.lastErr),
			}
		}
		st := Status{Name: name, Healthy: true}
		if !s.lastOK.IsZero() {
			st.Detail = fmt.Sprintf("last success %s ago", time.Since(s.lastOK).Round(time.Second))
		}
		return st
	}
}
