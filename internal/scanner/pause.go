package scanner

import (
	"context"
	"sync"
	"time"
)

// Pauser is a gate workers pass through before each request. While paused
// the gate is a channel that is closed on resume; while running it is nil.
// All methods are safe on a nil *Pauser, which never pauses.
type Pauser struct {
	mu     sync.Mutex
	resume chan struct{}
	since  time.Time
	total  time.Duration
}

// NewPauser creates a Pauser in the running state.
func NewPauser() *Pauser {
	return &Pauser{}
}

// Wait blocks while paused. It returns ctx.Err() if ctx ends first.
func (p *Pauser) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	p.mu.Lock()
	gate := p.resume
	p.mu.Unlock()
	if gate == nil {
		return ctx.Err()
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Toggle flips between paused and running and returns true if now paused.
func (p *Pauser) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resume != nil {
		p.total += time.Since(p.since)
		close(p.resume)
		p.resume = nil
		return false
	}
	p.resume = make(chan struct{})
	p.since = time.Now()
	return true
}

// IsPaused reports whether the gate is closed.
func (p *Pauser) IsPaused() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resume != nil
}

// PausedDuration is the time spent paused so far, including a pause in
// progress. Progress output subtracts it from elapsed time.
func (p *Pauser) PausedDuration() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.total
	if p.resume != nil {
		d += time.Since(p.since)
	}
	return d
}
