package scanner

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second

	// Connection errors in a row before they count as rate limiting.
	errorBurst = 3
)

// Throttler holds the per-request delay. In adaptive mode it doubles the
// delay on 429/503 or bursts of connection errors and halves it back toward
// the base once responses are healthy again. A nil *Throttler never delays.
type Throttler struct {
	mu      sync.Mutex
	base    time.Duration
	current time.Duration
	strikes int
	adapt   bool
	log     io.Writer // nil = silent
}

// NewThrottler creates a throttler with a fixed base delay. log receives
// back-off notices; pass nil to stay quiet.
func NewThrottler(base time.Duration, adaptive bool, log io.Writer) *Throttler {
	return &Throttler{base: base, current: base, adapt: adaptive, log: log}
}

// Delay returns the wait before the next request.
func (t *Throttler) Delay() time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// RecordStatus feeds a response status into the throttler.
func (t *Throttler) RecordStatus(code int) {
	if t == nil || !t.adapt {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable {
		t.strikes++
		t.backoff(fmt.Sprintf("rate limited (HTTP %d)", code))
		return
	}
	t.strikes = 0
	if t.current <= t.base {
		return
	}
	// Below the smallest back-off step, drop straight back to base.
	next := t.current / 2
	if next < minBackoff {
		next = t.base
	}
	next = max(next, t.base)
	if next != t.current {
		t.current = next
		t.logf("[+] Recovering, delay now %s/req\n", t.current)
	}
}

// RecordError counts a transport error; a burst of them backs off.
func (t *Throttler) RecordError() {
	if t == nil || !t.adapt {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.strikes++
	if t.strikes >= errorBurst {
		t.backoff("repeated connection errors")
	}
}

// backoff must be called with mu held.
func (t *Throttler) backoff(why string) {
	next := min(max(t.current*2, minBackoff), maxBackoff)
	if next == t.current {
		return
	}
	t.current = next
	t.logf("[!] %s, backing off to %s/req\n", why, t.current)
}

func (t *Throttler) logf(format string, args ...any) {
	if t.log != nil {
		fmt.Fprintf(t.log, "\n"+format, args...)
	}
}
