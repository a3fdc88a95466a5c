package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Progress tracks and displays scan progress on a terminal line.
type Progress struct {
	w         io.Writer
	total     atomic.Int64
	completed atomic.Int64
	filtered  atomic.Int64
	errors    atomic.Int64
	findings  atomic.Int64
	start     time.Time
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	mu        sync.Mutex // serializes writes to w
	quiet     bool
}

// NewProgress creates a progress tracker writing to w. Call Start to begin
// display updates.
func NewProgress(w io.Writer, total int, quiet bool) *Progress {
	p := &Progress{
		w:     w,
		start: time.Now(),
		done:  make(chan struct{}),
		quiet: quiet,
	}
	p.total.Store(int64(total))
	return p
}

// Start begins periodically printing progress.
func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Redraw()
			case <-p.done:
				p.Redraw()
				p.mu.Lock()
				fmt.Fprint(p.w, "\n")
				p.mu.Unlock()
				return
			}
		}
	}()
}

// AddTotal grows the expected request count, e.g. when a new target starts.
func (p *Progress) AddTotal(n int) {
	p.total.Add(int64(n))
}

// Increment records a completed request.
func (p *Progress) Increment() {
	p.completed.Add(1)
}

// IncrementFiltered records a filtered result.
func (p *Progress) IncrementFiltered() {
	p.filtered.Add(1)
}

// IncrementErrors records an error.
func (p *Progress) IncrementErrors() {
	p.errors.Add(1)
}

// IncrementFindings records a reported result with findings.
func (p *Progress) IncrementFindings() {
	p.findings.Add(1)
}

// ClearLine erases the progress line so a result can be printed in its
// place. Follow it with Redraw.
func (p *Progress) ClearLine() {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprint(p.w, "\r\033[K")
	p.mu.Unlock()
}

// Redraw prints the current progress line.
func (p *Progress) Redraw() {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, p.line())
}

// Stop ends the progress display and waits for the final line to be
// written. It is safe to call more than once.
func (p *Progress) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Progress) line() string {
	completed := p.completed.Load()
	total := p.total.Load()
	elapsed := time.Since(p.start).Seconds()
	rate := float64(0)
	if elapsed > 0 {
		rate = float64(completed) / elapsed
	}

	pct := float64(0)
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}

	eta := ""
	if rate > 0 && completed < total {
		remaining := float64(total-completed) / rate
		eta = fmt.Sprintf("ETA: %s", time.Duration(remaining*float64(time.Second)).Round(time.Second))
	}

	return fmt.Sprintf("\r\033[K[%3.0f%%] %d/%d | %.0f req/s | Findings: %d | Filtered: %d | Errors: %d | %s",
		pct, completed, total, rate,
		p.findings.Load(), p.filtered.Load(), p.errors.Load(), eta)
}
