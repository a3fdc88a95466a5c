package filter

import (
	"strings"
	"sync"

	"github.com/failwarn/corstester/internal/scanner"
)

// denialKey identifies a denial by what the server sent back, ignoring the
// probe origin. A server that ignores Origin answers every probe the same
// way, so after a few of these the rest add nothing.
type denialKey struct {
	method     string
	statusCode int
	policy     string
}

// DuplicateFilter hides repeated identical denials. Allowed results and
// results with findings always pass.
type DuplicateFilter struct {
	mu        sync.Mutex
	seen      map[denialKey]int
	threshold int
}

// NewDuplicateFilter returns a filter that lets threshold identical denials
// through before hiding the rest.
func NewDuplicateFilter(threshold int) *DuplicateFilter {
	return &DuplicateFilter{
		seen:      make(map[denialKey]int),
		threshold: threshold,
	}
}

func (d *DuplicateFilter) Name() string { return "duplicate" }

func (d *DuplicateFilter) ShouldFilter(result *scanner.ScanResult) bool {
	if result.Verdict.Allowed || len(result.Verdict.Findings) > 0 {
		return false
	}
	p := result.Policy
	key := denialKey{
		method:     result.Method,
		statusCode: result.StatusCode,
		policy: strings.Join([]string{
			p.AllowOrigin,
			strings.Join(p.AllowMethods, ","),
			strings.Join(p.AllowHeaders, ","),
		}, "|"),
	}

	d.mu.Lock()
	d.seen[key]++
	n := d.seen[key]
	d.mu.Unlock()

	return n > d.threshold
}
