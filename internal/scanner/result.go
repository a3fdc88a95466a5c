package scanner

import (
	"time"

	"github.com/failwarn/corstester/internal/cors"
)

// WorkItem is one origin/method pair to probe.
type WorkItem struct {
	Origin string
	Kind   cors.OriginKind
	Method string
}

// Key identifies the item across runs (resume state, de-duplication).
func (w WorkItem) Key() string {
	return w.Method + " " + w.Origin
}

// ScanResult holds the outcome of a single probe.
type ScanResult struct {
	WorkItem
	URL        string
	Preflight  bool // evaluated from an OPTIONS response rather than the actual one
	StatusCode int
	Policy     cors.Policy
	Verdict    cors.Verdict
	Duration   time.Duration
	Error      error

	Filtered     bool
	FilterReason string
}
