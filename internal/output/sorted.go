package output

import (
	"cmp"
	"slices"
	"strings"

	"github.com/failwarn/corstester/internal/scanner"
)

// Sort keys accepted by NewSortedWriter.
var SortKeys = []string{"severity", "origin", "method", "status"}

// SortedWriter holds every result until the footer, then hands them to the
// wrapped writer in order. Ties keep arrival order.
type SortedWriter struct {
	inner   Writer
	compare func(a, b *scanner.ScanResult) int
	results []*scanner.ScanResult
}

// NewSortedWriter wraps inner. sortBy must be one of SortKeys.
func NewSortedWriter(inner Writer, sortBy string) *SortedWriter {
	return &SortedWriter{inner: inner, compare: comparator(sortBy)}
}

func comparator(key string) func(a, b *scanner.ScanResult) int {
	switch key {
	case "severity":
		// Worst first.
		return func(a, b *scanner.ScanResult) int {
			return cmp.Compare(b.Verdict.MaxSeverity(), a.Verdict.MaxSeverity())
		}
	case "origin":
		return func(a, b *scanner.ScanResult) int { return strings.Compare(a.Origin, b.Origin) }
	case "method":
		return func(a, b *scanner.ScanResult) int { return strings.Compare(a.Method, b.Method) }
	case "status":
		return func(a, b *scanner.ScanResult) int { return cmp.Compare(a.StatusCode, b.StatusCode) }
	}
	return func(a, b *scanner.ScanResult) int { return 0 }
}

func (w *SortedWriter) WriteHeader() error { return w.inner.WriteHeader() }

func (w *SortedWriter) WriteResult(result *scanner.ScanResult) error {
	cpy := *result
	w.results = append(w.results, &cpy)
	return nil
}

func (w *SortedWriter) WriteFooter(stats Stats) error {
	slices.SortStableFunc(w.results, w.compare)
	for _, r := range w.results {
		if err := w.inner.WriteResult(r); err != nil {
			return err
		}
	}
	return w.inner.WriteFooter(stats)
}

func (w *SortedWriter) Close() error { return w.inner.Close() }
