package filter

import (
	"github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/scanner"
)

// SeverityFilter hides results whose highest finding is below min.
type SeverityFilter struct {
	min cors.Severity
}

func NewSeverityFilter(min cors.Severity) *SeverityFilter {
	return &SeverityFilter{min: min}
}

func (f *SeverityFilter) Name() string { return "severity" }

func (f *SeverityFilter) ShouldFilter(result *scanner.ScanResult) bool {
	return result.Verdict.MaxSeverity() < f.min
}

// AllowedFilter hides results the browser would block.
type AllowedFilter struct{}

func NewAllowedFilter() AllowedFilter { return AllowedFilter{} }

func (AllowedFilter) Name() string { return "allowed" }

func (AllowedFilter) ShouldFilter(result *scanner.ScanResult) bool {
	return !result.Verdict.Allowed
}
