package filter

import "github.com/failwarn/corstester/internal/scanner"

// Filter decides whether a scan result should be hidden from output.
type Filter interface {
	Name() string
	ShouldFilter(result *scanner.ScanResult) bool
}

// Chain applies filters in order, stopping at the first match.
type Chain struct {
	filters []Filter
}

// NewChain returns a chain holding filters. Nil entries are skipped.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{}
	for _, f := range filters {
		c.Add(f)
	}
	return c
}

// Add appends a filter to the chain.
func (c *Chain) Add(f Filter) {
	if f == nil {
		return
	}
	c.filters = append(c.filters, f)
}

// Apply runs the filters in order and reports the name of the first one that
// hides the result. Errored results are never filtered.
func (c *Chain) Apply(result *scanner.ScanResult) (bool, string) {
	if result.Error != nil {
		return false, ""
	}
	for _, f := range c.filters {
		if f.ShouldFilter(result) {
			return true, f.Name()
		}
	}
	return false, ""
}
