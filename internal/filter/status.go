package filter

import "github.com/failwarn/corstester/internal/scanner"

// StatusFilter hides results by the status code of the evaluated response:
// the preflight's, or the actual one for simple requests.
type StatusFilter struct {
	codes map[int]struct{}
	// allow means codes is an allow-list; otherwise a deny-list.
	allow bool
}

// NewStatusFilter returns a filter for -i/-x. A non-empty include wins over
// exclude; with both empty nothing is filtered.
func NewStatusFilter(include, exclude []int) *StatusFilter {
	list, allow := exclude, false
	if len(include) > 0 {
		list, allow = include, true
	}
	f := &StatusFilter{codes: make(map[int]struct{}, len(list)), allow: allow}
	for _, code := range list {
		f.codes[code] = struct{}{}
	}
	return f
}

func (f *StatusFilter) Name() string { return "status" }

func (f *StatusFilter) ShouldFilter(result *scanner.ScanResult) bool {
	_, listed := f.codes[result.StatusCode]
	return listed != f.allow
}
