package validate

import (
	"fmt"
	"net/http"
)

// Canonical order, used for listings.
var methodOrder = [...]string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodHead,
	http.MethodOptions,
}

// Never mutated after init.
var methodSet = func() map[string]struct{} {
	s := make(map[string]struct{}, len(methodOrder))
	for _, m := range methodOrder {
		s[m] = struct{}{}
	}
	return s
}()

// Method returns nil if m is one of the supported HTTP methods. The
// comparison is exact: no case folding, no trimming.
func Method(m string) error {
	if _, ok := methodSet[m]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, m)
	}
	return nil
}

// IsValidHTTPMethod reports whether m is exactly one of GET, POST, PUT,
// PATCH, DELETE, HEAD or OPTIONS.
func IsValidHTTPMethod(m string) bool {
	_, ok := methodSet[m]
	return ok
}

// Methods returns the supported methods in canonical order. The slice is a
// copy and may be modified by the caller.
func Methods() []string {
	out := make([]string, len(methodOrder))
	copy(out, methodOrder[:])
	return out
}
