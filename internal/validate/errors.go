// errors.go defines the sentinel errors returned by the validators.
//
// Callers match on the category with errors.Is. The validators wrap these
// with fmt.Errorf to add the offending value, so the message carries the
// detail while the sentinel stays comparable.

package validate

import "errors"

var (
	// ErrInvalidURL is returned for URLs that are unparsable, not absolute,
	// or contain characters a request line cannot carry.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidMethod is returned for methods that are not an RFC 9110 token.
	ErrInvalidMethod = errors.New("invalid http method")
	// ErrInvalidOrigin is returned for values that are not a serialized origin.
	ErrInvalidOrigin = errors.New("invalid origin")
)
