// Package validate holds the input checks that guard every request corstester
// sends or accepts.
//
// The boolean predicates IsValidURL and IsValidHTTPMethod never fail: they are
// thin wrappers over URL and Method, which report why an input was rejected.
// Callers that only need a verdict use the predicates; callers that surface a
// message use the error forms and test the category with errors.Is:
//
//	if _, err := validate.URL(raw); errors.Is(err, validate.ErrInvalidURL) {
//	    // reject
//	}
package validate
