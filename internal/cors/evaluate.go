// Package cors models the browser side of Cross-Origin Resource Sharing:
// it parses the Access-Control-* headers a server returns and decides, the
// way the Fetch standard does, whether a given cross-origin request would be
// let through.
package cors

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Request describes the cross-origin request being simulated.
type Request struct {
	Origin      string
	Kind        OriginKind
	Method      string
	Headers     []string // request header names the page would set
	Credentials bool     // fetch(..., {credentials: "include"})
}

// Finding is a single observation about a policy.
type Finding struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Verdict is the result of running the browser's CORS check.
type Verdict struct {
	Allowed  bool      `json:"allowed"`
	Reason   string    `json:"reason,omitempty"` // why the browser would block, empty when allowed
	Findings []Finding `json:"findings,omitempty"`
}

// MaxSeverity returns the highest severity among the findings.
func (v Verdict) MaxSeverity() Severity {
	top := SeverityNone
	for _, f := range v.Findings {
		if f.Severity > top {
			top = f.Severity
		}
	}
	return top
}

// Finding IDs.
const (
	FindingReflectedOrigin    = "reflected-origin"
	FindingNullOrigin         = "null-origin"
	FindingWildcardOrigin     = "wildcard-origin"
	FindingCredentialWildcard = "invalid-credentialed-wildcard"
	FindingMissingVary        = "missing-vary"
	FindingWildcardMethods    = "wildcard-methods"
	FindingWildcardHeaders    = "wildcard-headers"
)

// Methods that never need to be listed in Access-Control-Allow-Methods.
var safelistedMethods = map[string]struct{}{
	http.MethodGet:  {},
	http.MethodHead: {},
	http.MethodPost: {},
}

// Header names (lowercase) that never need to be listed in
// Access-Control-Allow-Headers. Content-Type is only safelisted for form
// and text values, which a probe cannot know, so it is not listed here.
var safelistedHeaders = map[string]struct{}{
	"accept":           {},
	"accept-language":  {},
	"content-language": {},
}

// IsSimple reports whether req can be sent without a preflight.
func IsSimple(req Request) bool {
	if _, ok := safelistedMethods[req.Method]; !ok {
		return false
	}
	for _, h := range req.Headers {
		if _, ok := safelistedHeaders[strings.ToLower(h)]; !ok {
			return false
		}
	}
	return true
}

// Evaluate runs the Fetch CORS and preflight checks for req against p and
// collects findings about the policy.
func Evaluate(req Request, p Policy) Verdict {
	v := Verdict{Allowed: true}

	reason := checkOrigin(req, p)
	if reason == "" {
		reason = checkMethod(req, p)
	}
	if reason == "" {
		reason = checkHeaders(req, p)
	}
	if reason != "" {
		v.Allowed = false
		v.Reason = reason
	}

	v.Findings = findings(req, p)
	return v
}

// CheckResponse runs only the origin and credentials part of the check,
// which is all a browser applies to the response of the actual request after
// a successful preflight. It returns the block reason, or "" when allowed.
func CheckResponse(req Request, p Policy) string {
	return checkOrigin(req, p)
}

func checkOrigin(req Request, p Policy) string {
	switch {
	case p.AllowOrigin == "":
		return "no " + HeaderAllowOrigin + " header"
	case p.AllowOrigin == "*":
		if req.Credentials {
			return "wildcard origin is not allowed for credentialed requests"
		}
	case p.AllowOrigin != req.Origin:
		return fmt.Sprintf("%s %q does not match origin %q", HeaderAllowOrigin, p.AllowOrigin, req.Origin)
	}
	if req.Credentials && !p.AllowCredentials {
		return HeaderAllowCredentials + " is not \"true\""
	}
	return ""
}

func checkMethod(req Request, p Policy) string {
	if _, ok := safelistedMethods[req.Method]; ok {
		return ""
	}
	if slices.Contains(p.AllowMethods, req.Method) {
		return ""
	}
	if !req.Credentials && slices.Contains(p.AllowMethods, "*") {
		return ""
	}
	return fmt.Sprintf("method %s is not in %s", req.Method, HeaderAllowMethods)
}

func checkHeaders(req Request, p Policy) string {
	wildcard := !req.Credentials && slices.Contains(p.AllowHeaders, "*")
	for _, h := range req.Headers {
		name := strings.ToLower(h)
		if _, ok := safelistedHeaders[name]; ok {
			continue
		}
		if containsFold(p.AllowHeaders, name) {
			continue
		}
		// Authorization is never covered by the wildcard.
		if wildcard && name != "authorization" {
			continue
		}
		return fmt.Sprintf("header %s is not in %s", h, HeaderAllowHeaders)
	}
	return ""
}

func findings(req Request, p Policy) []Finding {
	var out []Finding

	echoed := p.AllowOrigin != "" && p.AllowOrigin != "*" && p.AllowOrigin == req.Origin

	if echoed && !req.Kind.Trusted() {
		sev := req.Kind.reflectionSeverity()
		if p.AllowCredentials {
			sev = SeverityCritical
		}
		id := FindingReflectedOrigin
		msg := fmt.Sprintf("%s origin %s is allowed", req.Kind, req.Origin)
		if req.Origin == "null" {
			id = FindingNullOrigin
			msg = "the null origin is allowed"
		}
		if p.AllowCredentials {
			msg += " with credentials"
		}
		out = append(out, Finding{ID: id, Severity: sev, Message: msg})
	}

	if p.AllowOrigin == "*" {
		out = append(out, Finding{ID: FindingWildcardOrigin, Severity: SeverityLow, Message: "any origin may read responses"})
		if p.AllowCredentials {
			out = append(out, Finding{
				ID:       FindingCredentialWildcard,
				Severity: SeverityInfo,
				Message:  "wildcard origin combined with credentials; browsers ignore the response",
			})
		}
	}

	if echoed && !p.VaryOrigin && req.Kind != KindSelf {
		out = append(out, Finding{
			ID:       FindingMissingVary,
			Severity: SeverityLow,
			Message:  "origin is echoed without Vary: Origin; shared caches may serve it to other origins",
		})
	}

	if slices.Contains(p.AllowMethods, "*") {
		out = append(out, Finding{ID: FindingWildcardMethods, Severity: SeverityInfo, Message: "all methods allowed"})
	}
	if slices.Contains(p.AllowHeaders, "*") {
		out = append(out, Finding{ID: FindingWildcardHeaders, Severity: SeverityInfo, Message: "all request headers allowed"})
	}

	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
