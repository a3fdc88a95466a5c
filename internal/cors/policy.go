package cors

import (
	"net/http"
	"strconv"
	"strings"
)

// Response header names.
const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"
	HeaderVary             = "Vary"
)

// Request header names.
const (
	HeaderOrigin         = "Origin"
	HeaderRequestMethod  = "Access-Control-Request-Method"
	HeaderRequestHeaders = "Access-Control-Request-Headers"
)

// Policy is what a server advertised through its Access-Control-* headers.
type Policy struct {
	AllowOrigin      string   `json:"allow_origin,omitempty"`
	AllowCredentials bool     `json:"allow_credentials"`
	AllowMethods     []string `json:"allow_methods,omitempty"`
	AllowHeaders     []string `json:"allow_headers,omitempty"`
	ExposeHeaders    []string `json:"expose_headers,omitempty"`
	MaxAge           int      `json:"max_age"` // -1 when absent
	VaryOrigin       bool     `json:"vary_origin"`
}

// ParsePolicy reads the CORS response headers from h. Repeated headers are
// merged, list values are split on commas and trimmed.
func ParsePolicy(h http.Header) Policy {
	p := Policy{
		AllowOrigin: strings.TrimSpace(h.Get(HeaderAllowOrigin)),
		// Fetch requires the exact byte sequence "true".
		AllowCredentials: strings.TrimSpace(h.Get(HeaderAllowCredentials)) == "true",
		AllowMethods:     splitList(h.Values(HeaderAllowMethods)),
		AllowHeaders:     splitList(h.Values(HeaderAllowHeaders)),
		ExposeHeaders:    splitList(h.Values(HeaderExposeHeaders)),
		MaxAge:           -1,
	}

	if v := strings.TrimSpace(h.Get(HeaderMaxAge)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.MaxAge = n
		}
	}

	for _, v := range splitList(h.Values(HeaderVary)) {
		if v == "*" || strings.EqualFold(v, HeaderOrigin) {
			p.VaryOrigin = true
			break
		}
	}
	return p
}

// Present reports whether any allow-* header was sent at all.
func (p Policy) Present() bool {
	return p.AllowOrigin != "" || p.AllowCredentials || len(p.AllowMethods) > 0 || len(p.AllowHeaders) > 0
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
