package validate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// Schemes whose URLs are meaningless without a host.
var authoritySchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"ws":    {},
	"wss":   {},
	"ftp":   {},
}

// URL parses candidate as an absolute URL.
//
// Rules:
//   - empty input is rejected
//   - input is not trimmed; leading or trailing whitespace is rejected
//   - a scheme is required
//   - http, https, ws, wss and ftp need a host; other schemes need a host,
//     an opaque part (mailto:a@b) or a path (file:///etc/hosts)
//   - an explicit port must fit in 0-65535
//   - non-ASCII hosts must survive IDNA lookup conversion
func URL(candidate string) (*url.URL, error) {
	if candidate == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if strings.TrimSpace(candidate) != candidate {
		return nil, fmt.Errorf("%w: leading or trailing whitespace", ErrInvalidURL)
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: missing scheme", ErrInvalidURL)
	}

	if _, ok := authoritySchemes[u.Scheme]; ok {
		if u.Hostname() == "" {
			return nil, fmt.Errorf("%w: %s url without host", ErrInvalidURL, u.Scheme)
		}
	} else if u.Host == "" && u.Opaque == "" && u.Path == "" {
		return nil, fmt.Errorf("%w: nothing after scheme", ErrInvalidURL)
	}

	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n > 65535 {
			return nil, fmt.Errorf("%w: port %q out of range", ErrInvalidURL, p)
		}
	}

	if host := u.Hostname(); !isASCII(host) {
		if _, err := idna.Lookup.ToASCII(host); err != nil {
			return nil, fmt.Errorf("%w: host %q: %w", ErrInvalidURL, host, err)
		}
	}

	return u, nil
}

// IsValidURL reports whether candidate is an absolute URL accepted by URL.
func IsValidURL(candidate string) bool {
	_, err := URL(candidate)
	return err == nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
