package validate

import (
	"fmt"
	"net"
	"strings"
)

// NullOrigin is the opaque origin browsers send from sandboxed frames,
// file: documents and some redirects.
const NullOrigin = "null"

// Origin checks that candidate is a serialised web origin and returns its
// canonical form: lowercase scheme://host[:port] with the default port
// dropped. The literal "null" is accepted as is.
func Origin(candidate string) (string, error) {
	if candidate == NullOrigin {
		return candidate, nil
	}

	u, err := URL(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidOrigin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidOrigin, u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: userinfo not allowed", ErrInvalidOrigin)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return "", fmt.Errorf("%w: %q has more than scheme, host and port", ErrInvalidOrigin, candidate)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return u.Scheme + "://" + host, nil
}
