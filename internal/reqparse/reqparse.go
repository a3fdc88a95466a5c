// Package reqparse reads raw HTTP requests, such as a Burp Suite "copy to
// file" export, so a scan can replay the cross-origin request a real page
// made.
package reqparse

import (
	"bufio"
	"fmt"
	"mime"
	"os"
	"sort"
	"strings"

	"github.com/failwarn/corstester/internal/validate"
)

// ParsedRequest holds the extracted data from a raw HTTP request file.
type ParsedRequest struct {
	Method  string
	URL     string // full URL reconstructed from Host + request line
	Headers map[string]string

	// Origin is the request's Origin header, normalized. Empty when absent.
	Origin string
	// RequestHeaders lists the headers a page would have to set itself, i.e.
	// the ones a browser announces in Access-Control-Request-Headers.
	RequestHeaders []string
	// Credentials is set when the request carried cookies.
	Credentials bool
}

// Headers the browser sets itself. Pages cannot set them, so they never
// appear in a preflight.
var forbiddenHeaders = map[string]struct{}{
	"accept-charset":    {},
	"accept-encoding":   {},
	"connection":        {},
	"content-length":    {},
	"cookie":            {},
	"date":              {},
	"host":              {},
	"keep-alive":        {},
	"origin":            {},
	"referer":           {},
	"te":                {},
	"trailer":           {},
	"transfer-encoding": {},
	"upgrade":           {},
	"user-agent":        {},
	"via":               {},
}

var simpleContentTypes = map[string]struct{}{
	"application/x-www-form-urlencoded": {},
	"multipart/form-data":               {},
	"text/plain":                        {},
}

// ParseFile reads a raw HTTP request and extracts the target URL, method,
// headers and Origin. The method and URL must pass validation.
func ParseFile(path string) (*ParsedRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening request file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB lines for large cookies

	// Request line: PUT /api/items?id=1 HTTP/1.1
	if !scanner.Scan() {
		return nil, fmt.Errorf("request file is empty")
	}
	requestLine := strings.TrimSpace(scanner.Text())
	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid request line: %q", requestLine)
	}
	method := parts[0]
	if err := validate.Method(method); err != nil {
		return nil, fmt.Errorf("request line: %w", err)
	}
	target := parts[1]

	headers := make(map[string]string)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			break // end of headers
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}

	rawURL, err := buildURL(target, headers, parts)
	if err != nil {
		return nil, err
	}
	if _, err := validate.URL(rawURL); err != nil {
		return nil, fmt.Errorf("request target: %w", err)
	}

	parsed := &ParsedRequest{
		Method:  method,
		URL:     rawURL,
		Headers: make(map[string]string, len(headers)),
	}
	for key, val := range headers {
		k := strings.ToLower(key)
		switch k {
		case "origin":
			origin, err := validate.Origin(val)
			if err != nil {
				return nil, fmt.Errorf("origin header: %w", err)
			}
			parsed.Origin = origin
			continue
		case "cookie":
			parsed.Credentials = true
		case "host", "content-length", "accept-encoding":
			continue
		}
		parsed.Headers[key] = val
		if needsPreflight(k, val) {
			parsed.RequestHeaders = append(parsed.RequestHeaders, k)
		}
	}
	sort.Strings(parsed.RequestHeaders)

	return parsed, nil
}

// buildURL reconstructs the absolute URL from the request target and Host
// header. Absolute-form targets (sent to proxies) are used as they are.
func buildURL(target string, headers map[string]string, parts []string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}

	host := headerValue(headers, "Host")
	if host == "" {
		return "", fmt.Errorf("request file missing Host header")
	}
	if !strings.HasPrefix(target, "/") {
		return "", fmt.Errorf("invalid request target: %q", target)
	}

	// Burp exports do not say whether TLS was used. Default to https unless
	// port 80 is explicit.
	scheme := "https"
	if len(parts) >= 3 && strings.HasPrefix(strings.ToUpper(parts[2]), "HTTP/1") && strings.HasSuffix(host, ":80") {
		scheme = "http"
	}
	return scheme + "://" + host + target, nil
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// needsPreflight reports whether a page setting this header would trigger
// a preflight listing it.
func needsPreflight(name, value string) bool {
	if _, ok := forbiddenHeaders[name]; ok {
		return false
	}
	if strings.HasPrefix(name, "sec-") || strings.HasPrefix(name, "proxy-") {
		return false
	}
	switch name {
	case "accept", "accept-language", "content-language":
		return false
	case "content-type":
		mt, _, err := mime.ParseMediaType(value)
		if err != nil {
			return true
		}
		_, simple := simpleContentTypes[mt]
		return !simple
	}
	return true
}
