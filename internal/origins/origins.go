package origins

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/failwarn/corstester/internal/cors"
	"github.com/failwarn/corstester/internal/validate"
)

// DefaultAttackerDomain is reserved (RFC 6761) and never resolves, so probes
// built on it cannot reach a real third party.
const DefaultAttackerDomain = "corstester.invalid"

// Probe is one Origin header value to test.
type Probe struct {
	Origin string
	Kind   cors.OriginKind
}

// Generate builds the standard probe set for target. Origins that collapse
// to the same value (e.g. no downgrade for an http target) appear once.
func Generate(target *url.URL, attacker string) []Probe {
	if attacker == "" {
		attacker = DefaultAttackerDomain
	}
	attacker = strings.ToLower(strings.TrimSuffix(attacker, "."))
	host := strings.ToLower(target.Hostname())
	port := target.Port()

	withPort := func(h string) string {
		if port == "" {
			return h
		}
		return net.JoinHostPort(h, port)
	}

	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}

	var probes []Probe
	add := seenAdder(&probes)

	if self, err := validate.Origin(scheme + "://" + withPort(bracket(host))); err == nil {
		add(self, cors.KindSelf)
	}
	add(scheme+"://"+attacker, cors.KindArbitrary)
	add(validate.NullOrigin, cors.KindNull)

	// Literal IPs have no labels to splice.
	if net.ParseIP(host) == nil && host != "" {
		add(scheme+"://"+host+"."+attacker, cors.KindSuffix)
		add(scheme+"://"+firstLabel(attacker)+host, cors.KindPrefix)
		add(scheme+"://"+withPort("corstester-sub."+host), cors.KindSubdomain)
	}
	if scheme == "https" {
		add("http://"+withPort(bracket(host)), cors.KindDowngrade)
	}
	return probes
}

// Load reads origins, one per line, from path. Blank lines and lines
// starting with # are skipped. Each origin is validated and canonicalised;
// duplicates are dropped after canonicalisation.
func Load(path string) ([]Probe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading origins %s: %w", path, err)
	}
	return Parse(strings.Split(string(data), "\n"))
}

// Parse validates a list of user-supplied origins.
func Parse(lines []string) ([]Probe, error) {
	var probes []Probe
	add := seenAdder(&probes)

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		origin, err := validate.Origin(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		add(origin, cors.KindSupplied)
	}
	return probes, nil
}

// Merge appends extra to base, dropping origins already in base. A
// supplied origin that duplicates a generated one keeps the generated kind.
func Merge(base, extra []Probe) []Probe {
	out := make([]Probe, 0, len(base)+len(extra))
	add := seenAdder(&out)
	for _, p := range base {
		add(p.Origin, p.Kind)
	}
	for _, p := range extra {
		add(p.Origin, p.Kind)
	}
	return out
}

func seenAdder(dst *[]Probe) func(origin string, kind cors.OriginKind) {
	seen := make(map[string]struct{})
	return func(origin string, kind cors.OriginKind) {
		if _, ok := seen[origin]; ok {
			return
		}
		seen[origin] = struct{}{}
		*dst = append(*dst, Probe{Origin: origin, Kind: kind})
	}
}

func firstLabel(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	return label
}

func bracket(host string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}
