package cors

import "fmt"

// OriginKind says where a probe origin came from and, for generated
// origins, which trust bug it is designed to expose.
type OriginKind int

const (
	KindSupplied  OriginKind = iota // given by the user, assumed legitimate
	KindSelf                        // the target's own origin
	KindArbitrary                   // unrelated attacker domain
	KindNull                        // the opaque "null" origin
	KindPrefix                      // attacker domain ending in the target host
	KindSuffix                      // target host followed by attacker domain
	KindDowngrade                   // http:// variant of an https target
	KindSubdomain                   // made-up subdomain of the target
)

var kindNames = map[OriginKind]string{
	KindSupplied:  "supplied",
	KindSelf:      "self",
	KindArbitrary: "arbitrary",
	KindNull:      "null",
	KindPrefix:    "prefix",
	KindSuffix:    "suffix",
	KindDowngrade: "downgrade",
	KindSubdomain: "subdomain",
}

func (k OriginKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k OriginKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind is the inverse of OriginKind.String.
func ParseKind(name string) (OriginKind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindSupplied, fmt.Errorf("unknown origin kind %q", name)
}

func (k *OriginKind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Trusted reports whether a server allowing this origin is expected.
func (k OriginKind) Trusted() bool {
	return k == KindSupplied || k == KindSelf
}

// reflectionSeverity is the base severity of a server accepting an origin of
// this kind. Credentials raise it to critical.
func (k OriginKind) reflectionSeverity() Severity {
	switch k {
	case KindArbitrary, KindNull, KindPrefix, KindSuffix:
		return SeverityHigh
	case KindDowngrade, KindSubdomain:
		return SeverityMedium
	default:
		return SeverityNone
	}
}
