package pin

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
)

// Prefix is the optional algorithm prefix accepted on configured pins.
const Prefix = "sha256/"

// Kind selects which part of the leaf certificate is hashed.
type Kind string

const (
	// KindCertificate hashes the full DER-encoded certificate.
	KindCertificate Kind = "cert"
	// KindSPKI hashes the DER-encoded SubjectPublicKeyInfo.
	KindSPKI Kind = "spki"
)

// ParseKind maps a config value to a Kind. Empty selects KindCertificate.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindCertificate:
		return KindCertificate, nil
	case KindSPKI:
		return KindSPKI, nil
	default:
		return "", fmt.Errorf("pin: unknown kind %q", s)
	}
}

// FromDER returns the base-64 SHA-256 digest of der.
func FromDER(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// FromCertificate returns the pin of cert for the given kind.
func FromCertificate(cert *x509.Certificate, kind Kind) string {
	if kind == KindSPKI {
		return FromDER(cert.RawSubjectPublicKeyInfo)
	}
	return FromDER(cert.Raw)
}

// Normalize validates s and returns it without the "sha256/" prefix.
// The remainder must be the canonical padded standard base-64 of a 32-byte
// digest, the exact text FromDER produces.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, Prefix)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPin)
	}
	raw, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidPin, s, err)
	}
	if len(raw) != sha256.Size {
		return "", fmt.Errorf("%w: %q decodes to %d bytes, want %d", ErrInvalidPin, s, len(raw), sha256.Size)
	}
	// The decoder skips embedded CR and LF even in strict mode.
	if base64.StdEncoding.EncodeToString(raw) != s {
		return "", fmt.Errorf("%w: %q is not canonical base-64", ErrInvalidPin, s)
	}
	return s, nil
}

// Match reports whether actual and expected are byte-identical.
func Match(actual, expected string) bool {
	return actual == expected
}

// Set is an ordered collection of acceptable pins. The zero value is empty
// and matches nothing.
type Set struct {
	pins []string
}

// NewSet normalizes pins and returns them as a Set. Duplicates are folded;
// the first occurrence keeps its position.
func NewSet(pins ...string) (Set, error) {
	var s Set
	seen := make(map[string]bool, len(pins))
	for _, p := range pins {
		n, err := Normalize(p)
		if err != nil {
			return Set{}, err
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		s.pins = append(s.pins, n)
	}
	if len(s.pins) == 0 {
		return Set{}, ErrNoPins
	}
	return s, nil
}

// Contains reports whether p exactly matches one of the pins in s.
func (s Set) Contains(p string) bool {
	for _, want := range s.pins {
		if Match(p, want) {
			return true
		}
	}
	return false
}

// Pins returns a copy of the pins in s.
func (s Set) Pins() []string {
	out := make([]string, len(s.pins))
	copy(out, s.pins)
	return out
}

// Len returns the number of pins in s.
func (s Set) Len() int { return len(s.pins) }
