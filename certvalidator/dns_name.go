// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains the DNS name and DNS pattern value types.
package certvalidator

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

const (
	// maxDNSNameLength is the practical limit on a presentation-format name
	// (255 octets in the RFC 1034 wire encoding).
	maxDNSNameLength = 253

	// maxDNSLabelLength is the RFC 1034 label limit.
	maxDNSLabelLength = 63
)

// DNSName is a host name in the preferred name syntax of RFC 1034 section 3.5
// as amended by RFC 1123 section 2.1, which RFC 5280 section 4.2.1.6 requires
// for dNSName entries.
//
// Internationalized names must already be in their A-label ("xn--") form.
// Comparisons are ASCII case-insensitive; the original spelling is kept for
// display.
type DNSName struct {
	value string
}

// NewDNSName validates value and returns it as a DNSName. The second return
// value is false if value is not a well-formed host name.
func NewDNSName(value string) (DNSName, bool) {
	if len(value) == 0 || len(value) > maxDNSNameLength {
		return DNSName{}, false
	}

	for _, label := range strings.Split(value, ".") {
		if !isValidDNSLabel(label) {
			return DNSName{}, false
		}
	}

	return DNSName{value: value}, true
}

// MustDNSName is like NewDNSName but panics if value is not well-formed.
// It is intended for constant inputs.
func MustDNSName(value string) DNSName {
	name, ok := NewDNSName(value)
	if !ok {
		panic(fmt.Sprintf("certvalidator: invalid DNS name %q", value))
	}
	return name
}

// isValidDNSLabel reports whether label is 1-63 characters of [A-Za-z0-9-]
// that neither starts nor ends with a hyphen. Consecutive hyphens are allowed
// because the IDNA prefix uses them.
func isValidDNSLabel(label string) bool {
	if len(label) == 0 || len(label) > maxDNSLabelLength {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		if !isDNSCharacter(label[i]) {
			return false
		}
	}
	return true
}

func isDNSCharacter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') ||
		('A' <= ch && ch <= 'Z') ||
		('0' <= ch && ch <= '9') ||
		ch == '-'
}

// String returns the name as it was given to NewDNSName.
func (n DNSName) String() string {
	return n.value
}

// IsZero reports whether n is the zero DNSName, i.e. was never constructed.
func (n DNSName) IsZero() bool {
	return n.value == ""
}

// Equal reports whether n and other name the same host, ignoring ASCII case.
func (n DNSName) Equal(other DNSName) bool {
	return strings.EqualFold(n.value, other.value)
}

// Parent returns the name with its left-most label removed. The second return
// value is false if n has a single label.
func (n DNSName) Parent() (DNSName, bool) {
	_, parent, found := strings.Cut(n.value, ".")
	if !found {
		return DNSName{}, false
	}
	return NewDNSName(parent)
}

// Labels returns the labels of n from left to right.
func (n DNSName) Labels() []string {
	return strings.Split(n.value, ".")
}

// IsWithin reports whether n equals base or is a subdomain of it at any depth.
// Labels are compared right to left without regard to ASCII case, so
// "notexample.com" is not within "example.com".
func (n DNSName) IsWithin(base DNSName) bool {
	if len(n.value) < len(base.value) {
		return false
	}

	nameLabels := n.Labels()
	baseLabels := base.Labels()
	if len(nameLabels) < len(baseLabels) {
		return false
	}

	offset := len(nameLabels) - len(baseLabels)
	for i, label := range baseLabels {
		if !strings.EqualFold(nameLabels[offset+i], label) {
			return false
		}
	}
	return true
}

// Unicode returns the display form of n with every A-label decoded. It fails
// if a label is not a valid A-label or does not decode to NFC text. The result
// is for display only; all matching works on the ASCII form.
func (n DNSName) Unicode() (string, error) {
	labels := n.Labels()
	for i, label := range labels {
		if !strings.HasPrefix(strings.ToLower(label), "xn--") {
			continue
		}
		ulabel, err := idna.ToUnicode(label)
		if err != nil {
			return "", fmt.Errorf("%w: label %q is not a valid A-label: %v", ErrMalformedName, label, err)
		}
		if !norm.NFC.IsNormalString(ulabel) {
			return "", fmt.Errorf("%w: label %q does not decode to NFC", ErrMalformedName, label)
		}
		labels[i] = ulabel
	}
	return strings.Join(labels, "."), nil
}

// dnsPatternKind distinguishes the two DNSPattern variants.
type dnsPatternKind int

const (
	dnsPatternExact dnsPatternKind = iota + 1
	dnsPatternWildcard
)

// DNSPattern is the subset of RFC 6125 section 6.4.3 wildcard matching used
// for certificate identities: either an exact name, or a single wildcard that
// covers exactly the whole left-most label. Partial-label wildcards such as
// "f*o.example.com" and non-left-most wildcards such as "foo.*.example.com" are
// rejected at construction.
type DNSPattern struct {
	kind dnsPatternKind
	name DNSName
}

// NewDNSPattern parses pattern. A leading "*." makes a wildcard pattern over
// the remaining name; anything else must be a valid DNSName on its own.
func NewDNSPattern(pattern string) (DNSPattern, bool) {
	if base, ok := strings.CutPrefix(pattern, "*."); ok {
		name, ok := NewDNSName(base)
		if !ok {
			return DNSPattern{}, false
		}
		return WildcardPattern(name), true
	}

	name, ok := NewDNSName(pattern)
	if !ok {
		return DNSPattern{}, false
	}
	return ExactPattern(name), true
}

// ExactPattern returns a pattern matching only name.
func ExactPattern(name DNSName) DNSPattern {
	return DNSPattern{kind: dnsPatternExact, name: name}
}

// WildcardPattern returns a pattern matching every direct child of base.
func WildcardPattern(base DNSName) DNSPattern {
	return DNSPattern{kind: dnsPatternWildcard, name: base}
}

// IsWildcard reports whether p is a wildcard pattern.
func (p DNSPattern) IsWildcard() bool {
	return p.kind == dnsPatternWildcard
}

// Name returns the exact name, or the base name of a wildcard pattern.
func (p DNSPattern) Name() DNSName {
	return p.name
}

// String returns the pattern in its textual form.
func (p DNSPattern) String() string {
	switch p.kind {
	case dnsPatternExact:
		return p.name.String()
	case dnsPatternWildcard:
		return "*." + p.name.String()
	default:
		return ""
	}
}

// Equal reports whether p and other are the same variant over equal names.
func (p DNSPattern) Equal(other DNSPattern) bool {
	return p.kind == other.kind && p.name.Equal(other.name)
}

// Matches reports whether name is matched by p. A wildcard matches only names
// exactly one label below its base, so "*.example.com" matches
// "foo.example.com" but neither "example.com" nor "foo.bar.example.com".
func (p DNSPattern) Matches(name DNSName) bool {
	switch p.kind {
	case dnsPatternExact:
		return p.name.Equal(name)
	case dnsPatternWildcard:
		parent, ok := name.Parent()
		if !ok {
			// Single-label names have no parent to compare against.
			return false
		}
		return p.name.Equal(parent)
	default:
		return false
	}
}
