// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains server identity matching and the public suffix lint.
package certvalidator

import (
	"fmt"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// Subject is the identity a relying party expects a leaf certificate to
// carry: either a DNS name or an IP address, never both.
type Subject struct {
	dns DNSName
	ip  IPAddress
}

// DNSSubject returns a Subject for a host name.
func DNSSubject(name DNSName) Subject {
	return Subject{dns: name}
}

// IPSubject returns a Subject for an IP address.
func IPSubject(addr IPAddress) Subject {
	return Subject{ip: addr}
}

// ParseSubject interprets s as an IP address if it parses as one, and as a DNS
// name otherwise.
func ParseSubject(s string) (Subject, error) {
	if addr, ok := ParseIPAddress(s); ok {
		return IPSubject(addr), nil
	}
	if name, ok := NewDNSName(s); ok {
		return DNSSubject(name), nil
	}
	return Subject{}, fmt.Errorf("%w: %q is neither an IP address nor a DNS name", ErrMalformedName, s)
}

// DNSName returns the host name of a DNS subject.
func (s Subject) DNSName() (DNSName, bool) {
	return s.dns, !s.dns.IsZero()
}

// IPAddress returns the address of an IP subject.
func (s Subject) IPAddress() (IPAddress, bool) {
	return s.ip, !s.ip.IsZero()
}

func (s Subject) String() string {
	if !s.dns.IsZero() {
		return s.dns.String()
	}
	return s.ip.String()
}

// MatchesSubject reports whether any of san identifies subject. dNSName
// entries are matched as RFC 6125 patterns and iPAddress entries by exact
// address. Malformed entries never match.
func MatchesSubject(san []GeneralName, subject Subject) bool {
	for _, name := range san {
		switch name.Type {
		case GeneralNameDNSName:
			host, ok := subject.DNSName()
			if !ok {
				continue
			}
			pattern, ok := NewDNSPattern(string(name.Value))
			if ok && pattern.Matches(host) {
				return true
			}

		case GeneralNameIPAddress:
			want, ok := subject.IPAddress()
			if !ok {
				continue
			}
			addr, ok := IPAddressFromBytes(name.Value)
			if ok && addr.Equal(want) {
				return true
			}

		case GeneralNameOtherName, GeneralNameRFC822Name, GeneralNameX400Address,
			GeneralNameDirectoryName, GeneralNameEDIPartyName, GeneralNameURI,
			GeneralNameRegisteredID:
			// Cannot identify a server.
		}
	}
	return false
}

// WildcardCoversPublicSuffix reports whether pattern is a wildcard sitting
// directly on a public suffix, such as "*.co.uk", which would match every
// registrable domain under it. Only the ICANN section of the list is used.
func WildcardCoversPublicSuffix(pattern DNSPattern) bool {
	if !pattern.IsWildcard() {
		return false
	}

	base := strings.ToLower(pattern.Name().String())
	rule := publicsuffix.DefaultList.Find(base, &publicsuffix.FindOptions{IgnorePrivate: true, DefaultRule: nil})
	if rule == nil {
		return false
	}
	// Decompose finds no registrable part when base is itself a suffix.
	return rule.Decompose(base)[1] == ""
}
