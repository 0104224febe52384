// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains name constraint processing for RFC 5280 path validation.
package certvalidator

import (
	"fmt"
)

// GeneralNameType represents the type of a GeneralName in X.509. The values
// are the context-specific tag numbers of the GeneralName CHOICE.
type GeneralNameType int

const (
	// GeneralNameOtherName represents an otherName (OID-based)
	GeneralNameOtherName GeneralNameType = iota
	// GeneralNameRFC822Name represents an email address (RFC 822)
	GeneralNameRFC822Name
	// GeneralNameDNSName represents a DNS domain name
	GeneralNameDNSName
	// GeneralNameX400Address represents an X.400 address
	GeneralNameX400Address
	// GeneralNameDirectoryName represents an X.500 distinguished name
	GeneralNameDirectoryName
	// GeneralNameEDIPartyName represents an EDI party name
	GeneralNameEDIPartyName
	// GeneralNameURI represents a Uniform Resource Identifier
	GeneralNameURI
	// GeneralNameIPAddress represents an IP address
	GeneralNameIPAddress
	// GeneralNameRegisteredID represents a registered OID
	GeneralNameRegisteredID
)

// String returns the string representation of GeneralNameType.
func (t GeneralNameType) String() string {
	switch t {
	case GeneralNameOtherName:
		return "otherName"
	case GeneralNameRFC822Name:
		return "rfc822Name"
	case GeneralNameDNSName:
		return "dNSName"
	case GeneralNameX400Address:
		return "x400Address"
	case GeneralNameDirectoryName:
		return "directoryName"
	case GeneralNameEDIPartyName:
		return "ediPartyName"
	case GeneralNameURI:
		return "uniformResourceIdentifier"
	case GeneralNameIPAddress:
		return "iPAddress"
	case GeneralNameRegisteredID:
		return "registeredID"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// DNSTreeContains reports whether every name matched by pattern lies in the
// subtree rooted at base, i.e. is base itself or a subdomain of it.
//
// A wildcard pattern is contained when its base name is: "*.foo.example.com"
// is inside "example.com" but "*.example.com" is not inside "foo.example.com".
func DNSTreeContains(base DNSName, pattern DNSPattern) bool {
	return pattern.Name().IsWithin(base)
}

// DNSTreeIntersects reports whether any name matched by pattern lies in the
// subtree rooted at base. It differs from DNSTreeContains only for wildcards,
// which also reach a base one label below their own: "*.example.com" can
// produce "foo.example.com".
func DNSTreeIntersects(base DNSName, pattern DNSPattern) bool {
	if pattern.Name().IsWithin(base) {
		return true
	}
	return pattern.IsWildcard() && pattern.Matches(base)
}

// NameConstraintValidationResult contains the result of name constraint validation.
type NameConstraintValidationResult struct {
	// FailingName is the first identifier that violated a constraint, or nil.
	FailingName *GeneralName

	// Excluded is true when FailingName lies in an excluded subtree, and
	// false when it lies outside every permitted subtree.
	Excluded bool
}

// IsValid returns true if no name constraint was violated.
func (r *NameConstraintValidationResult) IsValid() bool {
	return r.FailingName == nil
}

// ErrorMessage returns an error message if validation failed.
func (r *NameConstraintValidationResult) ErrorMessage() string {
	if r.FailingName == nil {
		return ""
	}

	reason := "is not within any permitted subtree"
	if r.Excluded {
		reason = "is within an excluded subtree"
	}
	return fmt.Sprintf("the name '%s' of type %s %s", r.FailingName.Text(), r.FailingName.Type, reason)
}

// NameConstraintChecker evaluates a certificate's identifiers against one set
// of permitted and excluded subtrees. Only dNSName and iPAddress subtrees are
// evaluated; subtrees of every other type are accepted as decoded and do not
// constrain anything.
//
// A checker is immutable once built and may be shared between goroutines. It
// keeps no state between certificates; combining the constraints of several
// CAs along a path is left to the caller.
type NameConstraintChecker struct {
	permittedDNS []DNSName
	excludedDNS  []DNSName
	permittedIP  []IPRange
	excludedIP   []IPRange
}

// NewNameConstraintChecker parses the bases of permitted and excluded. A
// dNSName base that is not a valid DNSName, or an iPAddress base that is not a
// valid address/mask pair, makes the whole constraint set malformed.
func NewNameConstraintChecker(permitted, excluded []GeneralSubtree) (*NameConstraintChecker, error) {
	nc := &NameConstraintChecker{}

	var err error
	if nc.permittedDNS, nc.permittedIP, err = parseSubtrees(permitted); err != nil {
		return nil, err
	}
	if nc.excludedDNS, nc.excludedIP, err = parseSubtrees(excluded); err != nil {
		return nil, err
	}
	return nc, nil
}

func parseSubtrees(subtrees []GeneralSubtree) ([]DNSName, []IPRange, error) {
	var dnsBases []DNSName
	var ipBases []IPRange

	for _, subtree := range subtrees {
		base := subtree.Base
		switch base.Type {
		case GeneralNameDNSName:
			name, ok := NewDNSName(string(base.Value))
			if !ok {
				return nil, nil, NewMalformedConstraintError(base.Type, string(base.Value))
			}
			dnsBases = append(dnsBases, name)

		case GeneralNameIPAddress:
			r, ok := IPRangeFromBytes(base.Value)
			if !ok {
				return nil, nil, NewMalformedConstraintError(base.Type, fmt.Sprintf("%x", base.Value))
			}
			ipBases = append(ipBases, r)

		case GeneralNameOtherName, GeneralNameRFC822Name, GeneralNameX400Address,
			GeneralNameDirectoryName, GeneralNameEDIPartyName, GeneralNameURI,
			GeneralNameRegisteredID:
			// Not evaluated.

		default:
			return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedGeneralName, base.Type)
		}
	}
	return dnsBases, ipBases, nil
}

// HasDNSConstraints reports whether any dNSName subtree is present.
func (nc *NameConstraintChecker) HasDNSConstraints() bool {
	return len(nc.permittedDNS) > 0 || len(nc.excludedDNS) > 0
}

// HasIPConstraints reports whether any iPAddress subtree is present.
func (nc *NameConstraintChecker) HasIPConstraints() bool {
	return len(nc.permittedIP) > 0 || len(nc.excludedIP) > 0
}

// AcceptDNSName checks a dNSName identifier, which may be a wildcard pattern.
// It returns false with excluded set when the pattern can produce an excluded
// name, and false with excluded unset when a permitted list exists and does
// not contain the pattern.
func (nc *NameConstraintChecker) AcceptDNSName(pattern DNSPattern) (accepted, excluded bool) {
	for _, base := range nc.excludedDNS {
		if DNSTreeIntersects(base, pattern) {
			return false, true
		}
	}

	if len(nc.permittedDNS) == 0 {
		return true, false
	}
	for _, base := range nc.permittedDNS {
		if DNSTreeContains(base, pattern) {
			return true, false
		}
	}
	return false, false
}

// AcceptIPAddress checks an iPAddress identifier in the same way as
// AcceptDNSName.
func (nc *NameConstraintChecker) AcceptIPAddress(addr IPAddress) (accepted, excluded bool) {
	for _, r := range nc.excludedIP {
		if r.Contains(addr) {
			return false, true
		}
	}

	if len(nc.permittedIP) == 0 {
		return true, false
	}
	for _, r := range nc.permittedIP {
		if r.Contains(addr) {
			return true, false
		}
	}
	return false, false
}

// Check evaluates names, typically the subject alternative names of a
// certificate. It returns an error if an identifier is malformed; such a
// certificate must be rejected. Otherwise the result names the first
// identifier that violated a constraint, if any.
func (nc *NameConstraintChecker) Check(names []GeneralName) (*NameConstraintValidationResult, error) {
	for i := range names {
		name := &names[i]

		var accepted, excluded bool
		switch name.Type {
		case GeneralNameDNSName:
			pattern, ok := NewDNSPattern(string(name.Value))
			if !ok {
				return nil, NewMalformedNameError(name.Type, string(name.Value))
			}
			accepted, excluded = nc.AcceptDNSName(pattern)

		case GeneralNameIPAddress:
			addr, ok := IPAddressFromBytes(name.Value)
			if !ok {
				return nil, NewMalformedNameError(name.Type, fmt.Sprintf("%x", name.Value))
			}
			accepted, excluded = nc.AcceptIPAddress(addr)

		case GeneralNameOtherName, GeneralNameRFC822Name, GeneralNameX400Address,
			GeneralNameDirectoryName, GeneralNameEDIPartyName, GeneralNameURI,
			GeneralNameRegisteredID:
			accepted = true

		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeneralName, name.Type)
		}

		if !accepted {
			failing := *name
			return &NameConstraintValidationResult{FailingName: &failing, Excluded: excluded}, nil
		}
	}

	return &NameConstraintValidationResult{}, nil
}

// CheckNameConstraints evaluates names against nc.
func CheckNameConstraints(nc NameConstraints, names []GeneralName) (*NameConstraintValidationResult, error) {
	checker, err := NewNameConstraintChecker(nc.Permitted, nc.Excluded)
	if err != nil {
		return nil, err
	}
	return checker.Check(names)
}

// NameConstraintsOf decodes the nameConstraints extension of exts. It returns
// nil when the extension is absent.
func NameConstraintsOf(exts Extensions) (*NameConstraints, error) {
	nc, ok, err := Lookup[NameConstraints](exts, OIDExtensionNameConstraints)
	if err != nil || !ok {
		return nil, err
	}
	return &nc, nil
}

// SubjectAltNamesOf decodes the subjectAltName extension of exts. It returns
// nil when the extension is absent.
func SubjectAltNamesOf(exts Extensions) ([]GeneralName, error) {
	san, _, err := Lookup[SubjectAlternativeName](exts, OIDExtensionSubjectAltName)
	if err != nil {
		return nil, err
	}
	return san, nil
}

// CheckIssuedCertificate applies the nameConstraints extension found in the
// issuer's extensions to the subject alternative names found in the subject's
// extensions. An issuer without the extension accepts every name.
func CheckIssuedCertificate(issuer, subject Extensions) (*NameConstraintValidationResult, error) {
	nc, err := NameConstraintsOf(issuer)
	if err != nil {
		return nil, err
	}
	if nc == nil {
		return &NameConstraintValidationResult{}, nil
	}

	names, err := SubjectAltNamesOf(subject)
	if err != nil {
		return nil, err
	}
	return CheckNameConstraints(*nc, names)
}
