// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains the typed bodies of the extensions used during path
// validation and their DER codecs.
package certvalidator

import (
	"encoding/asn1"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// readBody unwraps a single top-level element with the given tag and rejects
// trailing data.
func readBody(der []byte, tag cryptobyte_asn1.Tag, what string) (cryptobyte.String, error) {
	input := cryptobyte.String(der)
	var body cryptobyte.String
	if !input.ReadASN1(&body, tag) || !input.Empty() {
		return nil, decodeError(what)
	}
	return body, nil
}

// readOptionalImplicitUint reads an optional [n] IMPLICIT INTEGER holding a
// non-negative value that fits in 64 bits.
func readOptionalImplicitUint(s *cryptobyte.String, n uint8) (uint64, bool, bool) {
	var content cryptobyte.String
	var present bool
	if !s.ReadOptionalASN1(&content, &present, cryptobyte_asn1.Tag(n).ContextSpecific()) {
		return 0, false, false
	}
	if !present {
		return 0, false, true
	}
	v, ok := parseUintContent(content)
	return v, true, ok
}

// parseUintContent parses the content octets of a DER INTEGER as a uint64.
func parseUintContent(content []byte) (uint64, bool) {
	if len(content) == 0 || content[0]&0x80 != 0 {
		return 0, false
	}
	if len(content) > 1 && content[0] == 0 && content[1]&0x80 == 0 {
		// Not minimally encoded.
		return 0, false
	}
	v := new(big.Int).SetBytes(content)
	if !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

func addImplicitUint(b *cryptobyte.Builder, n uint8, v uint64) {
	b.AddASN1(cryptobyte_asn1.Tag(n).ContextSpecific(), func(b *cryptobyte.Builder) {
		content := new(big.Int).SetUint64(v).Bytes()
		if len(content) == 0 || content[0]&0x80 != 0 {
			b.AddUint8(0)
		}
		b.AddBytes(content)
	})
}

// BasicConstraints is the body of the basicConstraints extension.
//
//	BasicConstraints ::= SEQUENCE {
//	    cA                      BOOLEAN DEFAULT FALSE,
//	    pathLenConstraint       INTEGER (0..MAX) OPTIONAL }
type BasicConstraints struct {
	CA         bool
	PathLength *uint64
}

// ParseDER implements ExtensionValue.
func (bc *BasicConstraints) ParseDER(der []byte) error {
	body, err := readBody(der, cryptobyte_asn1.SEQUENCE, "basic constraints")
	if err != nil {
		return err
	}

	*bc = BasicConstraints{}
	if body.PeekASN1Tag(cryptobyte_asn1.BOOLEAN) {
		if !body.ReadASN1Boolean(&bc.CA) {
			return decodeError("basic constraints cA flag")
		}
	}
	if body.PeekASN1Tag(cryptobyte_asn1.INTEGER) {
		var pathLen uint64
		if !body.ReadASN1Integer(&pathLen) {
			return decodeError("basic constraints path length")
		}
		bc.PathLength = &pathLen
	}
	if !body.Empty() {
		return decodeError("basic constraints")
	}
	return nil
}

// MarshalDER returns the DER encoding of bc.
func (bc BasicConstraints) MarshalDER() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		if bc.CA {
			b.AddASN1Boolean(true)
		}
		if bc.PathLength != nil {
			b.AddASN1Uint64(*bc.PathLength)
		}
	})
	return b.Bytes()
}

// KeyUsageFlag is a named bit of the keyUsage extension.
type KeyUsageFlag int

const (
	KeyUsageDigitalSignature KeyUsageFlag = iota
	KeyUsageContentCommitment
	KeyUsageKeyEncipherment
	KeyUsageDataEncipherment
	KeyUsageKeyAgreement
	KeyUsageKeyCertSign
	KeyUsageCRLSign
	KeyUsageEncipherOnly
	KeyUsageDecipherOnly
)

var keyUsageNames = [...]string{
	KeyUsageDigitalSignature:  "digital_signature",
	KeyUsageContentCommitment: "content_commitment",
	KeyUsageKeyEncipherment:   "key_encipherment",
	KeyUsageDataEncipherment:  "data_encipherment",
	KeyUsageKeyAgreement:      "key_agreement",
	KeyUsageKeyCertSign:       "key_cert_sign",
	KeyUsageCRLSign:           "crl_sign",
	KeyUsageEncipherOnly:      "encipher_only",
	KeyUsageDecipherOnly:      "decipher_only",
}

// String returns the snake_case name of f.
func (f KeyUsageFlag) String() string {
	if f >= 0 && int(f) < len(keyUsageNames) {
		return keyUsageNames[f]
	}
	return fmt.Sprintf("unknown(%d)", int(f))
}

// ParseKeyUsageFlag returns the flag with the given snake_case name.
func ParseKeyUsageFlag(name string) (KeyUsageFlag, bool) {
	for i, n := range keyUsageNames {
		if n == name {
			return KeyUsageFlag(i), true
		}
	}
	return 0, false
}

// KeyUsage is the body of the keyUsage extension, a BIT STRING of nine
// named bits.
type KeyUsage struct {
	bits asn1.BitString
}

// NewKeyUsage returns a KeyUsage with exactly the given flags set.
func NewKeyUsage(flags ...KeyUsageFlag) KeyUsage {
	highest := -1
	for _, f := range flags {
		highest = max(highest, int(f))
	}
	if highest < 0 {
		return KeyUsage{}
	}

	data := make([]byte, highest/8+1)
	for _, f := range flags {
		data[f/8] |= 0x80 >> (uint(f) % 8)
	}
	return KeyUsage{bits: asn1.BitString{Bytes: data, BitLength: highest + 1}}
}

// ParseDER implements ExtensionValue.
func (ku *KeyUsage) ParseDER(der []byte) error {
	input := cryptobyte.String(der)
	var bits asn1.BitString
	if !input.ReadASN1BitString(&bits) || !input.Empty() {
		return decodeError("key usage")
	}
	ku.bits = bits
	return nil
}

// MarshalDER returns the DER encoding of ku.
func (ku KeyUsage) MarshalDER() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.BIT_STRING, func(b *cryptobyte.Builder) {
		padding := (8 - ku.bits.BitLength%8) % 8
		b.AddUint8(uint8(padding))
		b.AddBytes(ku.bits.Bytes)
	})
	return b.Bytes()
}

// Has reports whether flag is set.
func (ku KeyUsage) Has(flag KeyUsageFlag) bool {
	return ku.bits.At(int(flag)) == 1
}

// Zeroed reports whether no bit at all is set.
func (ku KeyUsage) Zeroed() bool {
	for _, b := range ku.bits.Bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// DigitalSignature reports whether digitalSignature is asserted.
func (ku KeyUsage) DigitalSignature() bool { return ku.Has(KeyUsageDigitalSignature) }

// ContentCommitment reports whether contentCommitment (formerly nonRepudiation) is asserted.
func (ku KeyUsage) ContentCommitment() bool { return ku.Has(KeyUsageContentCommitment) }

// KeyEncipherment reports whether keyEncipherment is asserted.
func (ku KeyUsage) KeyEncipherment() bool { return ku.Has(KeyUsageKeyEncipherment) }

// DataEncipherment reports whether dataEncipherment is asserted.
func (ku KeyUsage) DataEncipherment() bool { return ku.Has(KeyUsageDataEncipherment) }

// KeyAgreement reports whether keyAgreement is asserted.
func (ku KeyUsage) KeyAgreement() bool { return ku.Has(KeyUsageKeyAgreement) }

// KeyCertSign reports whether keyCertSign is asserted.
func (ku KeyUsage) KeyCertSign() bool { return ku.Has(KeyUsageKeyCertSign) }

// CRLSign reports whether cRLSign is asserted.
func (ku KeyUsage) CRLSign() bool { return ku.Has(KeyUsageCRLSign) }

// EncipherOnly reports whether encipherOnly is asserted.
func (ku KeyUsage) EncipherOnly() bool { return ku.Has(KeyUsageEncipherOnly) }

// DecipherOnly reports whether decipherOnly is asserted.
func (ku KeyUsage) DecipherOnly() bool { return ku.Has(KeyUsageDecipherOnly) }

// Flags returns the set flags in bit order.
func (ku KeyUsage) Flags() []KeyUsageFlag {
	var flags []KeyUsageFlag
	for f := KeyUsageDigitalSignature; f <= KeyUsageDecipherOnly; f++ {
		if ku.Has(f) {
			flags = append(flags, f)
		}
	}
	return flags
}

// String returns the set flags as a comma separated list.
func (ku KeyUsage) String() string {
	flags := ku.Flags()
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}

// GeneralSubtree is one entry of a permitted or excluded subtree list.
//
//	GeneralSubtree ::= SEQUENCE {
//	    base                    GeneralName,
//	    minimum         [0]     BaseDistance DEFAULT 0,
//	    maximum         [1]     BaseDistance OPTIONAL }
//
// Minimum and Maximum are kept as decoded; name constraint evaluation does
// not interpret them.
type GeneralSubtree struct {
	Base    GeneralName
	Minimum uint64
	Maximum *uint64
}

// NameConstraints is the body of the nameConstraints extension.
//
//	NameConstraints ::= SEQUENCE {
//	    permittedSubtrees       [0]     GeneralSubtrees OPTIONAL,
//	    excludedSubtrees        [1]     GeneralSubtrees OPTIONAL }
type NameConstraints struct {
	Permitted []GeneralSubtree
	Excluded  []GeneralSubtree
}

// ParseDER implements ExtensionValue.
func (nc *NameConstraints) ParseDER(der []byte) error {
	body, err := readBody(der, cryptobyte_asn1.SEQUENCE, "name constraints")
	if err != nil {
		return err
	}

	*nc = NameConstraints{}
	for _, list := range []struct {
		tag cryptobyte_asn1.Tag
		out *[]GeneralSubtree
	}{
		{cryptobyte_asn1.Tag(0).Constructed().ContextSpecific(), &nc.Permitted},
		{cryptobyte_asn1.Tag(1).Constructed().ContextSpecific(), &nc.Excluded},
	} {
		var subtrees cryptobyte.String
		var present bool
		if !body.ReadOptionalASN1(&subtrees, &present, list.tag) {
			return decodeError("name constraints subtrees")
		}
		if !present {
			continue
		}
		parsed, err := readGeneralSubtrees(subtrees)
		if err != nil {
			return err
		}
		*list.out = parsed
	}

	if !body.Empty() {
		return decodeError("name constraints")
	}
	return nil
}

func readGeneralSubtrees(der cryptobyte.String) ([]GeneralSubtree, error) {
	var subtrees []GeneralSubtree
	for !der.Empty() {
		var seq cryptobyte.String
		if !der.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
			return nil, decodeError("general subtree")
		}

		base, err := readGeneralName(&seq)
		if err != nil {
			return nil, err
		}
		subtree := GeneralSubtree{Base: base}

		minimum, _, ok := readOptionalImplicitUint(&seq, 0)
		if !ok {
			return nil, decodeError("general subtree minimum")
		}
		subtree.Minimum = minimum

		maximum, present, ok := readOptionalImplicitUint(&seq, 1)
		if !ok {
			return nil, decodeError("general subtree maximum")
		}
		if present {
			subtree.Maximum = &maximum
		}

		if !seq.Empty() {
			return nil, decodeError("general subtree")
		}
		subtrees = append(subtrees, subtree)
	}
	return subtrees, nil
}

// MarshalDER returns the DER encoding of nc.
func (nc NameConstraints) MarshalDER() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for i, list := range [][]GeneralSubtree{nc.Permitted, nc.Excluded} {
			if len(list) == 0 {
				continue
			}
			b.AddASN1(cryptobyte_asn1.Tag(i).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
				for _, subtree := range list {
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
						addGeneralName(b, subtree.Base)
						if subtree.Minimum != 0 {
							addImplicitUint(b, 0, subtree.Minimum)
						}
						if subtree.Maximum != nil {
							addImplicitUint(b, 1, *subtree.Maximum)
						}
					})
				}
			})
		}
	})
	return b.Bytes()
}

// PolicyConstraints is the body of the policyConstraints extension.
//
//	PolicyConstraints ::= SEQUENCE {
//	    requireExplicitPolicy           [0] SkipCerts OPTIONAL,
//	    inhibitPolicyMapping            [1] SkipCerts OPTIONAL }
type PolicyConstraints struct {
	RequireExplicitPolicy *uint64
	InhibitPolicyMapping  *uint64
}

// ParseDER implements ExtensionValue.
func (pc *PolicyConstraints) ParseDER(der []byte) error {
	body, err := readBody(der, cryptobyte_asn1.SEQUENCE, "policy constraints")
	if err != nil {
		return err
	}

	*pc = PolicyConstraints{}
	for i, out := range []**uint64{&pc.RequireExplicitPolicy, &pc.InhibitPolicyMapping} {
		v, present, ok := readOptionalImplicitUint(&body, uint8(i))
		if !ok {
			return decodeError("policy constraints")
		}
		if present {
			*out = &v
		}
	}

	if !body.Empty() {
		return decodeError("policy constraints")
	}
	return nil
}

// MarshalDER returns the DER encoding of pc.
func (pc PolicyConstraints) MarshalDER() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		if pc.RequireExplicitPolicy != nil {
			addImplicitUint(b, 0, *pc.RequireExplicitPolicy)
		}
		if pc.InhibitPolicyMapping != nil {
			addImplicitUint(b, 1, *pc.InhibitPolicyMapping)
		}
	})
	return b.Bytes()
}

// SubjectAlternativeName is the body of the subjectAltName extension.
type SubjectAlternativeName []GeneralName

// ParseDER implements ExtensionValue.
func (san *SubjectAlternativeName) ParseDER(der []byte) error {
	body, err := readBody(der, cryptobyte_asn1.SEQUENCE, "subject alternative name")
	if err != nil {
		return err
	}
	names, err := readGeneralNames(body)
	if err != nil {
		return err
	}
	*san = names
	return nil
}

// MarshalDER returns the DER encoding of san.
func (san SubjectAlternativeName) MarshalDER() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, name := range san {
			addGeneralName(b, name)
		}
	})
	return b.Bytes()
}

// ExtendedKeyUsage is the body of the extKeyUsage extension.
type ExtendedKeyUsage []asn1.ObjectIdentifier

// ParseDER implements ExtensionValue.
func (eku *ExtendedKeyUsage) ParseDER(der []byte) error {
	body, err := readBody(der, cryptobyte_asn1.SEQUENCE, "extended key usage")
	if err != nil {
		return err
	}

	var oids ExtendedKeyUsage
	for !body.Empty() {
		var oid asn1.ObjectIdentifier
		if !body.ReadASN1ObjectIdentifier(&oid) {
			return decodeError("extended key usage purpose")
		}
		oids = append(oids, oid)
	}
	*eku = oids
	return nil
}

// Contains reports whether purpose is listed.
func (eku ExtendedKeyUsage) Contains(purpose asn1.ObjectIdentifier) bool {
	for _, oid := range eku {
		if oid.Equal(purpose) {
			return true
		}
	}
	return false
}

// SubjectKeyIdentifier is the body of the subjectKeyIdentifier extension.
type SubjectKeyIdentifier []byte

// ParseDER implements ExtensionValue.
func (ski *SubjectKeyIdentifier) ParseDER(der []byte) error {
	body, err := readBody(der, cryptobyte_asn1.OCTET_STRING, "subject key identifier")
	if err != nil {
		return err
	}
	*ski = SubjectKeyIdentifier(body)
	return nil
}

// AuthorityKeyIdentifier is the body of the authorityKeyIdentifier extension.
//
//	AuthorityKeyIdentifier ::= SEQUENCE {
//	    keyIdentifier             [0] KeyIdentifier           OPTIONAL,
//	    authorityCertIssuer       [1] GeneralNames            OPTIONAL,
//	    authorityCertSerialNumber [2] CertificateSerialNumber OPTIONAL  }
type AuthorityKeyIdentifier struct {
	KeyIdentifier             []byte
	AuthorityCertIssuer       []GeneralName
	AuthorityCertSerialNumber *big.Int
}

// ParseDER implements ExtensionValue.
func (aki *AuthorityKeyIdentifier) ParseDER(der []byte) error {
	body, err := readBody(der, cryptobyte_asn1.SEQUENCE, "authority key identifier")
	if err != nil {
		return err
	}

	*aki = AuthorityKeyIdentifier{}

	var keyID cryptobyte.String
	var present bool
	if !body.ReadOptionalASN1(&keyID, &present, cryptobyte_asn1.Tag(0).ContextSpecific()) {
		return decodeError("authority key identifier key ID")
	}
	if present {
		aki.KeyIdentifier = keyID
	}

	var issuer cryptobyte.String
	if !body.ReadOptionalASN1(&issuer, &present, cryptobyte_asn1.Tag(1).Constructed().ContextSpecific()) {
		return decodeError("authority key identifier issuer")
	}
	if present {
		names, err := readGeneralNames(issuer)
		if err != nil {
			return err
		}
		aki.AuthorityCertIssuer = names
	}

	var serial cryptobyte.String
	if !body.ReadOptionalASN1(&serial, &present, cryptobyte_asn1.Tag(2).ContextSpecific()) {
		return decodeError("authority key identifier serial")
	}
	if present {
		if len(serial) == 0 {
			return decodeError("authority key identifier serial")
		}
		aki.AuthorityCertSerialNumber = new(big.Int).SetBytes(serial)
	}

	if !body.Empty() {
		return decodeError("authority key identifier")
	}
	return nil
}

// AccessDescription is one entry of the authorityInfoAccess extension.
type AccessDescription struct {
	Method   asn1.ObjectIdentifier
	Location GeneralName
}

// AuthorityInfoAccess is the body of the authorityInfoAccess extension.
type AuthorityInfoAccess []AccessDescription

// ParseDER implements ExtensionValue.
func (aia *AuthorityInfoAccess) ParseDER(der []byte) error {
	body, err := readBody(der, cryptobyte_asn1.SEQUENCE, "authority info access")
	if err != nil {
		return err
	}

	var descriptions AuthorityInfoAccess
	for !body.Empty() {
		var seq cryptobyte.String
		var desc AccessDescription
		if !body.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !seq.ReadASN1ObjectIdentifier(&desc.Method) {
			return decodeError("access description")
		}
		desc.Location, err = readGeneralName(&seq)
		if err != nil {
			return err
		}
		if !seq.Empty() {
			return decodeError("access description")
		}
		descriptions = append(descriptions, desc)
	}
	*aia = descriptions
	return nil
}

// OIDAccessMethodCAIssuers is the id-ad-caIssuers access method.
var OIDAccessMethodCAIssuers = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 2}

// CAIssuers returns the caIssuers locations that are URIs, in order.
func (aia AuthorityInfoAccess) CAIssuers() []string {
	var urls []string
	for _, desc := range aia {
		if desc.Method.Equal(OIDAccessMethodCAIssuers) && desc.Location.Type == GeneralNameURI {
			urls = append(urls, string(desc.Location.Value))
		}
	}
	return urls
}

// CAIssuersURLs returns the caIssuers URIs of exts. A certificate without an
// authorityInfoAccess extension yields no URLs.
func CAIssuersURLs(exts Extensions) ([]string, error) {
	aia, ok, err := Lookup[AuthorityInfoAccess](exts, OIDExtensionAuthorityInfoAccess)
	if err != nil || !ok {
		return nil, err
	}
	return aia.CAIssuers(), nil
}
