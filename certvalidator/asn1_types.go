// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains OID definitions and the GeneralName ASN.1 type.
package certvalidator

import (
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// OIDs for certificate extensions (RFC 5280 section 4.2)
var (
	OIDExtensionSubjectKeyID          = asn1.ObjectIdentifier{2, 5, 29, 14}
	OIDExtensionKeyUsage              = asn1.ObjectIdentifier{2, 5, 29, 15}
	OIDExtensionSubjectAltName        = asn1.ObjectIdentifier{2, 5, 29, 17}
	OIDExtensionIssuerAltName         = asn1.ObjectIdentifier{2, 5, 29, 18}
	OIDExtensionBasicConstraints      = asn1.ObjectIdentifier{2, 5, 29, 19}
	OIDExtensionNameConstraints       = asn1.ObjectIdentifier{2, 5, 29, 30}
	OIDExtensionCRLDistributionPoints = asn1.ObjectIdentifier{2, 5, 29, 31}
	OIDExtensionCertificatePolicies   = asn1.ObjectIdentifier{2, 5, 29, 32}
	OIDExtensionPolicyMappings        = asn1.ObjectIdentifier{2, 5, 29, 33}
	OIDExtensionAuthorityKeyID        = asn1.ObjectIdentifier{2, 5, 29, 35}
	OIDExtensionPolicyConstraints     = asn1.ObjectIdentifier{2, 5, 29, 36}
	OIDExtensionExtendedKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}
	OIDExtensionInhibitAnyPolicy      = asn1.ObjectIdentifier{2, 5, 29, 54}
	OIDExtensionAuthorityInfoAccess   = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
)

// ExtensionRegistry provides lookup for extension OIDs.
type ExtensionRegistry struct {
	OIDMap map[string]string
}

// NewExtensionRegistry creates a new extension registry with default mappings.
func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{
		OIDMap: map[string]string{
			OIDExtensionSubjectKeyID.String():          "subject_key_identifier",
			OIDExtensionKeyUsage.String():              "key_usage",
			OIDExtensionSubjectAltName.String():        "subject_alt_name",
			OIDExtensionIssuerAltName.String():         "issuer_alt_name",
			OIDExtensionBasicConstraints.String():      "basic_constraints",
			OIDExtensionNameConstraints.String():       "name_constraints",
			OIDExtensionCRLDistributionPoints.String(): "crl_distribution_points",
			OIDExtensionCertificatePolicies.String():   "certificate_policies",
			OIDExtensionPolicyMappings.String():        "policy_mappings",
			OIDExtensionAuthorityKeyID.String():        "authority_key_identifier",
			OIDExtensionPolicyConstraints.String():     "policy_constraints",
			OIDExtensionExtendedKeyUsage.String():      "extended_key_usage",
			OIDExtensionInhibitAnyPolicy.String():      "inhibit_any_policy",
			OIDExtensionAuthorityInfoAccess.String():   "authority_information_access",
		},
	}
}

// GetExtensionName returns the name for an extension OID.
func (r *ExtensionRegistry) GetExtensionName(oid asn1.ObjectIdentifier) string {
	if name, ok := r.OIDMap[oid.String()]; ok {
		return name
	}
	return oid.String()
}

// DefaultExtensionRegistry is the default extension registry.
var DefaultExtensionRegistry = NewExtensionRegistry()

// ExtensionName returns the short name of an extension OID, or the dotted OID
// if it is not registered.
func ExtensionName(oid asn1.ObjectIdentifier) string {
	return DefaultExtensionRegistry.GetExtensionName(oid)
}

// GeneralName is one of the nine RFC 5280 GeneralName choices. Type selects
// the variant; the meaning of Value depends on it:
//
//   - rfc822Name, dNSName, uniformResourceIdentifier: the IA5String text
//   - iPAddress: 4 or 16 address octets, or 8 or 32 address+mask octets in a
//     name constraint
//   - directoryName: the DER encoding of the Name
//   - otherName: the DER encoding of the [0] EXPLICIT value; OID is the type-id
//   - x400Address, ediPartyName: the contents of the constructed element
//   - registeredID: empty; OID holds the identifier
type GeneralName struct {
	Type  GeneralNameType
	Value []byte
	OID   asn1.ObjectIdentifier
}

// DNSGeneralName returns a dNSName GeneralName.
func DNSGeneralName(name string) GeneralName {
	return GeneralName{Type: GeneralNameDNSName, Value: []byte(name)}
}

// IPGeneralName returns an iPAddress GeneralName for a certificate identifier.
func IPGeneralName(addr IPAddress) GeneralName {
	return GeneralName{Type: GeneralNameIPAddress, Value: addr.Octets()}
}

// IPRangeGeneralName returns an iPAddress GeneralName for a name constraint.
func IPRangeGeneralName(r IPRange) GeneralName {
	return GeneralName{Type: GeneralNameIPAddress, Value: r.Bytes()}
}

// EmailGeneralName returns an rfc822Name GeneralName.
func EmailGeneralName(mailbox string) GeneralName {
	return GeneralName{Type: GeneralNameRFC822Name, Value: []byte(mailbox)}
}

// URIGeneralName returns a uniformResourceIdentifier GeneralName.
func URIGeneralName(uri string) GeneralName {
	return GeneralName{Type: GeneralNameURI, Value: []byte(uri)}
}

// DirectoryGeneralName returns a directoryName GeneralName for a DER-encoded Name.
func DirectoryGeneralName(nameDER []byte) GeneralName {
	return GeneralName{Type: GeneralNameDirectoryName, Value: nameDER}
}

// RegisteredIDGeneralName returns a registeredID GeneralName.
func RegisteredIDGeneralName(oid asn1.ObjectIdentifier) GeneralName {
	return GeneralName{Type: GeneralNameRegisteredID, OID: oid}
}

// String returns a human-readable form of g.
func (g GeneralName) String() string {
	return fmt.Sprintf("%s:%s", g.Type, g.Text())
}

// Text returns the value of g without its type prefix: the name itself for
// the string forms, the address or range for iPAddress, and hex for the
// binary forms.
func (g GeneralName) Text() string {
	switch g.Type {
	case GeneralNameRFC822Name, GeneralNameDNSName, GeneralNameURI:
		return string(g.Value)
	case GeneralNameIPAddress:
		if addr, ok := IPAddressFromBytes(g.Value); ok {
			return addr.String()
		}
		if r, ok := IPRangeFromBytes(g.Value); ok {
			return r.String()
		}
		return hex.EncodeToString(g.Value)
	case GeneralNameRegisteredID:
		return g.OID.String()
	case GeneralNameOtherName:
		return g.OID.String() + ":" + hex.EncodeToString(g.Value)
	case GeneralNameDirectoryName, GeneralNameX400Address, GeneralNameEDIPartyName:
		return hex.EncodeToString(g.Value)
	default:
		return hex.EncodeToString(g.Value)
	}
}

// Equal reports whether g and other are the same variant with equal contents.
// Byte equality is used; semantic comparison of names is the job of the
// DNSName and IPAddress types.
func (g GeneralName) Equal(other GeneralName) bool {
	return g.Type == other.Type && string(g.Value) == string(other.Value) && g.OID.Equal(other.OID)
}

func generalNameTag(t GeneralNameType) cryptobyte_asn1.Tag {
	return cryptobyte_asn1.Tag(t).ContextSpecific()
}

// readGeneralName reads one GeneralName element from der.
func readGeneralName(der *cryptobyte.String) (GeneralName, error) {
	var element cryptobyte.String
	var tag cryptobyte_asn1.Tag
	if !der.ReadAnyASN1Element(&element, &tag) {
		return GeneralName{}, decodeError("general name")
	}
	if tag&0xc0 != 0x80 {
		return GeneralName{}, fmt.Errorf("%w: tag %#x", ErrUnsupportedGeneralName, uint8(tag))
	}

	nameType := GeneralNameType(tag & 0x1f)
	constructed := tag&0x20 != 0
	raw := element

	var content cryptobyte.String
	if !element.ReadAnyASN1(&content, &tag) {
		return GeneralName{}, decodeError(nameType.String())
	}

	switch nameType {
	case GeneralNameRFC822Name, GeneralNameDNSName, GeneralNameURI:
		if constructed || !isIA5String(content) {
			return GeneralName{}, decodeError(nameType.String())
		}
		return GeneralName{Type: nameType, Value: content}, nil

	case GeneralNameIPAddress:
		if constructed {
			return GeneralName{}, decodeError(nameType.String())
		}
		return GeneralName{Type: nameType, Value: content}, nil

	case GeneralNameRegisteredID:
		var oid asn1.ObjectIdentifier
		if constructed {
			return GeneralName{}, decodeError(nameType.String())
		}
		if rest, err := asn1.UnmarshalWithParams(raw, &oid, "tag:8"); err != nil || len(rest) != 0 {
			return GeneralName{}, decodeError(nameType.String())
		}
		return GeneralName{Type: nameType, OID: oid}, nil

	case GeneralNameOtherName:
		var oid asn1.ObjectIdentifier
		if !constructed || !content.ReadASN1ObjectIdentifier(&oid) {
			return GeneralName{}, decodeError(nameType.String())
		}
		var value cryptobyte.String
		if !content.ReadASN1Element(&value, cryptobyte_asn1.Tag(0).Constructed().ContextSpecific()) || !content.Empty() {
			return GeneralName{}, decodeError(nameType.String())
		}
		return GeneralName{Type: nameType, OID: oid, Value: value}, nil

	case GeneralNameDirectoryName:
		var name cryptobyte.String
		if !constructed || !content.ReadASN1Element(&name, cryptobyte_asn1.SEQUENCE) || !content.Empty() {
			return GeneralName{}, decodeError(nameType.String())
		}
		return GeneralName{Type: nameType, Value: name}, nil

	case GeneralNameX400Address, GeneralNameEDIPartyName:
		if !constructed {
			return GeneralName{}, decodeError(nameType.String())
		}
		return GeneralName{Type: nameType, Value: content}, nil

	default:
		return GeneralName{}, fmt.Errorf("%w: tag %d", ErrUnsupportedGeneralName, nameType)
	}
}

// readGeneralNames reads a SEQUENCE OF GeneralName body.
func readGeneralNames(der cryptobyte.String) ([]GeneralName, error) {
	var names []GeneralName
	for !der.Empty() {
		name, err := readGeneralName(&der)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// addGeneralName appends the DER encoding of g to b.
func addGeneralName(b *cryptobyte.Builder, g GeneralName) {
	tag := generalNameTag(g.Type)

	switch g.Type {
	case GeneralNameRFC822Name, GeneralNameDNSName, GeneralNameURI, GeneralNameIPAddress:
		b.AddASN1(tag, func(b *cryptobyte.Builder) {
			b.AddBytes(g.Value)
		})

	case GeneralNameRegisteredID:
		element, err := asn1.MarshalWithParams(g.OID, "tag:8")
		if err != nil {
			b.SetError(err)
			return
		}
		b.AddBytes(element)

	case GeneralNameOtherName:
		b.AddASN1(tag.Constructed(), func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(g.OID)
			b.AddBytes(g.Value)
		})

	case GeneralNameDirectoryName:
		b.AddASN1(tag.Constructed(), func(b *cryptobyte.Builder) {
			b.AddBytes(g.Value)
		})

	case GeneralNameX400Address, GeneralNameEDIPartyName:
		b.AddASN1(tag.Constructed(), func(b *cryptobyte.Builder) {
			b.AddBytes(g.Value)
		})

	default:
		b.SetError(fmt.Errorf("%w: %s", ErrUnsupportedGeneralName, g.Type))
	}
}

// isIA5String reports whether s only holds IA5 (7-bit ASCII) characters.
func isIA5String(s []byte) bool {
	for _, c := range s {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
