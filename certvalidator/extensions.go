// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains the extension set and the Extension wire type.
package certvalidator

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"iter"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Extension is a single certificate extension.
//
//	Extension  ::=  SEQUENCE  {
//	    extnID      OBJECT IDENTIFIER,
//	    critical    BOOLEAN DEFAULT FALSE,
//	    extnValue   OCTET STRING  }
type Extension struct {
	ID       asn1.ObjectIdentifier
	Critical bool
	Value    []byte
}

// RawExtensions is the decoded extensions field of a certificate, in
// certificate order.
type RawExtensions []Extension

// ParseExtensions decodes a DER SEQUENCE OF Extension. Values alias der.
// Duplicate OIDs are not checked here; see NewExtensions.
func ParseExtensions(der []byte) (RawExtensions, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("%w: malformed extensions sequence", ErrExtensionDecode)
	}

	var exts RawExtensions
	for !seq.Empty() {
		var ext Extension
		if err := ext.parse(&seq); err != nil {
			return nil, err
		}
		exts = append(exts, ext)
	}
	return exts, nil
}

func (e *Extension) parse(der *cryptobyte.String) error {
	var extension cryptobyte.String
	if !der.ReadASN1(&extension, cryptobyte_asn1.SEQUENCE) {
		return fmt.Errorf("%w: malformed extension", ErrExtensionDecode)
	}

	var id asn1.ObjectIdentifier
	if !extension.ReadASN1ObjectIdentifier(&id) {
		return fmt.Errorf("%w: malformed extension OID", ErrExtensionDecode)
	}

	critical := false
	if extension.PeekASN1Tag(cryptobyte_asn1.BOOLEAN) {
		if !extension.ReadASN1Boolean(&critical) {
			return fmt.Errorf("%w: malformed critical flag of %s", ErrExtensionDecode, id)
		}
	}

	var value cryptobyte.String
	if !extension.ReadASN1(&value, cryptobyte_asn1.OCTET_STRING) || !extension.Empty() {
		return fmt.Errorf("%w: malformed value of %s", ErrExtensionDecode, id)
	}

	e.ID = id
	e.Critical = critical
	e.Value = value
	return nil
}

// MarshalExtensions encodes exts as a DER SEQUENCE OF Extension. A false
// critical flag is omitted, as DER requires for DEFAULT values.
func MarshalExtensions(exts RawExtensions) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, ext := range exts {
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(ext.ID)
				if ext.Critical {
					b.AddASN1Boolean(true)
				}
				b.AddASN1OctetString(ext.Value)
			})
		}
	})
	return b.Bytes()
}

// RawExtensionsFromPKIX views the extensions of a parsed certificate as
// RawExtensions. Values alias the certificate.
func RawExtensionsFromPKIX(exts []pkix.Extension) RawExtensions {
	if exts == nil {
		return nil
	}
	raw := make(RawExtensions, len(exts))
	for i, ext := range exts {
		raw[i] = Extension{ID: ext.Id, Critical: ext.Critical, Value: ext.Value}
	}
	return raw
}

// Extensions is a view over RawExtensions in which no two extensions share an
// OID. It does not copy the underlying sequence, which must not be modified
// while the view is in use.
type Extensions struct {
	raw RawExtensions
}

// NewExtensions checks raw for duplicate OIDs and wraps it. The returned error
// is a *DuplicateExtensionError naming the first OID seen twice.
func NewExtensions(raw RawExtensions) (Extensions, error) {
	seen := make(map[string]struct{}, len(raw))
	for _, ext := range raw {
		key := ext.ID.String()
		if _, ok := seen[key]; ok {
			return Extensions{}, NewDuplicateExtensionError(ext.ID)
		}
		seen[key] = struct{}{}
	}
	return Extensions{raw: raw}, nil
}

// CertificateExtensions builds the extension set of cert.
func CertificateExtensions(cert *x509.Certificate) (Extensions, error) {
	return NewExtensions(RawExtensionsFromPKIX(cert.Extensions))
}

// Get returns the extension identified by oid.
func (e Extensions) Get(oid asn1.ObjectIdentifier) (Extension, bool) {
	for _, ext := range e.raw {
		if ext.ID.Equal(oid) {
			return ext, true
		}
	}
	return Extension{}, false
}

// Len returns the number of extensions.
func (e Extensions) Len() int {
	return len(e.raw)
}

// All yields the extensions in their original order. It may be ranged over
// any number of times.
func (e Extensions) All() iter.Seq[Extension] {
	return func(yield func(Extension) bool) {
		for _, ext := range e.raw {
			if !yield(ext) {
				return
			}
		}
	}
}

// Raw returns the underlying sequence.
func (e Extensions) Raw() RawExtensions {
	return e.raw
}

// ExtensionValue is implemented by extension bodies that can be decoded from
// an extnValue.
type ExtensionValue interface {
	ParseDER(der []byte) error
}

// DecodeValue parses the value of ext as a T. Decode failures are returned as
// reported by T's ParseDER.
func DecodeValue[T any, PT interface {
	*T
	ExtensionValue
}](ext Extension) (T, error) {
	var v T
	if err := PT(&v).ParseDER(ext.Value); err != nil {
		return v, err
	}
	return v, nil
}

// Lookup finds the extension identified by oid and decodes its value. The
// boolean result is false when the extension is absent.
func Lookup[T any, PT interface {
	*T
	ExtensionValue
}](exts Extensions, oid asn1.ObjectIdentifier) (T, bool, error) {
	ext, ok := exts.Get(oid)
	if !ok {
		var zero T
		return zero, false, nil
	}
	v, err := DecodeValue[T, PT](ext)
	return v, true, err
}
