// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains certificate helper functions.
package certvalidator

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
)

// CertificateFingerprint returns the SHA-256 fingerprint of a certificate.
func CertificateFingerprint(cert *x509.Certificate) [32]byte {
	return sha256.Sum256(cert.Raw)
}

// IsSelfIssued checks if a certificate is self-issued (issuer == subject).
// A certificate is self-issued if the issuer and subject are the same,
// but it may still be signed by a different key. RFC 5280 section 6.1.3
// exempts self-issued intermediates from name constraints.
func IsSelfIssued(cert *x509.Certificate) bool {
	return bytes.Equal(cert.RawSubject, cert.RawIssuer)
}

// IsCA reports whether exts carry a basicConstraints extension asserting cA.
func IsCA(exts Extensions) (bool, error) {
	bc, ok, err := Lookup[BasicConstraints](exts, OIDExtensionBasicConstraints)
	if err != nil || !ok {
		return false, err
	}
	return bc.CA, nil
}

// OIDExtKeyUsageAny is anyExtendedKeyUsage.
var OIDExtKeyUsageAny = asn1.ObjectIdentifier{2, 5, 29, 37, 0}

// MissingKeyUsages returns the flags of required that the keyUsage extension
// of exts does not assert. Without a keyUsage extension the key is
// unrestricted and nothing is missing.
func MissingKeyUsages(exts Extensions, required []KeyUsageFlag) ([]KeyUsageFlag, error) {
	ku, ok, err := Lookup[KeyUsage](exts, OIDExtensionKeyUsage)
	if err != nil || !ok {
		return nil, err
	}
	var missing []KeyUsageFlag
	for _, flag := range required {
		if !ku.Has(flag) {
			missing = append(missing, flag)
		}
	}
	return missing, nil
}

// MissingExtKeyUsages returns the purposes of required that the
// extKeyUsage extension of exts does not list. anyExtendedKeyUsage satisfies
// every purpose, and a certificate without the extension is unrestricted.
func MissingExtKeyUsages(exts Extensions, required []asn1.ObjectIdentifier) ([]asn1.ObjectIdentifier, error) {
	eku, ok, err := Lookup[ExtendedKeyUsage](exts, OIDExtensionExtendedKeyUsage)
	if err != nil || !ok || eku.Contains(OIDExtKeyUsageAny) {
		return nil, err
	}
	var missing []asn1.ObjectIdentifier
	for _, purpose := range required {
		if !eku.Contains(purpose) {
			missing = append(missing, purpose)
		}
	}
	return missing, nil
}
