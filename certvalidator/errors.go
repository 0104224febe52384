// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains error types for extension and name constraint processing.
package certvalidator

import (
	"encoding/asn1"
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrMalformedName indicates an identifier that is not a well-formed
	// DNS name, DNS pattern or IP address.
	ErrMalformedName = errors.New("malformed name")

	// ErrMalformedConstraint indicates a name constraint subtree whose base
	// cannot be interpreted.
	ErrMalformedConstraint = errors.New("malformed name constraint")

	// ErrDuplicateExtension indicates an extensions sequence that lists an
	// OID more than once (RFC 5280 section 4.2).
	ErrDuplicateExtension = errors.New("duplicate extension")

	// ErrExtensionDecode indicates an extension value that could not be parsed.
	ErrExtensionDecode = errors.New("extension decode error")

	// ErrUnsupportedGeneralName indicates a GeneralName tag outside RFC 5280.
	ErrUnsupportedGeneralName = errors.New("unsupported general name")
)

// DuplicateExtensionError reports the first OID that occurs more than once in
// an extensions sequence.
type DuplicateExtensionError struct {
	OID asn1.ObjectIdentifier
}

func (e *DuplicateExtensionError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrDuplicateExtension, e.OID, ExtensionName(e.OID))
}

func (e *DuplicateExtensionError) Unwrap() error {
	return ErrDuplicateExtension
}

// NewDuplicateExtensionError creates a new DuplicateExtensionError.
func NewDuplicateExtensionError(oid asn1.ObjectIdentifier) *DuplicateExtensionError {
	return &DuplicateExtensionError{OID: oid}
}

// MalformedNameError reports an identifier or constraint base that failed
// validation. A certificate carrying one must be rejected, never treated as
// unconstrained.
type MalformedNameError struct {
	NameType   GeneralNameType
	Value      string
	Constraint bool
}

func (e *MalformedNameError) Error() string {
	if e.Constraint {
		return fmt.Sprintf("%s: %s base %q", ErrMalformedConstraint, e.NameType, e.Value)
	}
	return fmt.Sprintf("%s: %s %q", ErrMalformedName, e.NameType, e.Value)
}

func (e *MalformedNameError) Unwrap() error {
	if e.Constraint {
		return ErrMalformedConstraint
	}
	return ErrMalformedName
}

// NewMalformedNameError creates a MalformedNameError for a certificate identifier.
func NewMalformedNameError(nameType GeneralNameType, value string) *MalformedNameError {
	return &MalformedNameError{NameType: nameType, Value: value}
}

// NewMalformedConstraintError creates a MalformedNameError for a subtree base.
func NewMalformedConstraintError(nameType GeneralNameType, value string) *MalformedNameError {
	return &MalformedNameError{NameType: nameType, Value: value, Constraint: true}
}

func decodeError(what string) error {
	return fmt.Errorf("%w: malformed %s", ErrExtensionDecode, what)
}
