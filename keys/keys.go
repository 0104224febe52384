// Package keys loads X.509 certificates from PEM and DER encoded files.
package keys

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/georgepadayatti/x509constraints/certvalidator"
)

// Common errors
var (
	ErrNoCertFound   = errors.New("no certificate found in data")
	ErrMultipleCerts = errors.New("expected exactly one certificate")
)

const pemCertificateType = "CERTIFICATE"

// LoadCertFromPemDer loads a single certificate from a PEM or DER encoded file.
func LoadCertFromPemDer(filename string) (*x509.Certificate, error) {
	certs, err := LoadCertsFromPemDer(filename)
	if err != nil {
		return nil, err
	}
	if len(certs) != 1 {
		return nil, fmt.Errorf("%w: found %d certificates in %s", ErrMultipleCerts, len(certs), filename)
	}
	return certs[0], nil
}

// LoadCertsFromPemDer loads certificates from a PEM or DER encoded file.
func LoadCertsFromPemDer(filename string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return LoadCertsFromPemDerData(data)
}

// LoadCertsFromPemDerData loads certificates from PEM or DER encoded data.
// PEM blocks other than CERTIFICATE are skipped. DER input may hold several
// concatenated certificates.
func LoadCertsFromPemDerData(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate

	if isPEM(data) {
		rest := data
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type != pemCertificateType {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			certs = append(certs, cert)
		}
	} else if len(data) > 0 {
		parsed, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DER certificate: %w", err)
		}
		certs = parsed
	}

	if len(certs) == 0 {
		return nil, ErrNoCertFound
	}
	return certs, nil
}

// LoadCertsFromPemDerFiles loads certificates from multiple files.
func LoadCertsFromPemDerFiles(filenames []string) ([]*x509.Certificate, error) {
	var allCerts []*x509.Certificate
	for _, filename := range filenames {
		certs, err := LoadCertsFromPemDer(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to load certs from %s: %w", filename, err)
		}
		allCerts = append(allCerts, certs...)
	}
	return allCerts, nil
}

// isPEM reports whether data starts, after leading whitespace, with a PEM
// boundary line.
func isPEM(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("-----BEGIN "))
}

// EncodePEM encodes certs as a sequence of CERTIFICATE blocks.
func EncodePEM(certs []*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, cert := range certs {
		pem.Encode(&buf, &pem.Block{Type: pemCertificateType, Bytes: cert.Raw})
	}
	return buf.Bytes()
}

// CertificateChain is a served certificate list split into its parts.
type CertificateChain struct {
	// EndEntity is the first certificate of the list.
	EndEntity *x509.Certificate

	// Intermediates are the certificates between the end entity and the root.
	Intermediates []*x509.Certificate

	// Root is the trailing self-issued certificate, if the list has one.
	Root *x509.Certificate
}

// All returns the chain's certificates, end entity first.
func (c *CertificateChain) All() []*x509.Certificate {
	all := append([]*x509.Certificate{c.EndEntity}, c.Intermediates...)
	if c.Root != nil {
		all = append(all, c.Root)
	}
	return all
}

// NewCertificateChain splits certs, end entity first, into a CertificateChain.
func NewCertificateChain(certs []*x509.Certificate) (*CertificateChain, error) {
	if len(certs) == 0 {
		return nil, ErrNoCertFound
	}

	chain := &CertificateChain{EndEntity: certs[0]}
	rest := certs[1:]
	if n := len(rest); n > 0 && certvalidator.IsSelfIssued(rest[n-1]) {
		chain.Root = rest[n-1]
		rest = rest[:n-1]
	}
	chain.Intermediates = rest
	return chain, nil
}

// LoadCertificateChain loads a certificate chain from files. The first
// certificate of the first file is the end entity.
func LoadCertificateChain(certFiles []string) (*CertificateChain, error) {
	if len(certFiles) == 0 {
		return nil, errors.New("no certificate files provided")
	}
	certs, err := LoadCertsFromPemDerFiles(certFiles)
	if err != nil {
		return nil, err
	}
	return NewCertificateChain(certs)
}
