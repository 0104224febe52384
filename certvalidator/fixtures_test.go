// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains helpers that mint certificate fixtures for tests.
package certvalidator

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

// testCA is a signing certificate together with its key.
type testCA struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func baseTemplate(serial int64, cn string) *x509.Certificate {
	now := time.Now()
	return &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
	}
}

// mintCA creates a self-signed CA. configure may add name constraints or
// other extensions to the template before signing.
func mintCA(t *testing.T, configure func(*x509.Certificate)) *testCA {
	t.Helper()
	key := newTestKey(t)

	template := baseTemplate(1, "Test CA")
	template.IsCA = true
	template.BasicConstraintsValid = true
	template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	if configure != nil {
		configure(template)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create CA certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse CA certificate: %v", err)
	}
	return &testCA{cert: cert, key: key}
}

// mintIntermediate issues a CA certificate named cn under parent.
func mintIntermediate(t *testing.T, parent *testCA, cn string, configure func(*x509.Certificate)) *testCA {
	t.Helper()
	key := newTestKey(t)

	template := baseTemplate(3, cn)
	template.IsCA = true
	template.BasicConstraintsValid = true
	template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	if configure != nil {
		configure(template)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent.cert, &key.PublicKey, parent.key)
	if err != nil {
		t.Fatalf("Failed to create intermediate certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse intermediate certificate: %v", err)
	}
	return &testCA{cert: cert, key: key}
}

// mintLeaf issues an end-entity certificate for dnsNames and ips.
func mintLeaf(t *testing.T, ca *testCA, dnsNames []string, ips []net.IP, configure func(*x509.Certificate)) *x509.Certificate {
	t.Helper()
	key := newTestKey(t)

	template := baseTemplate(2, "leaf")
	template.DNSNames = dnsNames
	template.IPAddresses = ips
	template.KeyUsage = x509.KeyUsageDigitalSignature
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	if configure != nil {
		configure(template)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		t.Fatalf("Failed to create leaf certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse leaf certificate: %v", err)
	}
	return cert
}

// mustExtensions builds the extension set of cert or fails the test.
func mustExtensions(t *testing.T, cert *x509.Certificate) Extensions {
	t.Helper()
	exts, err := CertificateExtensions(cert)
	if err != nil {
		t.Fatalf("CertificateExtensions() error = %v", err)
	}
	return exts
}

// mustRange parses a CIDR into an IPRange or fails the test.
func mustRange(t *testing.T, cidr string) IPRange {
	t.Helper()
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("ParseCIDR(%q) error = %v", cidr, err)
	}
	ip := network.IP
	if v4 := ip.To4(); v4 != nil && len(network.Mask) == net.IPv4len {
		ip = v4
	}
	r, ok := IPRangeFromBytes(append(append([]byte{}, ip...), network.Mask...))
	if !ok {
		t.Fatalf("IPRangeFromBytes(%s) failed", cidr)
	}
	return r
}

// mustIP parses a textual address or fails the test.
func mustIP(t *testing.T, s string) IPAddress {
	t.Helper()
	addr, ok := ParseIPAddress(s)
	if !ok {
		t.Fatalf("ParseIPAddress(%q) failed", s)
	}
	return addr
}

func dnsSubtree(name string) GeneralSubtree {
	return GeneralSubtree{Base: DNSGeneralName(name)}
}

func ipSubtree(r IPRange) GeneralSubtree {
	return GeneralSubtree{Base: IPRangeGeneralName(r)}
}
