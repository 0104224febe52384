// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains the certificate store and chain assembly.
package certvalidator

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"
)

// ErrChainTooLong is returned when chain assembly does not reach a
// self-issued certificate within maxChainLength steps.
var ErrChainTooLong = errors.New("certificate chain too long")

// IssuerSource supplies issuer certificates from the caIssuers URLs of a
// certificate's authorityInfoAccess extension.
type IssuerSource interface {
	FetchIssuers(ctx context.Context, urls []string) ([]*x509.Certificate, error)
}

// maxChainLength bounds BuildChain so that cross-signed loops terminate.
const maxChainLength = 16

// CertificateStore is an in-memory index of candidate issuer certificates.
// Issuers are matched by subject name and key identifier only; signatures
// are not checked.
type CertificateStore struct {
	mu sync.RWMutex

	certs map[[32]byte]*x509.Certificate

	// Index by raw subject for issuer lookups
	subjectMap map[string][]*x509.Certificate

	// Index by subject key identifier
	keyIDMap map[string][]*x509.Certificate
}

// NewCertificateStore creates an empty CertificateStore.
func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		certs:      make(map[[32]byte]*x509.Certificate),
		subjectMap: make(map[string][]*x509.Certificate),
		keyIDMap:   make(map[string][]*x509.Certificate),
	}
}

// Register adds a certificate to the store. It returns false if the same
// certificate was already registered.
func (s *CertificateStore) Register(cert *x509.Certificate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := CertificateFingerprint(cert)
	if _, exists := s.certs[fp]; exists {
		return false
	}
	s.certs[fp] = cert

	subjectKey := string(cert.RawSubject)
	s.subjectMap[subjectKey] = append(s.subjectMap[subjectKey], cert)

	if len(cert.SubjectKeyId) > 0 {
		keyIDKey := string(cert.SubjectKeyId)
		s.keyIDMap[keyIDKey] = append(s.keyIDMap[keyIDKey], cert)
	}
	return true
}

// RegisterMultiple adds multiple certificates to the store.
func (s *CertificateStore) RegisterMultiple(certs []*x509.Certificate) {
	for _, cert := range certs {
		s.Register(cert)
	}
}

// Count returns the number of certificates in the store.
func (s *CertificateStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.certs)
}

// FindPotentialIssuers returns the registered certificates that could have
// issued cert, in registration order.
func (s *CertificateStore) FindPotentialIssuers(cert *x509.Certificate) []*x509.Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*x509.Certificate
	if len(cert.AuthorityKeyId) > 0 {
		candidates = s.keyIDMap[string(cert.AuthorityKeyId)]
	}
	if len(candidates) == 0 {
		candidates = s.subjectMap[string(cert.RawIssuer)]
	}

	var issuers []*x509.Certificate
	for _, candidate := range candidates {
		if isPotentialIssuer(candidate, cert) {
			issuers = append(issuers, candidate)
		}
	}
	return issuers
}

// isPotentialIssuer checks if issuer could have issued cert.
func isPotentialIssuer(issuer, cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, issuer.RawSubject) {
		return false
	}
	if len(cert.AuthorityKeyId) > 0 && len(issuer.SubjectKeyId) > 0 {
		return bytes.Equal(cert.AuthorityKeyId, issuer.SubjectKeyId)
	}
	return true
}

// BuildChain walks from leaf towards a self-issued certificate using the
// first matching issuer at each step. The returned chain starts with leaf.
// A chain that ends because no issuer is registered is returned as is.
func (s *CertificateStore) BuildChain(leaf *x509.Certificate) ([]*x509.Certificate, error) {
	return s.BuildChainContext(context.Background(), leaf, nil)
}

// BuildChainContext is BuildChain with an optional IssuerSource. When no
// registered certificate issued the current one, the caIssuers URLs of its
// authorityInfoAccess extension are fetched and the results registered
// before the lookup is retried. Fetch failures end the chain.
func (s *CertificateStore) BuildChainContext(ctx context.Context, leaf *x509.Certificate, source IssuerSource) ([]*x509.Certificate, error) {
	chain := []*x509.Certificate{leaf}
	seen := map[[32]byte]bool{CertificateFingerprint(leaf): true}

	current := leaf
	for !IsSelfIssued(current) {
		if len(chain) >= maxChainLength {
			return nil, fmt.Errorf("%w: more than %d certificates", ErrChainTooLong, maxChainLength)
		}

		next := s.nextIssuer(current, seen)
		if next == nil && source != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if s.fetchIssuers(ctx, current, source) {
				next = s.nextIssuer(current, seen)
			}
		}
		if next == nil {
			break
		}
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}

func (s *CertificateStore) nextIssuer(cert *x509.Certificate, seen map[[32]byte]bool) *x509.Certificate {
	for _, issuer := range s.FindPotentialIssuers(cert) {
		if fp := CertificateFingerprint(issuer); !seen[fp] {
			seen[fp] = true
			return issuer
		}
	}
	return nil
}

// fetchIssuers registers the certificates source returns for the caIssuers
// URLs of cert and reports whether any new certificate was added.
func (s *CertificateStore) fetchIssuers(ctx context.Context, cert *x509.Certificate, source IssuerSource) bool {
	exts, err := CertificateExtensions(cert)
	if err != nil {
		return false
	}
	urls, err := CAIssuersURLs(exts)
	if err != nil || len(urls) == 0 {
		return false
	}
	fetched, err := source.FetchIssuers(ctx, urls)
	if err != nil {
		return false
	}
	added := false
	for _, issuer := range fetched {
		if s.Register(issuer) {
			added = true
		}
	}
	return added
}

// ChainViolation is a name constraint failure found by CheckChain.
type ChainViolation struct {
	// Authority is the certificate whose constraints were violated.
	Authority *x509.Certificate
	// Subject is the certificate carrying the failing name.
	Subject *x509.Certificate
	Result  *NameConstraintValidationResult
}

// CheckChain applies the name constraints of every certificate in chain to
// the subject alternative names of the certificates below it. chain is
// ordered leaf first. Following RFC 5280 section 6.1.3, self-issued
// intermediates are not checked; the leaf always is.
//
// Each authority's constraints are evaluated on their own. A malformed
// constraint or identifier anywhere in the chain is returned as an error
// naming the certificate that carries it.
func CheckChain(chain []*x509.Certificate) ([]ChainViolation, error) {
	exts := make([]Extensions, len(chain))
	for i, cert := range chain {
		var err error
		if exts[i], err = CertificateExtensions(cert); err != nil {
			return nil, fmt.Errorf("certificate %d (%s): %w", i, cert.Subject, err)
		}
	}

	var violations []ChainViolation
	for i := 1; i < len(chain); i++ {
		nc, err := NameConstraintsOf(exts[i])
		if err != nil {
			return nil, fmt.Errorf("certificate %d (%s): %w", i, chain[i].Subject, err)
		}
		if nc == nil {
			continue
		}
		checker, err := NewNameConstraintChecker(nc.Permitted, nc.Excluded)
		if err != nil {
			return nil, fmt.Errorf("certificate %d (%s): %w", i, chain[i].Subject, err)
		}

		for j := 0; j < i; j++ {
			if j > 0 && IsSelfIssued(chain[j]) {
				continue
			}
			names, err := SubjectAltNamesOf(exts[j])
			if err != nil {
				return nil, fmt.Errorf("certificate %d (%s): %w", j, chain[j].Subject, err)
			}
			result, err := checker.Check(names)
			if err != nil {
				return nil, fmt.Errorf("certificate %d (%s): %w", j, chain[j].Subject, err)
			}
			if !result.IsValid() {
				violations = append(violations, ChainViolation{
					Authority: chain[i],
					Subject:   chain[j],
					Result:    result,
				})
			}
		}
	}
	return violations, nil
}
