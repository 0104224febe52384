package cli

import (
	"crypto/x509"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/georgepadayatti/x509constraints/certvalidator"
	"github.com/georgepadayatti/x509constraints/keys"
)

// ExtensionInfo describes one extension of a certificate.
type ExtensionInfo struct {
	OID      string `json:"oid"`
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
}

// BasicConstraintsInfo is the JSON form of BasicConstraints.
type BasicConstraintsInfo struct {
	CA         bool    `json:"ca"`
	PathLength *uint64 `json:"path_length,omitempty"`
}

// NameConstraintsInfo is the JSON form of NameConstraints.
type NameConstraintsInfo struct {
	Permitted []string `json:"permitted,omitempty"`
	Excluded  []string `json:"excluded,omitempty"`
}

// InspectReport is the decoded view of a certificate.
type InspectReport struct {
	Subject          string                `json:"subject"`
	Issuer           string                `json:"issuer"`
	Serial           string                `json:"serial"`
	Extensions       []ExtensionInfo       `json:"extensions"`
	BasicConstraints *BasicConstraintsInfo `json:"basic_constraints,omitempty"`
	KeyUsage         []string              `json:"key_usage,omitempty"`
	ExtKeyUsage      []string              `json:"ext_key_usage,omitempty"`
	SubjectAltNames  []string              `json:"subject_alt_names,omitempty"`
	NameConstraints  *NameConstraintsInfo  `json:"name_constraints,omitempty"`
	CAIssuers        []string              `json:"ca_issuers,omitempty"`
	Warnings         []string              `json:"warnings,omitempty"`
}

// InspectCommand implements the 'inspect' command.
func InspectCommand(args []string) {
	inspectFlags := flag.NewFlagSet("inspect", flag.ExitOnError)
	jsonOutput := inspectFlags.Bool("json", false, "Output results in JSON format")

	inspectFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s inspect [options] <cert.pem>\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Show the extensions of every certificate in a PEM or DER file.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		inspectFlags.PrintDefaults()
	}

	if err := inspectFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if inspectFlags.NArg() != 1 {
		inspectFlags.Usage()
		osExit(1)
		return
	}

	certs, err := keys.LoadCertsFromPemDer(inspectFlags.Arg(0))
	if err != nil {
		fail(err)
		return
	}

	reports := make([]*InspectReport, 0, len(certs))
	for _, cert := range certs {
		report, err := inspectCertificate(cert)
		if err != nil {
			fail(fmt.Errorf("%s: %w", cert.Subject, err))
			return
		}
		reports = append(reports, report)
	}

	if *jsonOutput {
		outputJSON(reports)
		return
	}
	for i, report := range reports {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		outputInspectText(report)
	}
}

// inspectCertificate decodes the extensions of cert. Decoding errors are
// returned; lint findings become warnings.
func inspectCertificate(cert *x509.Certificate) (*InspectReport, error) {
	exts, err := certvalidator.CertificateExtensions(cert)
	if err != nil {
		return nil, err
	}

	report := &InspectReport{
		Subject: cert.Subject.String(),
		Issuer:  cert.Issuer.String(),
		Serial:  cert.SerialNumber.Text(16),
	}
	for ext := range exts.All() {
		report.Extensions = append(report.Extensions, ExtensionInfo{
			OID:      ext.ID.String(),
			Name:     certvalidator.ExtensionName(ext.ID),
			Critical: ext.Critical,
		})
	}

	bc, hasBC, err := certvalidator.Lookup[certvalidator.BasicConstraints](exts, certvalidator.OIDExtensionBasicConstraints)
	if err != nil {
		return nil, err
	}
	if hasBC {
		report.BasicConstraints = &BasicConstraintsInfo{CA: bc.CA, PathLength: bc.PathLength}
	}

	ku, hasKU, err := certvalidator.Lookup[certvalidator.KeyUsage](exts, certvalidator.OIDExtensionKeyUsage)
	if err != nil {
		return nil, err
	}
	for _, f := range ku.Flags() {
		report.KeyUsage = append(report.KeyUsage, f.String())
	}

	eku, _, err := certvalidator.Lookup[certvalidator.ExtendedKeyUsage](exts, certvalidator.OIDExtensionExtendedKeyUsage)
	if err != nil {
		return nil, err
	}
	for _, purpose := range eku {
		report.ExtKeyUsage = append(report.ExtKeyUsage, purpose.String())
	}

	san, err := certvalidator.SubjectAltNamesOf(exts)
	if err != nil {
		return nil, err
	}
	for _, name := range san {
		report.SubjectAltNames = append(report.SubjectAltNames, displayName(name))
	}

	nc, err := certvalidator.NameConstraintsOf(exts)
	if err != nil {
		return nil, err
	}
	if nc != nil {
		report.NameConstraints = &NameConstraintsInfo{
			Permitted: subtreeStrings(nc.Permitted),
			Excluded:  subtreeStrings(nc.Excluded),
		}
	}

	if report.CAIssuers, err = certvalidator.CAIssuersURLs(exts); err != nil {
		return nil, err
	}

	report.Warnings = lintCertificate(exts, san, bc.CA, hasKU && !ku.KeyCertSign())
	return report, nil
}

// lintCertificate reports questionable but decodable extension content.
func lintCertificate(exts certvalidator.Extensions, san []certvalidator.GeneralName, isCA, caWithoutCertSign bool) []string {
	var warnings []string

	for _, name := range san {
		if name.Type != certvalidator.GeneralNameDNSName {
			continue
		}
		pattern, ok := certvalidator.NewDNSPattern(string(name.Value))
		if !ok {
			warnings = append(warnings, fmt.Sprintf("malformed dNSName %q in subjectAltName", name.Value))
			continue
		}
		if certvalidator.WildcardCoversPublicSuffix(pattern) {
			warnings = append(warnings, fmt.Sprintf("wildcard %s sits directly on the public suffix %s", pattern, pattern.Name()))
		}
	}

	if ext, ok := exts.Get(certvalidator.OIDExtensionNameConstraints); ok {
		if !isCA {
			warnings = append(warnings, "nameConstraints present on a certificate that is not a CA")
		}
		if !ext.Critical {
			warnings = append(warnings, "nameConstraints is not marked critical")
		}
	}

	if isCA && caWithoutCertSign {
		warnings = append(warnings, "CA certificate keyUsage does not assert key_cert_sign")
	}
	return warnings
}

// displayName renders a GeneralName, adding the Unicode form of IDNA
// dNSNames.
func displayName(name certvalidator.GeneralName) string {
	s := name.String()
	if name.Type != certvalidator.GeneralNameDNSName {
		return s
	}
	host := strings.TrimPrefix(string(name.Value), "*.")
	dns, ok := certvalidator.NewDNSName(host)
	if !ok {
		return s
	}
	if u, err := dns.Unicode(); err == nil && u != dns.String() {
		return fmt.Sprintf("%s (%s)", s, u)
	}
	return s
}

func subtreeStrings(subtrees []certvalidator.GeneralSubtree) []string {
	out := make([]string, 0, len(subtrees))
	for _, st := range subtrees {
		out = append(out, st.Base.String())
	}
	return out
}

func outputInspectText(r *InspectReport) {
	fmt.Fprintf(stdout, "Certificate\n")
	fmt.Fprintf(stdout, "-----------\n")
	fmt.Fprintf(stdout, "  Subject: %s\n", r.Subject)
	fmt.Fprintf(stdout, "  Issuer: %s\n", r.Issuer)
	fmt.Fprintf(stdout, "  Serial: %s\n", r.Serial)

	fmt.Fprintf(stdout, "\n  Extensions:\n")
	for _, ext := range r.Extensions {
		critical := ""
		if ext.Critical {
			critical = " (critical)"
		}
		fmt.Fprintf(stdout, "    %s %s%s\n", ext.OID, ext.Name, critical)
	}

	if r.BasicConstraints != nil {
		fmt.Fprintf(stdout, "\n  Basic Constraints: CA=%v", r.BasicConstraints.CA)
		if r.BasicConstraints.PathLength != nil {
			fmt.Fprintf(stdout, ", pathlen=%d", *r.BasicConstraints.PathLength)
		}
		fmt.Fprintln(stdout)
	}
	if len(r.KeyUsage) > 0 {
		fmt.Fprintf(stdout, "  Key Usage: %s\n", strings.Join(r.KeyUsage, ", "))
	}
	if len(r.ExtKeyUsage) > 0 {
		fmt.Fprintf(stdout, "  Extended Key Usage: %s\n", strings.Join(r.ExtKeyUsage, ", "))
	}
	printList("Subject Alternative Names", r.SubjectAltNames)
	if r.NameConstraints != nil {
		printList("Permitted Subtrees", r.NameConstraints.Permitted)
		printList("Excluded Subtrees", r.NameConstraints.Excluded)
	}
	printList("CA Issuers", r.CAIssuers)
	printList("Warnings", r.Warnings)
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(stdout, "\n  %s:\n", title)
	for _, item := range items {
		fmt.Fprintf(stdout, "    %s\n", item)
	}
}
