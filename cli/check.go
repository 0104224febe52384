package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/georgepadayatti/x509constraints/certvalidator"
	"github.com/georgepadayatti/x509constraints/certvalidator/fetchers"
	"github.com/georgepadayatti/x509constraints/config"
	"github.com/georgepadayatti/x509constraints/keys"
)

// errIssuerNotFound is returned when no candidate issued the leaf.
var errIssuerNotFound = errors.New("issuer of the leaf certificate not found")

// Check statuses
const (
	StatusAccept = "ACCEPT"
	StatusReject = "REJECT"
)

// policyAuthority names the policy file as the source of a violation.
const policyAuthority = "policy"

// CheckOptions contains options for the check command.
type CheckOptions struct {
	ConfigFile string
	JSON       bool
	Fetch      bool
	Verbose    bool
}

// ViolationInfo is one name constraint violation.
type ViolationInfo struct {
	Authority string `json:"authority"`
	Subject   string `json:"subject"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Excluded  bool   `json:"excluded"`
	Message   string `json:"message"`
}

// CheckReport is the outcome of the check command.
type CheckReport struct {
	Status             string          `json:"status"`
	Leaf               string          `json:"leaf"`
	Chain              []string        `json:"chain"`
	Violations         []ViolationInfo `json:"violations,omitempty"`
	MissingKeyUsage    []string        `json:"missing_key_usage,omitempty"`
	MissingExtKeyUsage []string        `json:"missing_ext_key_usage,omitempty"`
	Warnings           []string        `json:"warnings,omitempty"`
}

// Accepted reports whether the leaf passed every check.
func (r *CheckReport) Accepted() bool {
	return len(r.Violations) == 0 && len(r.MissingKeyUsage) == 0 && len(r.MissingExtKeyUsage) == 0
}

// CheckCommand implements the 'check' command.
func CheckCommand(args []string) {
	checkFlags := flag.NewFlagSet("check", flag.ExitOnError)

	var opts CheckOptions
	checkFlags.StringVar(&opts.ConfigFile, "config", "", "Policy file (YAML) with extra name constraints and required key usages")
	checkFlags.BoolVar(&opts.JSON, "json", false, "Output results in JSON format")
	checkFlags.BoolVar(&opts.Fetch, "fetch", false, "Fetch missing issuers from caIssuers URLs")
	checkFlags.BoolVar(&opts.Verbose, "verbose", false, "Log every evaluation step")

	checkFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s check [options] <issuers.pem> <leaf.pem>\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Check a leaf certificate against the name constraints of every CA above it.")
		fmt.Fprintln(stdout, "Exits with status 1 when the leaf is rejected.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Arguments:")
		fmt.Fprintln(stdout, "  issuers.pem  Candidate issuer certificates (PEM bundle or DER)")
		fmt.Fprintln(stdout, "  leaf.pem     Leaf certificate, optionally followed by its served chain")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		checkFlags.PrintDefaults()
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Examples:")
		fmt.Fprintf(stdout, "  %s check ca.pem leaf.pem\n", os.Args[0])
		fmt.Fprintf(stdout, "  %s check -config policy.yaml -json ca.pem leaf.pem\n", os.Args[0])
		fmt.Fprintf(stdout, "  %s check -fetch intermediate.pem leaf.pem\n", os.Args[0])
	}

	if err := checkFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if checkFlags.NArg() != 2 {
		checkFlags.Usage()
		osExit(1)
		return
	}

	policy := &config.PolicyConfig{Logging: &config.LoggingConfig{}}
	if opts.ConfigFile != "" {
		var err error
		if policy, err = config.LoadPolicyConfig(opts.ConfigFile); err != nil {
			fail(err)
			return
		}
	}
	if opts.Verbose {
		policy.Logging.Level = "debug"
	}

	logger, closeLog, err := newLogger(policy.Logging)
	if err != nil {
		fail(err)
		return
	}
	defer closeLog()

	report, err := runCheck(context.Background(), checkFlags.Arg(0), checkFlags.Arg(1), policy, &opts, logger)
	if err != nil {
		logger.Error("check failed", "error", err)
		fail(err)
		return
	}

	if opts.JSON {
		outputJSON(report)
	} else {
		outputCheckText(report)
	}
	if !report.Accepted() {
		osExit(1)
	}
}

// runCheck assembles the chain of the leaf and evaluates every check.
// Malformed certificates or constraints are returned as errors.
func runCheck(ctx context.Context, issuerFile, leafFile string, policy *config.PolicyConfig, opts *CheckOptions, logger *log.Logger) (*CheckReport, error) {
	issuers, err := keys.LoadCertsFromPemDerFiles(append([]string{issuerFile}, policy.Issuers...))
	if err != nil {
		return nil, err
	}
	served, err := keys.LoadCertificateChain([]string{leafFile})
	if err != nil {
		return nil, err
	}
	leaf := served.EndEntity

	store := certvalidator.NewCertificateStore()
	store.RegisterMultiple(issuers)
	store.RegisterMultiple(served.All()[1:])
	logger.Debug("registered candidate issuers", "count", store.Count())

	var source certvalidator.IssuerSource
	if opts.Fetch || (policy.Fetch != nil && policy.Fetch.Enabled) {
		source = newIssuerFetcher(policy.Fetch, logger)
	}

	chain, err := store.BuildChainContext(ctx, leaf, source)
	if err != nil {
		return nil, err
	}
	if len(chain) < 2 {
		return nil, fmt.Errorf("%w: %s", errIssuerNotFound, leaf.Issuer)
	}

	report := &CheckReport{Status: StatusAccept, Leaf: leaf.Subject.String()}
	for _, cert := range chain {
		report.Chain = append(report.Chain, cert.Subject.String())
	}
	logger.Debug("assembled chain", "length", len(chain))
	if !certvalidator.IsSelfIssued(chain[len(chain)-1]) {
		report.Warnings = append(report.Warnings, "chain does not end in a self-issued certificate")
	}

	violations, err := certvalidator.CheckChain(chain)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		report.Violations = append(report.Violations, violationInfo(v.Authority.Subject.String(), v.Subject.Subject.String(), v.Result))
	}

	leafExts, err := certvalidator.CertificateExtensions(leaf)
	if err != nil {
		return nil, err
	}
	san, err := certvalidator.SubjectAltNamesOf(leafExts)
	if err != nil {
		return nil, err
	}
	for _, name := range san {
		logger.Debug("leaf identifier", "name", name.String())
	}

	if policy.NameConstraints != nil {
		nc, err := policy.NameConstraints.Build()
		if err != nil {
			return nil, err
		}
		result, err := certvalidator.CheckNameConstraints(nc, san)
		if err != nil {
			return nil, err
		}
		logger.Debug("evaluated policy name constraints", "permitted", len(nc.Permitted), "excluded", len(nc.Excluded), "valid", result.IsValid())
		if !result.IsValid() {
			report.Violations = append(report.Violations, violationInfo(policyAuthority, report.Leaf, result))
		}
	}

	missingKU, err := certvalidator.MissingKeyUsages(leafExts, policy.RequiredKeyUsage)
	if err != nil {
		return nil, err
	}
	for _, f := range missingKU {
		report.MissingKeyUsage = append(report.MissingKeyUsage, f.String())
	}
	missingEKU, err := certvalidator.MissingExtKeyUsages(leafExts, policy.RequiredExtKeyUsage)
	if err != nil {
		return nil, err
	}
	for _, oid := range missingEKU {
		report.MissingExtKeyUsage = append(report.MissingExtKeyUsage, oid.String())
	}

	isCA, err := certvalidator.IsCA(leafExts)
	if err != nil {
		return nil, err
	}
	report.Warnings = append(report.Warnings, lintCertificate(leafExts, san, isCA, false)...)

	if !report.Accepted() {
		report.Status = StatusReject
	}
	logger.Info("check complete", "leaf", report.Leaf, "status", report.Status, "violations", len(report.Violations))
	return report, nil
}

func violationInfo(authority, subject string, result *certvalidator.NameConstraintValidationResult) ViolationInfo {
	return ViolationInfo{
		Authority: authority,
		Subject:   subject,
		Name:      result.FailingName.Text(),
		Type:      result.FailingName.Type.String(),
		Excluded:  result.Excluded,
		Message:   result.ErrorMessage(),
	}
}

// newIssuerFetcher builds an AIA fetcher whose retries are logged.
func newIssuerFetcher(cfg *config.FetchConfig, logger *log.Logger) *fetchers.Fetcher {
	fc := fetchers.DefaultConfig()
	if cfg != nil {
		fc = cfg.FetcherConfig()
	}
	if fc.RetryConfig == nil {
		fc.RetryConfig = fetchers.DefaultRetryConfig()
	}
	fc.RetryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying issuer fetch", "attempt", attempt, "delay", delay, "error", err)
	}
	return fetchers.NewFetcher(fc)
}

func outputCheckText(r *CheckReport) {
	fmt.Fprintf(stdout, "Name Constraint Check\n")
	fmt.Fprintf(stdout, "=====================\n\n")
	fmt.Fprintf(stdout, "  Status: %s %s\n", getStatusIcon(r.Status), r.Status)
	fmt.Fprintf(stdout, "  Leaf: %s\n", r.Leaf)

	fmt.Fprintf(stdout, "\n  Chain:\n")
	for i, subject := range r.Chain {
		fmt.Fprintf(stdout, "    %d: %s\n", i, subject)
	}

	if len(r.Violations) > 0 {
		fmt.Fprintf(stdout, "\n  Violations:\n")
		for _, v := range r.Violations {
			fmt.Fprintf(stdout, "    - %s\n", v.Message)
			fmt.Fprintf(stdout, "      authority: %s\n", v.Authority)
			if v.Subject != r.Leaf {
				fmt.Fprintf(stdout, "      subject: %s\n", v.Subject)
			}
		}
	}
	printList("Missing Key Usage", r.MissingKeyUsage)
	printList("Missing Extended Key Usage", r.MissingExtKeyUsage)
	printList("Warnings", r.Warnings)
}

func getStatusIcon(status string) string {
	switch status {
	case StatusAccept:
		return "[OK]"
	case StatusReject:
		return "[FAIL]"
	default:
		return "[?]"
	}
}
