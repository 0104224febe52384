// Package config loads the YAML policy file: extra name constraints,
// required key usages, AIA fetching and logging settings.
package config

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/georgepadayatti/x509constraints/certvalidator"
	"github.com/georgepadayatti/x509constraints/certvalidator/fetchers"
	"gopkg.in/yaml.v3"
)

// Common errors
var (
	ErrConfigurationError = errors.New("configuration error")
	ErrUnexpectedField    = errors.New("unexpected field in configuration")
	ErrInvalidOID         = errors.New("invalid OID")
	ErrInvalidConfigType  = errors.New("configuration must be a dictionary")
)

// OIDRegex matches OID strings like "1.2.3.4"
var OIDRegex = regexp.MustCompile(`^\d+(\.\d+)+$`)

// ConfigError represents a configuration error with context.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrConfigurationError
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// SubtreesConfig lists constraint bases by type.
type SubtreesConfig struct {
	// DNS holds dNSName bases such as "example.com".
	DNS []string `yaml:"dns" json:"dns,omitempty"`

	// IP holds iPAddress ranges in CIDR notation.
	IP []string `yaml:"ip" json:"ip,omitempty"`
}

// NameConstraintsConfig holds name constraints applied to the leaf in
// addition to those found in the chain.
type NameConstraintsConfig struct {
	Permitted *SubtreesConfig `yaml:"permitted" json:"permitted,omitempty"`
	Excluded  *SubtreesConfig `yaml:"excluded" json:"excluded,omitempty"`
}

// FetchConfig controls retrieval of missing issuers from caIssuers URLs.
type FetchConfig struct {
	// Enabled turns AIA fetching on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout" json:"timeout,omitempty"`

	// MaxAttempts bounds retries of a single URL.
	MaxAttempts int `yaml:"max-attempts" json:"max_attempts,omitempty"`
	// Parallelism limits concurrent downloads.
	Parallelism int `yaml:"parallelism" json:"parallelism,omitempty"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level,omitempty"`

	// Format is the log format (text, json, logfmt).
	Format string `yaml:"format" json:"format,omitempty"`

	// Output is the log output (stdout, stderr, or file path).
	Output string `yaml:"output" json:"output,omitempty"`
}

// PolicyConfig is the top-level policy file.
type PolicyConfig struct {
	NameConstraints *NameConstraintsConfig `yaml:"name-constraints" json:"name_constraints,omitempty"`

	// KeyUsage is a flag name or a list of them, required on the leaf.
	KeyUsage any `yaml:"key-usage" json:"key_usage,omitempty"`

	// ExtKeyUsage is a purpose name or OID, or a list of them, required on
	// the leaf.
	ExtKeyUsage any `yaml:"ext-key-usage" json:"ext_key_usage,omitempty"`

	// Issuers are extra certificate files offered as chain candidates.
	Issuers []string `yaml:"issuers" json:"issuers,omitempty"`

	Fetch   *FetchConfig   `yaml:"fetch" json:"fetch,omitempty"`
	Logging *LoggingConfig `yaml:"logging" json:"logging,omitempty"`

	// Resolved by Validate.
	RequiredKeyUsage    []certvalidator.KeyUsageFlag `yaml:"-" json:"-"`
	RequiredExtKeyUsage []asn1.ObjectIdentifier      `yaml:"-" json:"-"`
}

var (
	policyKeys          = []string{"name-constraints", "key-usage", "ext-key-usage", "issuers", "fetch", "logging"}
	nameConstraintsKeys = []string{"permitted", "excluded"}
	subtreesKeys        = []string{"dns", "ip"}
	fetchKeys           = []string{"enabled", "timeout", "max-attempts", "parallelism"}
	loggingKeys         = []string{"level", "format", "output"}
)

// LoadPolicyConfig loads a policy file.
func LoadPolicyConfig(filename string) (*PolicyConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParsePolicyConfig(data)
}

// ParsePolicyConfig parses and validates a policy from YAML data. Unknown
// keys are rejected; underscores in keys are accepted in place of dashes.
func ParsePolicyConfig(data []byte) (*PolicyConfig, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	top, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrInvalidConfigType
	}
	top, err := normalizeTree("policy", top)
	if err != nil {
		return nil, err
	}

	normalized, err := yaml.Marshal(top)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	var config PolicyConfig
	if err := yaml.Unmarshal(normalized, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Logging == nil {
		config.Logging = &LoggingConfig{}
	}
	config.Logging.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// normalizeTree checks the keys of every known section against the
// expected set and rewrites them to their dashed form.
func normalizeTree(name string, m map[string]any) (map[string]any, error) {
	expected := map[string][]string{
		"policy":           policyKeys,
		"name-constraints": nameConstraintsKeys,
		"permitted":        subtreesKeys,
		"excluded":         subtreesKeys,
		"fetch":            fetchKeys,
		"logging":          loggingKeys,
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if err := CheckConfigKeys(name, expected[name], keys); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		key := normalizeKey(k)
		if sub, ok := v.(map[string]any); ok {
			if _, known := expected[key]; known {
				var err error
				if v, err = normalizeTree(key, sub); err != nil {
					return nil, err
				}
			}
		} else if _, known := expected[key]; known && v != nil {
			return nil, NewConfigError(key, fmt.Sprintf("must be a dictionary, got %T", v))
		}
		out[key] = v
	}
	return out, nil
}

// Validate checks every section and resolves the required usages.
func (c *PolicyConfig) Validate() error {
	if c.NameConstraints != nil {
		if _, err := c.NameConstraints.Build(); err != nil {
			return err
		}
	}

	if c.KeyUsage != nil {
		names, err := ProcessKeyUsageFlags(c.KeyUsage, "key-usage")
		if err != nil {
			return err
		}
		if c.RequiredKeyUsage, err = KeyUsageFlags(names); err != nil {
			return err
		}
	}

	if c.ExtKeyUsage != nil {
		purposes, err := EnsureStrings(c.ExtKeyUsage, "ext-key-usage")
		if err != nil {
			return err
		}
		if c.RequiredExtKeyUsage, err = ExtKeyUsageOIDs(purposes); err != nil {
			return err
		}
	}

	if c.Fetch != nil {
		if err := c.Fetch.Validate(); err != nil {
			return err
		}
	}
	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Build converts the configured bases into a NameConstraints extension body.
// IP ranges are encoded as the address followed by its mask, the iPAddress
// constraint wire form.
func (c *NameConstraintsConfig) Build() (certvalidator.NameConstraints, error) {
	var nc certvalidator.NameConstraints
	var err error
	if nc.Permitted, err = c.Permitted.subtrees("name-constraints.permitted"); err != nil {
		return certvalidator.NameConstraints{}, err
	}
	if nc.Excluded, err = c.Excluded.subtrees("name-constraints.excluded"); err != nil {
		return certvalidator.NameConstraints{}, err
	}
	return nc, nil
}

func (s *SubtreesConfig) subtrees(field string) ([]certvalidator.GeneralSubtree, error) {
	if s == nil {
		return nil, nil
	}

	var out []certvalidator.GeneralSubtree
	for _, name := range s.DNS {
		if _, ok := certvalidator.NewDNSName(name); !ok {
			return nil, NewConfigError(field+".dns", fmt.Sprintf("'%s' is not a valid DNS name", name))
		}
		out = append(out, certvalidator.GeneralSubtree{Base: certvalidator.DNSGeneralName(name)})
	}
	for _, cidr := range s.IP {
		r, err := ParseIPRange(cidr)
		if err != nil {
			return nil, &ConfigError{Field: field + ".ip", Message: err.Error(), Err: err}
		}
		out = append(out, certvalidator.GeneralSubtree{Base: certvalidator.IPRangeGeneralName(r)})
	}
	return out, nil
}

// ParseIPRange parses a CIDR string into an IPRange. Host bits are cleared.
func ParseIPRange(cidr string) (certvalidator.IPRange, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return certvalidator.IPRange{}, fmt.Errorf("%w: invalid CIDR %q", ErrConfigurationError, cidr)
	}
	prefix = prefix.Masked()

	addr := prefix.Addr().AsSlice()
	mask := make([]byte, len(addr))
	for i := 0; i < prefix.Bits(); i++ {
		mask[i/8] |= 0x80 >> (i % 8)
	}

	r, ok := certvalidator.IPRangeFromBytes(append(addr, mask...))
	if !ok {
		return certvalidator.IPRange{}, fmt.Errorf("%w: invalid CIDR %q", ErrConfigurationError, cidr)
	}
	return r, nil
}

// Validate checks the fetch settings.
func (c *FetchConfig) Validate() error {
	if c.Timeout < 0 {
		return NewConfigError("fetch.timeout", "must not be negative")
	}
	if c.MaxAttempts < 0 {
		return NewConfigError("fetch.max-attempts", "must not be negative")
	}
	if c.Parallelism < 0 {
		return NewConfigError("fetch.parallelism", "must not be negative")
	}
	return nil
}

// FetcherConfig returns the fetcher settings, starting from
// fetchers.DefaultConfig and overriding what is set.
func (c *FetchConfig) FetcherConfig() *fetchers.FetcherConfig {
	fc := fetchers.DefaultConfig()
	if c.Timeout > 0 {
		fc.Timeout = time.Duration(c.Timeout) * time.Second
	}
	if c.MaxAttempts > 0 {
		retry := fetchers.DefaultRetryConfig()
		retry.MaxAttempts = c.MaxAttempts
		fc.RetryConfig = retry
	}
	if c.Parallelism > 0 {
		fc.Parallelism = c.Parallelism
	}
	return fc
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json", "logfmt"}
)

// SetDefaults sets default values for logging configuration.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate checks the logging level and format names.
func (c *LoggingConfig) Validate() error {
	if !contains(validLogLevels, c.Level) {
		return NewConfigError("logging.level",
			fmt.Sprintf("'%s' is not one of %s", c.Level, strings.Join(validLogLevels, ", ")))
	}
	if !contains(validLogFormats, c.Format) {
		return NewConfigError("logging.format",
			fmt.Sprintf("'%s' is not one of %s", c.Format, strings.Join(validLogFormats, ", ")))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CheckConfigKeys checks if all provided keys are valid for a given configuration type.
func CheckConfigKeys(configName string, expectedKeys, suppliedKeys []string) error {
	expectedSet := make(map[string]bool)
	for _, k := range expectedKeys {
		expectedSet[normalizeKey(k)] = true
	}

	var unexpected []string
	for _, k := range suppliedKeys {
		if !expectedSet[normalizeKey(k)] {
			unexpected = append(unexpected, k)
		}
	}

	if len(unexpected) > 0 {
		keyWord := "key"
		if len(unexpected) > 1 {
			keyWord = "keys"
		}
		return fmt.Errorf("%w: unexpected %s in configuration for %s: %s",
			ErrUnexpectedField, keyWord, configName, strings.Join(unexpected, ", "))
	}

	return nil
}

// normalizeKey normalizes a configuration key (underscores to dashes).
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// ParseOID parses a dotted decimal OID string.
func ParseOID(oidString string) (asn1.ObjectIdentifier, error) {
	if !OIDRegex.MatchString(oidString) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOID, oidString)
	}
	parts := strings.Split(oidString, ".")
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOID, oidString)
		}
		oid[i] = n
	}
	return oid, nil
}

// keyUsageFlagNames accepts the X.509 KeyUsage names in kebab-case and camelCase.
var keyUsageFlagNames = map[string]bool{
	"digital-signature":  true,
	"digitalSignature":   true,
	"content-commitment": true,
	"contentCommitment":  true,
	"non-repudiation":    true, // Alias for content-commitment
	"nonRepudiation":     true,
	"key-encipherment":   true,
	"keyEncipherment":    true,
	"data-encipherment":  true,
	"dataEncipherment":   true,
	"key-agreement":      true,
	"keyAgreement":       true,
	"key-cert-sign":      true,
	"keyCertSign":        true,
	"crl-sign":           true,
	"cRLSign":            true,
	"encipher-only":      true,
	"encipherOnly":       true,
	"decipher-only":      true,
	"decipherOnly":       true,
}

// extKeyUsageOIDs maps the canonical ExtKeyUsage names to their OIDs.
var extKeyUsageOIDs = map[string]asn1.ObjectIdentifier{
	"any":              {2, 5, 29, 37, 0},
	"server-auth":      {1, 3, 6, 1, 5, 5, 7, 3, 1},
	"client-auth":      {1, 3, 6, 1, 5, 5, 7, 3, 2},
	"code-signing":     {1, 3, 6, 1, 5, 5, 7, 3, 3},
	"email-protection": {1, 3, 6, 1, 5, 5, 7, 3, 4},
	"ipsec-end-system": {1, 3, 6, 1, 5, 5, 7, 3, 5},
	"ipsec-tunnel":     {1, 3, 6, 1, 5, 5, 7, 3, 6},
	"ipsec-user":       {1, 3, 6, 1, 5, 5, 7, 3, 7},
	"time-stamping":    {1, 3, 6, 1, 5, 5, 7, 3, 8},
	"ocsp-signing":     {1, 3, 6, 1, 5, 5, 7, 3, 9},
}

// EnsureStrings ensures the input is a slice of strings.
// It accepts either a single string or a slice of strings.
func EnsureStrings(value any, paramName string) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		result := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, NewConfigError(paramName,
					fmt.Sprintf("item %d is not a string (got %T)", i, item))
			}
			result = append(result, s)
		}
		return result, nil
	default:
		return nil, NewConfigError(paramName,
			fmt.Sprintf("must be specified as a list of strings or a string, got %T", value))
	}
}

// ProcessBitStringFlags validates a list of flag strings against a set of
// valid flag names.
func ProcessBitStringFlags(validFlags map[string]bool, input any, paramName, flagTypeName string) ([]string, error) {
	flags, err := EnsureStrings(input, paramName)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(flags))
	for _, flagString := range flags {
		if flagString == "" {
			return nil, NewConfigError(paramName, "flag identifier cannot be empty")
		}
		if !validFlags[flagString] {
			return nil, NewConfigError(paramName,
				fmt.Sprintf("'%s' is not a valid %s flag name", flagString, flagTypeName))
		}
		result = append(result, flagString)
	}

	return result, nil
}

// ProcessKeyUsageFlags validates and processes KeyUsage flag strings.
func ProcessKeyUsageFlags(input any, paramName string) ([]string, error) {
	return ProcessBitStringFlags(keyUsageFlagNames, input, paramName, "KeyUsage")
}

// KeyUsageFlags resolves validated KeyUsage names to flags.
func KeyUsageFlags(names []string) ([]certvalidator.KeyUsageFlag, error) {
	flags := make([]certvalidator.KeyUsageFlag, 0, len(names))
	for _, name := range names {
		canonical := NormalizeKeyUsageFlag(name)
		if canonical == "non-repudiation" {
			canonical = "content-commitment"
		}
		flag, ok := certvalidator.ParseKeyUsageFlag(strings.ReplaceAll(canonical, "-", "_"))
		if !ok {
			return nil, NewConfigError("key-usage", fmt.Sprintf("'%s' is not a valid KeyUsage flag name", name))
		}
		flags = append(flags, flag)
	}
	return flags, nil
}

// ExtKeyUsageOIDs resolves ExtKeyUsage names, in either case style, or
// dotted OIDs to object identifiers.
func ExtKeyUsageOIDs(purposes []string) ([]asn1.ObjectIdentifier, error) {
	oids := make([]asn1.ObjectIdentifier, 0, len(purposes))
	for _, purpose := range purposes {
		if oid, ok := extKeyUsageOIDs[NormalizeExtKeyUsageFlag(purpose)]; ok {
			oids = append(oids, oid)
			continue
		}
		oid, err := ParseOID(purpose)
		if err != nil {
			return nil, &ConfigError{
				Field:   "ext-key-usage",
				Message: fmt.Sprintf("'%s' is neither an ExtKeyUsage name nor an OID", purpose),
				Err:     err,
			}
		}
		oids = append(oids, oid)
	}
	return oids, nil
}

// NormalizeKeyUsageFlag converts a camelCase KeyUsage name to kebab-case.
func NormalizeKeyUsageFlag(flag string) string {
	normalizations := map[string]string{
		"digitalSignature":  "digital-signature",
		"contentCommitment": "content-commitment",
		"nonRepudiation":    "non-repudiation",
		"keyEncipherment":   "key-encipherment",
		"dataEncipherment":  "data-encipherment",
		"keyAgreement":      "key-agreement",
		"keyCertSign":       "key-cert-sign",
		"cRLSign":           "crl-sign",
		"encipherOnly":      "encipher-only",
		"decipherOnly":      "decipher-only",
	}
	if normalized, ok := normalizations[flag]; ok {
		return normalized
	}
	return flag
}

// NormalizeExtKeyUsageFlag converts a camelCase ExtKeyUsage name to kebab-case.
func NormalizeExtKeyUsageFlag(flag string) string {
	normalizations := map[string]string{
		"serverAuth":      "server-auth",
		"clientAuth":      "client-auth",
		"codeSigning":     "code-signing",
		"emailProtection": "email-protection",
		"ipsecEndSystem":  "ipsec-end-system",
		"ipsecTunnel":     "ipsec-tunnel",
		"ipsecUser":       "ipsec-user",
		"timeStamping":    "time-stamping",
		"OCSPSigning":     "ocsp-signing",
	}
	if normalized, ok := normalizations[flag]; ok {
		return normalized
	}
	return flag
}
