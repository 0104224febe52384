package certvalidator

import (
	"encoding/asn1"
	"strings"
	"testing"

	"golang.org/x/crypto/cryptobyte"
)

func TestOIDs(t *testing.T) {
	tests := []struct {
		name string
		oid  asn1.ObjectIdentifier
		want asn1.ObjectIdentifier
	}{
		{"subject_key_identifier", OIDExtensionSubjectKeyID, asn1.ObjectIdentifier{2, 5, 29, 14}},
		{"key_usage", OIDExtensionKeyUsage, asn1.ObjectIdentifier{2, 5, 29, 15}},
		{"subject_alt_name", OIDExtensionSubjectAltName, asn1.ObjectIdentifier{2, 5, 29, 17}},
		{"basic_constraints", OIDExtensionBasicConstraints, asn1.ObjectIdentifier{2, 5, 29, 19}},
		{"name_constraints", OIDExtensionNameConstraints, asn1.ObjectIdentifier{2, 5, 29, 30}},
		{"policy_constraints", OIDExtensionPolicyConstraints, asn1.ObjectIdentifier{2, 5, 29, 36}},
		{"extended_key_usage", OIDExtensionExtendedKeyUsage, asn1.ObjectIdentifier{2, 5, 29, 37}},
		{"authority_information_access", OIDExtensionAuthorityInfoAccess, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.oid.Equal(tt.want) {
				t.Errorf("OID = %v, want %v", tt.oid, tt.want)
			}
			if got := ExtensionName(tt.oid); got != tt.name {
				t.Errorf("ExtensionName(%v) = %q, want %q", tt.oid, got, tt.name)
			}
		})
	}
}

func TestExtensionNameUnknown(t *testing.T) {
	oid := asn1.ObjectIdentifier{1, 2, 3, 4, 5}
	if got := ExtensionName(oid); got != "1.2.3.4.5" {
		t.Errorf("ExtensionName(%v) = %q, want dotted form", oid, got)
	}

	registry := NewExtensionRegistry()
	registry.OIDMap[oid.String()] = "private_extension"
	if got := registry.GetExtensionName(oid); got != "private_extension" {
		t.Errorf("GetExtensionName() = %q, want private_extension", got)
	}
	if got := ExtensionName(oid); got != "1.2.3.4.5" {
		t.Errorf("default registry changed: %q", got)
	}
}

func TestGeneralNameStringAndText(t *testing.T) {
	tests := []struct {
		name     GeneralName
		want     string
		wantText string
	}{
		{DNSGeneralName("example.com"), "dNSName:example.com", "example.com"},
		{EmailGeneralName("a@example.com"), "rfc822Name:a@example.com", "a@example.com"},
		{URIGeneralName("https://example.com"), "uniformResourceIdentifier:https://example.com", "https://example.com"},
		{IPGeneralName(mustIP(t, "192.0.2.1")), "iPAddress:192.0.2.1", "192.0.2.1"},
		{IPRangeGeneralName(mustRange(t, "192.0.2.0/24")), "iPAddress:192.0.2.0/24", "192.0.2.0/24"},
		{GeneralName{Type: GeneralNameIPAddress, Value: []byte{1, 2}}, "iPAddress:0102", "0102"},
		{RegisteredIDGeneralName(asn1.ObjectIdentifier{1, 2, 3}), "registeredID:1.2.3", "1.2.3"},
		{DirectoryGeneralName([]byte{0x30, 0x00}), "directoryName:3000", "3000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.name.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.name.Text(); got != tt.wantText {
				t.Errorf("Text() = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestGeneralNameEqual(t *testing.T) {
	a := DNSGeneralName("example.com")
	if !a.Equal(DNSGeneralName("example.com")) {
		t.Error("identical dNSNames not equal")
	}
	if a.Equal(URIGeneralName("example.com")) {
		t.Error("different variants with the same value are equal")
	}
	if a.Equal(DNSGeneralName("EXAMPLE.COM")) {
		t.Error("GeneralName.Equal folded case")
	}
	if RegisteredIDGeneralName([]int{1, 2}).Equal(RegisteredIDGeneralName([]int{1, 3})) {
		t.Error("different registeredIDs are equal")
	}
}

func TestReadGeneralNameAllVariants(t *testing.T) {
	names := []GeneralName{
		{Type: GeneralNameOtherName, OID: asn1.ObjectIdentifier{1, 2, 3}, Value: []byte{0xa0, 0x02, 0x05, 0x00}},
		EmailGeneralName("a@example.com"),
		DNSGeneralName("example.com"),
		{Type: GeneralNameX400Address, Value: []byte{0x30, 0x00}},
		DirectoryGeneralName([]byte{0x30, 0x00}),
		{Type: GeneralNameEDIPartyName, Value: []byte{0xa1, 0x02, 0x0c, 0x00}},
		URIGeneralName("https://example.com"),
		IPGeneralName(mustIP(t, "2001:db8::1")),
		RegisteredIDGeneralName(asn1.ObjectIdentifier{1, 2, 840, 113549}),
	}

	for _, want := range names {
		t.Run(want.Type.String(), func(t *testing.T) {
			var b cryptobyte.Builder
			addGeneralName(&b, want)
			der, err := b.Bytes()
			if err != nil {
				t.Fatalf("addGeneralName() error = %v", err)
			}
			if der[0]&0x1f != byte(want.Type) {
				t.Errorf("tag = %#x, want number %d", der[0], want.Type)
			}

			input := cryptobyte.String(der)
			got, err := readGeneralName(&input)
			if err != nil {
				t.Fatalf("readGeneralName() error = %v", err)
			}
			if !input.Empty() {
				t.Errorf("readGeneralName() left %d bytes", len(input))
			}
			if !got.Equal(want) {
				t.Errorf("readGeneralName() = %v, want %v", got, want)
			}
		})
	}
}

func TestReadGeneralNameMalformed(t *testing.T) {
	tests := []struct {
		name string
		der  []byte
		want string
	}{
		{"universal tag", []byte{0x0c, 0x00}, "unsupported general name"},
		{"application tag", []byte{0x42, 0x00}, "unsupported general name"},
		{"tag out of range", []byte{0x89, 0x00}, "unsupported general name"},
		{"non-ascii dns", []byte{0x82, 0x02, 'a', 0xc3}, "malformed dNSName"},
		{"constructed uri", []byte{0xa6, 0x00}, "malformed uniformResourceIdentifier"},
		{"primitive directory name", []byte{0x84, 0x00}, "malformed directoryName"},
		{"truncated", []byte{0x82, 0x05, 'a'}, "malformed general name"},
		{"registered id not an oid", []byte{0x88, 0x00}, "malformed registeredID"},
		{"other name without value", []byte{0xa0, 0x04, 0x06, 0x02, 0x2a, 0x03}, "malformed otherName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := cryptobyte.String(tt.der)
			_, err := readGeneralName(&input)
			if err == nil {
				t.Fatal("readGeneralName() succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}
