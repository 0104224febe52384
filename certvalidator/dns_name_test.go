package certvalidator

import (
	"strings"
	"testing"
)

func TestNewDNSName(t *testing.T) {
	longLabel := strings.Repeat("a", 63)
	longName := strings.Join([]string{longLabel, longLabel, longLabel, longLabel, longLabel}, ".")

	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"empty", "", false},
		{"single dot", ".", false},
		{"double dot", "..", false},
		{"dot label dot", ".a.", false},
		{"trailing dot", "a.a.", false},
		{"leading dot", ".a", false},
		{"label then dot", "a.", false},
		{"label then two dots", "a..", false},
		{"space", " ", false},
		{"tab", "\t", false},
		{"surrounding whitespace", " whitespace ", false},
		{"inner whitespace", "white. space", false},
		{"bang label", "!badlabel!", false},
		{"bang inside", "bad!label", false},
		{"second label bad", "goodlabel.!badlabel!", false},
		{"leading hyphen", "-foo.bar.example.com", false},
		{"trailing hyphen", "foo-.bar.example.com", false},
		{"inner leading hyphen", "foo.-bar.example.com", false},
		{"inner trailing hyphen", "foo.bar-.example.com", false},
		{"64 character label", strings.Repeat("a", 64), false},
		{"non-ascii", "⚠️", false},
		{"underscore", "_srv.example.com", false},
		{"wildcard", "*.example.com", false},
		{"too long", longName, false},

		{"63 character label", longLabel, true},
		{"simple", "example.com", true},
		{"numeric label", "123.example.com", true},
		{"mixed case", "EXAMPLE.com", true},
		{"upper case", "EXAMPLE.COM", true},
		{"a-label", "xn--bcher-kva.example", true},
		{"inner hyphen", "foo-bar.example", true},
		{"single label", "localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewDNSName(tt.input)
			if ok != tt.valid {
				t.Fatalf("NewDNSName(%q) ok = %v, want %v", tt.input, ok, tt.valid)
			}
			if ok && got.String() != tt.input {
				t.Errorf("NewDNSName(%q).String() = %q, want input preserved", tt.input, got.String())
			}
		})
	}
}

func TestNewDNSNameLengthBoundary(t *testing.T) {
	// 63 + 1 + 63 + 1 + 63 + 1 + 61 = 253
	label := strings.Repeat("a", 63)
	name := label + "." + label + "." + label + "." + strings.Repeat("b", 61)
	if len(name) != 253 {
		t.Fatalf("test setup: len = %d", len(name))
	}
	if _, ok := NewDNSName(name); !ok {
		t.Errorf("NewDNSName(253 characters) failed")
	}
	if _, ok := NewDNSName(name + "b"); ok {
		t.Errorf("NewDNSName(254 characters) succeeded")
	}
}

func TestDNSNameEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"foo.example.com", "example.com", false},
		{"EXAMPLE.COM", "example.com", true},
		{"ExAmPLe.CoM", "eXaMplE.cOm", true},
		{"example.com", "example.org", false},
		{"xn--bcher-kva.example", "XN--BCHER-KVA.EXAMPLE", true},
	}

	for _, tt := range tests {
		a := MustDNSName(tt.a)
		b := MustDNSName(tt.b)
		if got := a.Equal(b); got != tt.want {
			t.Errorf("DNSName(%q).Equal(%q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := b.Equal(a); got != tt.want {
			t.Errorf("DNSName(%q).Equal(%q) = %v, want %v", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestDNSNameParent(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		ok     bool
	}{
		{"localhost", "", false},
		{"example.com", "com", true},
		{"foo.example.com", "example.com", true},
		{"A.B.C", "B.C", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, ok := MustDNSName(tt.name).Parent()
			if ok != tt.ok {
				t.Fatalf("Parent() ok = %v, want %v", ok, tt.ok)
			}
			if ok && !parent.Equal(MustDNSName(tt.parent)) {
				t.Errorf("Parent() = %q, want %q", parent, tt.parent)
			}
		})
	}
}

func TestDNSNameIsWithin(t *testing.T) {
	tests := []struct {
		name string
		base string
		want bool
	}{
		{"example.com", "example.com", true},
		{"sub.example.com", "example.com", true},
		{"a.b.c.example.com", "example.com", true},
		{"sub.example.com", "EXAMPLE.COM", true},
		{"other.com", "example.com", false},
		{"notexample.com", "example.com", false},
		{"example.com", "sub.example.com", false},
		{"example.com", "com", true},
		{"com", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name+" in "+tt.base, func(t *testing.T) {
			got := MustDNSName(tt.name).IsWithin(MustDNSName(tt.base))
			if got != tt.want {
				t.Errorf("IsWithin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDNSNameUnicode(t *testing.T) {
	got, err := MustDNSName("xn--bcher-kva.example").Unicode()
	if err != nil {
		t.Fatalf("Unicode() error = %v", err)
	}
	if got != "bücher.example" {
		t.Errorf("Unicode() = %q, want %q", got, "bücher.example")
	}

	got, err = MustDNSName("plain.example").Unicode()
	if err != nil || got != "plain.example" {
		t.Errorf("Unicode() = %q, %v, want plain.example", got, err)
	}
}

func TestMustDNSNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustDNSName did not panic on an invalid name")
		}
	}()
	MustDNSName("-bad")
}

func TestNewDNSPattern(t *testing.T) {
	invalid := []string{
		"*",
		"*.",
		"f*o.example.com",
		"*oo.example.com",
		"fo*.example.com",
		"foo.*.example.com",
		"*.foo.*.example.com",
		"**.example.com",
		"*.*.example.com",
		"",
	}
	for _, input := range invalid {
		if p, ok := NewDNSPattern(input); ok {
			t.Errorf("NewDNSPattern(%q) = %v, want failure", input, p)
		}
	}

	exact, ok := NewDNSPattern("example.com")
	if !ok {
		t.Fatal("NewDNSPattern(example.com) failed")
	}
	if exact.IsWildcard() || !exact.Equal(ExactPattern(MustDNSName("example.com"))) {
		t.Errorf("NewDNSPattern(example.com) = %v, want exact pattern", exact)
	}

	wildcard, ok := NewDNSPattern("*.example.com")
	if !ok {
		t.Fatal("NewDNSPattern(*.example.com) failed")
	}
	if !wildcard.IsWildcard() || !wildcard.Equal(WildcardPattern(MustDNSName("example.com"))) {
		t.Errorf("NewDNSPattern(*.example.com) = %v, want wildcard pattern", wildcard)
	}
	if wildcard.String() != "*.example.com" {
		t.Errorf("String() = %q", wildcard.String())
	}
	if exact.Equal(wildcard) {
		t.Error("exact and wildcard patterns over the same name compare equal")
	}
}

func TestDNSPatternMatches(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"localhost", "localhost", true},
		{"localhost", "LOCALHOST", true},
		{"example.com", "example.com", true},
		{"example.com", "EXAMPLE.com", true},
		{"example.com", "foo.example.com", false},

		{"*.example.com", "foo.example.com", true},
		{"*.example.com", "bar.example.com", true},
		{"*.example.com", "BAZ.example.com", true},
		{"*.example.com", "example.com", false},
		{"*.example.com", "foo.bar.example.com", false},
		{"*.example.com", "foo.bar.baz.example.com", false},
		{"*.localhost", "localhost", false},
		{"*.localhost", "foo.localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.name, func(t *testing.T) {
			pattern, ok := NewDNSPattern(tt.pattern)
			if !ok {
				t.Fatalf("NewDNSPattern(%q) failed", tt.pattern)
			}
			if got := pattern.Matches(MustDNSName(tt.name)); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
