package certvalidator

import (
	"bytes"
	"net/netip"
	"testing"
)

func TestIPAddressFromBytes(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
		ok    bool
	}{
		{"empty", nil, "", false},
		{"three octets", []byte{10, 0, 0}, "", false},
		{"five octets", []byte{10, 0, 0, 1, 2}, "", false},
		{"eight octets", make([]byte, 8), "", false},
		{"ipv4", []byte{192, 0, 2, 1}, "192.0.2.1", true},
		{"ipv6", []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, "2001:db8::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, ok := IPAddressFromBytes(tt.input)
			if ok != tt.ok {
				t.Fatalf("IPAddressFromBytes() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if addr.String() != tt.want {
				t.Errorf("IPAddressFromBytes() = %s, want %s", addr, tt.want)
			}
			if !bytes.Equal(addr.Octets(), tt.input) {
				t.Errorf("Octets() = %v, want %v", addr.Octets(), tt.input)
			}
		})
	}
}

func TestParseIPAddress(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
		is4   bool
	}{
		{"192.0.2.1", true, true},
		{"2001:db8::1", true, false},
		{"::ffff:192.0.2.1", true, false},
		{"fe80::1%eth0", false, false},
		{"example.com", false, false},
		{"256.0.0.1", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			addr, ok := ParseIPAddress(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseIPAddress(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && addr.Is4() != tt.is4 {
				t.Errorf("Is4() = %v, want %v", addr.Is4(), tt.is4)
			}
		})
	}
}

func TestIPAddressFamiliesDiffer(t *testing.T) {
	v4, _ := ParseIPAddress("192.0.2.1")
	mapped, _ := ParseIPAddress("::ffff:192.0.2.1")
	if v4.Equal(mapped) {
		t.Error("IPv4 address equals its IPv4-mapped IPv6 form")
	}
}

func TestIPAddressPrefixLength(t *testing.T) {
	tests := []struct {
		mask []byte
		want uint8
		ok   bool
	}{
		{[]byte{0, 0, 0, 0}, 0, true},
		{[]byte{255, 0, 0, 0}, 8, true},
		{[]byte{255, 255, 255, 0}, 24, true},
		{[]byte{255, 255, 255, 255}, 32, true},
		{[]byte{255, 255, 254, 0}, 23, true},
		{[]byte{255, 255, 255, 252}, 30, true},
		{[]byte{255, 0, 255, 0}, 0, false},
		{[]byte{0, 255, 255, 255}, 0, false},
		{[]byte{254, 1, 0, 0}, 0, false},
		{[]byte{255, 255, 255, 253}, 0, false},
		{bytes.Repeat([]byte{255}, 16), 128, true},
		{append(bytes.Repeat([]byte{255}, 8), make([]byte, 8)...), 64, true},
		{append([]byte{0}, bytes.Repeat([]byte{255}, 15)...), 0, false},
	}

	for _, tt := range tests {
		mask, ok := IPAddressFromBytes(tt.mask)
		if !ok {
			t.Fatalf("IPAddressFromBytes(%v) failed", tt.mask)
		}
		got, ok := mask.PrefixLength()
		if ok != tt.ok || got != tt.want {
			t.Errorf("PrefixLength(%v) = %d, %v, want %d, %v", tt.mask, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIPAddressMask(t *testing.T) {
	tests := []struct {
		addr   string
		prefix uint8
		want   string
	}{
		{"192.0.2.77", 24, "192.0.2.0"},
		{"192.0.2.77", 23, "192.0.2.0"},
		{"192.0.3.77", 23, "192.0.2.0"},
		{"192.0.2.77", 0, "0.0.0.0"},
		{"192.0.2.77", 32, "192.0.2.77"},
		{"192.0.2.77", 40, "192.0.2.77"},
		{"2001:db8:ffff::1", 32, "2001:db8::"},
		{"2001:db8::1", 128, "2001:db8::1"},
	}

	for _, tt := range tests {
		addr, _ := ParseIPAddress(tt.addr)
		want, _ := ParseIPAddress(tt.want)
		if got := addr.Mask(tt.prefix); !got.Equal(want) {
			t.Errorf("Mask(%s, %d) = %s, want %s", tt.addr, tt.prefix, got, tt.want)
		}
	}
}

func TestIPRangeFromBytes(t *testing.T) {
	v6Addr := netip.MustParseAddr("2001:db8::").AsSlice()
	v6Mask32 := append([]byte{255, 255, 255, 255}, make([]byte, 12)...)

	tests := []struct {
		name  string
		input []byte
		want  string
		ok    bool
	}{
		{"empty", nil, "", false},
		{"address only", []byte{192, 0, 2, 0}, "", false},
		{"seven octets", []byte{192, 0, 2, 0, 255, 255, 255}, "", false},
		{"sixteen octets", make([]byte, 16), "", false},
		{"non-contiguous mask", []byte{192, 0, 2, 0, 255, 0, 255, 0}, "", false},
		{"inverted mask", []byte{192, 0, 2, 0, 0, 0, 0, 255}, "", false},
		{"ipv4 /24", []byte{192, 0, 2, 0, 255, 255, 255, 0}, "192.0.2.0/24", true},
		{"ipv4 /32", []byte{192, 0, 2, 1, 255, 255, 255, 255}, "192.0.2.1/32", true},
		{"ipv4 /0", []byte{0, 0, 0, 0, 0, 0, 0, 0}, "0.0.0.0/0", true},
		{"host bits dropped", []byte{192, 0, 2, 99, 255, 255, 255, 0}, "192.0.2.0/24", true},
		{"ipv6 /32", append(append([]byte{}, v6Addr...), v6Mask32...), "2001:db8::/32", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := IPRangeFromBytes(tt.input)
			if ok != tt.ok {
				t.Fatalf("IPRangeFromBytes() ok = %v, want %v", ok, tt.ok)
			}
			if ok && r.String() != tt.want {
				t.Errorf("IPRangeFromBytes() = %s, want %s", r, tt.want)
			}
		})
	}
}

func TestIPRangeBytesRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{10, 0, 0, 0, 255, 0, 0, 0},
		{192, 0, 2, 128, 255, 255, 255, 128},
		append(netip.MustParseAddr("2001:db8::").AsSlice(), append(bytes.Repeat([]byte{255}, 6), make([]byte, 10)...)...),
	}

	for _, input := range inputs {
		r, ok := IPRangeFromBytes(input)
		if !ok {
			t.Fatalf("IPRangeFromBytes(%v) failed", input)
		}
		if got := r.Bytes(); !bytes.Equal(got, input) {
			t.Errorf("Bytes() = %v, want %v", got, input)
		}
		again, ok := IPRangeFromBytes(r.Bytes())
		if !ok || !again.Equal(r) {
			t.Errorf("IPRangeFromBytes(Bytes()) = %s, want %s", again, r)
		}
	}
}

func TestIPRangeContains(t *testing.T) {
	v4Range, _ := IPRangeFromBytes([]byte{192, 0, 2, 0, 255, 255, 255, 0})
	v6Range, _ := IPRangeFromBytes(append(netip.MustParseAddr("2001:db8::").AsSlice(),
		append([]byte{255, 255, 255, 255}, make([]byte, 12)...)...))
	anyV4, _ := IPRangeFromBytes(make([]byte, 8))

	tests := []struct {
		name string
		r    IPRange
		addr string
		want bool
	}{
		{"network address", v4Range, "192.0.2.0", true},
		{"inside", v4Range, "192.0.2.77", true},
		{"broadcast", v4Range, "192.0.2.255", true},
		{"next block", v4Range, "192.0.3.0", false},
		{"previous block", v4Range, "192.0.1.255", false},
		{"ipv6 vs ipv4 range", v4Range, "2001:db8::1", false},
		{"mapped ipv6 vs ipv4 range", v4Range, "::ffff:192.0.2.1", false},
		{"ipv6 inside", v6Range, "2001:db8:1234::1", true},
		{"ipv6 outside", v6Range, "2001:db9::1", false},
		{"ipv4 vs ipv6 range", v6Range, "192.0.2.1", false},
		{"zero prefix", anyV4, "203.0.113.9", true},
		{"zero prefix other family", anyV4, "::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, ok := ParseIPAddress(tt.addr)
			if !ok {
				t.Fatalf("ParseIPAddress(%q) failed", tt.addr)
			}
			if got := tt.r.Contains(addr); got != tt.want {
				t.Errorf("%s.Contains(%s) = %v, want %v", tt.r, tt.addr, got, tt.want)
			}
		})
	}

	if v4Range.Contains(IPAddress{}) {
		t.Error("Contains(zero address) = true")
	}
}
