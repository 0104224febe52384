// Package certvalidator provides the extension and name constraint checks used
// during X.509 certificate path validation.
// This file contains the IP address and IP range value types.
package certvalidator

import (
	"math/bits"
	"net"
	"net/netip"
)

// IPAddress is an IPv4 (4 octet) or IPv6 (16 octet) address. Addresses of
// different families are never equal, including IPv4-mapped IPv6 addresses and
// their IPv4 counterparts.
type IPAddress struct {
	addr netip.Addr
}

// IPAddressFromBytes returns the address held in b. Exactly 4 octets give an
// IPv4 address and exactly 16 give an IPv6 address; any other length fails.
func IPAddressFromBytes(b []byte) (IPAddress, bool) {
	switch len(b) {
	case net.IPv4len:
		return IPAddress{addr: netip.AddrFrom4([4]byte(b))}, true
	case net.IPv6len:
		return IPAddress{addr: netip.AddrFrom16([16]byte(b))}, true
	default:
		return IPAddress{}, false
	}
}

// ParseIPAddress parses the textual form of an IPv4 or IPv6 address. Scoped
// IPv6 addresses ("fe80::1%eth0") are rejected since certificates cannot
// carry a zone.
func ParseIPAddress(s string) (IPAddress, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil || addr.Zone() != "" {
		return IPAddress{}, false
	}
	return IPAddress{addr: addr}, true
}

// IsZero reports whether a is the zero IPAddress.
func (a IPAddress) IsZero() bool {
	return !a.addr.IsValid()
}

// Is4 reports whether a is an IPv4 address.
func (a IPAddress) Is4() bool {
	return a.addr.Is4()
}

// BitLen returns 32 for IPv4, 128 for IPv6 and 0 for the zero address.
func (a IPAddress) BitLen() int {
	return a.addr.BitLen()
}

// Octets returns the big-endian octets of a.
func (a IPAddress) Octets() []byte {
	return a.addr.AsSlice()
}

// Addr returns a as a netip.Addr.
func (a IPAddress) Addr() netip.Addr {
	return a.addr
}

// String returns the textual form of a.
func (a IPAddress) String() string {
	return a.addr.String()
}

// Equal reports whether a and other are the same address of the same family.
func (a IPAddress) Equal(other IPAddress) bool {
	return a.addr == other.addr
}

// PrefixLength interprets the octets of a as a network mask. It succeeds only
// when the set bits form one contiguous run starting at the most significant
// bit, and returns the length of that run.
func (a IPAddress) PrefixLength() (uint8, bool) {
	if a.IsZero() {
		return 0, false
	}

	var leading, total int
	counting := true
	for _, octet := range a.Octets() {
		total += bits.OnesCount8(octet)
		if counting {
			ones := bits.LeadingZeros8(^octet)
			leading += ones
			counting = ones == 8
		}
	}

	if leading != total {
		return 0, false
	}
	return uint8(leading), true
}

// Mask returns a with every bit after the first prefix bits cleared. The
// address family is preserved. A prefix at or beyond the address length
// returns a unchanged.
func (a IPAddress) Mask(prefix uint8) IPAddress {
	if int(prefix) >= a.BitLen() {
		return a
	}
	p, err := a.addr.Prefix(int(prefix))
	if err != nil {
		return a
	}
	return IPAddress{addr: p.Addr()}
}

// IPRange is a network address together with a prefix length, as carried by
// an iPAddress entry of a name constraint. The address never has bits set
// beyond the prefix.
type IPRange struct {
	address IPAddress
	prefix  uint8
}

// IPRangeFromBytes parses the name constraint encoding of an IP range: 8 octets
// (IPv4 address then mask) or 32 octets (IPv6 address then mask). It fails for
// any other length and for a mask that is not a contiguous run of leading one
// bits. Host bits set in the address half are discarded.
func IPRangeFromBytes(b []byte) (IPRange, bool) {
	var split int
	switch len(b) {
	case 2 * net.IPv4len:
		split = net.IPv4len
	case 2 * net.IPv6len:
		split = net.IPv6len
	default:
		return IPRange{}, false
	}

	mask, ok := IPAddressFromBytes(b[split:])
	if !ok {
		return IPRange{}, false
	}
	prefix, ok := mask.PrefixLength()
	if !ok {
		return IPRange{}, false
	}

	address, ok := IPAddressFromBytes(b[:split])
	if !ok {
		return IPRange{}, false
	}

	return IPRange{address: address.Mask(prefix), prefix: prefix}, true
}

// Address returns the network address of r.
func (r IPRange) Address() IPAddress {
	return r.address
}

// PrefixLength returns the number of significant leading bits of r.
func (r IPRange) PrefixLength() uint8 {
	return r.prefix
}

// Prefix returns r as a netip.Prefix.
func (r IPRange) Prefix() netip.Prefix {
	return netip.PrefixFrom(r.address.addr, int(r.prefix))
}

// Bytes returns the address-then-mask encoding of r, the inverse of
// IPRangeFromBytes.
func (r IPRange) Bytes() []byte {
	bitLen := r.address.BitLen()
	out := make([]byte, 0, 2*bitLen/8)
	out = append(out, r.address.Octets()...)
	return append(out, net.CIDRMask(int(r.prefix), bitLen)...)
}

// String returns r in CIDR notation.
func (r IPRange) String() string {
	return r.Prefix().String()
}

// Equal reports whether r and other cover the same block.
func (r IPRange) Equal(other IPRange) bool {
	return r.prefix == other.prefix && r.address.Equal(other.address)
}

// Contains reports whether addr lies in r. An address of the other family is
// never contained.
func (r IPRange) Contains(addr IPAddress) bool {
	if r.address.Is4() != addr.Is4() || addr.IsZero() {
		return false
	}
	return r.address.Equal(addr.Mask(r.prefix))
}
