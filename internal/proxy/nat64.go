package proxy

import (
	"fmt"
	"strconv"
	"strings"
)

// NAT64 prefix lengths supported by RFC 6052 Section 2.2.
var nat64PrefixBits = map[int]bool{32: true, 40: true, 48: true, 56: true, 64: true, 96: true}

// NAT64Prefix is an IPv6 prefix under which IPv4 addresses are embedded
// per RFC 6052. Only the prefix-length bytes of data are significant.
type NAT64Prefix struct {
	data [12]byte
	bits int
}

// NewNAT64Prefix copies bits/8 bytes from raw. ok is false when the
// length is not one of 32/40/48/56/64/96 or raw is too short.
func NewNAT64Prefix(raw []byte, bits int) (NAT64Prefix, bool) {
	if !nat64PrefixBits[bits] || len(raw) < bits/8 {
		return NAT64Prefix{}, false
	}
	var p NAT64Prefix
	p.bits = bits
	copy(p.data[:bits/8], raw[:bits/8])
	return p, true
}

// Bits returns the prefix length in bits.
func (p NAT64Prefix) Bits() int { return p.bits }

// Synthesize embeds an IPv4 address under the prefix per the RFC 6052
// Section 2.2 layout. Bits 64-71 (the "u" octet) stay zero.
func (p NAT64Prefix) Synthesize(v4 [4]byte) [16]byte {
	var out [16]byte
	copy(out[:p.bits/8], p.data[:p.bits/8])
	switch p.bits {
	case 32:
		copy(out[4:8], v4[:])
	case 40:
		copy(out[5:8], v4[:3])
		out[9] = v4[3]
	case 48:
		copy(out[6:8], v4[:2])
		out[9] = v4[2]
		out[10] = v4[3]
	case 56:
		out[7] = v4[0]
		out[9] = v4[1]
		out[10] = v4[2]
		out[11] = v4[3]
	case 64:
		copy(out[9:13], v4[:])
	case 96:
		copy(out[12:16], v4[:])
	}
	return out
}

// ExtractIPv4 recovers the embedded IPv4 address from an IPv6 address
// that lies under the prefix. ok is false when the address does not match
// the prefix.
func (p NAT64Prefix) ExtractIPv4(v6 [16]byte) (v4 [4]byte, ok bool) {
	for i := range p.bits / 8 {
		if v6[i] != p.data[i] {
			return v4, false
		}
	}
	switch p.bits {
	case 32:
		copy(v4[:], v6[4:8])
	case 40:
		copy(v4[:3], v6[5:8])
		v4[3] = v6[9]
	case 48:
		copy(v4[:2], v6[6:8])
		v4[2] = v6[9]
		v4[3] = v6[10]
	case 56:
		v4[0] = v6[7]
		v4[1] = v6[9]
		v4[2] = v6[10]
		v4[3] = v6[11]
	case 64:
		copy(v4[:], v6[9:13])
	case 96:
		copy(v4[:], v6[12:16])
	}
	return v4, true
}

// reverseIPv6Address parses an ip6.arpa reverse name (32 nibble labels,
// least significant first) into the 16-byte address it names.
func reverseIPv6Address(name string) (addr [16]byte, ok bool) {
	labels := strings.Split(strings.ToLower(strings.TrimSuffix(name, ".")), ".")
	if len(labels) != 34 || labels[32] != "ip6" || labels[33] != "arpa" {
		return addr, false
	}
	for i, label := range labels[:32] {
		if len(label) != 1 {
			return addr, false
		}
		nibble, err := strconv.ParseUint(label, 16, 8)
		if err != nil {
			return addr, false
		}
		// Label i holds nibble i of the reversed address: even indexes
		// are low nibbles, odd indexes high nibbles, last byte first.
		byteIdx := 15 - i/2
		if i%2 == 0 {
			addr[byteIdx] |= byte(nibble)
		} else {
			addr[byteIdx] |= byte(nibble) << 4
		}
	}
	return addr, true
}

// reverseIPv4Name builds the in-addr.arpa reverse name for an address.
func reverseIPv4Name(v4 [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa", v4[3], v4[2], v4[1], v4[0])
}
