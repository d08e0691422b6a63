package ratelimit

import (
	"encoding/hex"
	"net"

	"golang.org/x/crypto/blake2b"
)

// AnonymizeIP zeroes the host portion of an address before it is used
// anywhere: the last octet of an IPv4 address, the last 64 bits of an IPv6
// address. Unparseable input maps to "0.0.0.0" so a malformed header cannot
// smuggle a unique key.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "0.0.0.0"
	}
	if v4 := parsed.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String()
	}
	masked := parsed.Mask(net.CIDRMask(64, 128))
	return masked.String()
}

// ClientKey derives the limiter key for a client address: a blake2b digest of
// the anonymized IP, so not even truncated addresses sit in the counter map.
func ClientKey(ip string) string {
	sum := blake2b.Sum256([]byte(AnonymizeIP(ip)))
	return hex.EncodeToString(sum[:16])
}
