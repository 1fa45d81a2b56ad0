// Package asn implements the Absolute Slot Number, the monotonically
// increasing slot counter shared by every node on a TSCH network.
package asn

// Number is an Absolute Slot Number. It is deliberately a plain uint64
// rather than a fixed-width bitfield type: the original MAC represents it
// as a wide (40+ bit) integer with wraparound arithmetic, and uint64 gives
// headroom no realistic network schedule will exhaust.
type Number uint64

// Add returns n advanced by delta slots. Wraps on overflow, matching the
// modular arithmetic the spec requires for ASN comparisons near wraparound.
func (n Number) Add(delta uint64) Number {
	return n + Number(delta)
}

// Diff returns the signed slot distance from b to a, i.e. a-b interpreted
// modulo 2^64 and folded into a signed range. This is the DIFF(a,b)
// operation used by timesync-window and desync-threshold checks: it must
// produce a small signed delta even when a and b are close to a wraparound
// boundary.
func Diff(a, b Number) int64 {
	return int64(a - b)
}

// Mod64 reduces n into the range [0, m) for an L-length hop sequence or
// similar small modulus, matching C's `asn % L` on an unsigned wide integer.
func (n Number) Mod64(m uint64) uint64 {
	if m == 0 {
		panic("asn: modulus must be non-zero")
	}
	return uint64(n) % m
}

// Uint64 exposes the raw counter value, e.g. for serialization into a
// Sync-IE or an enhanced ACK.
func (n Number) Uint64() uint64 { return uint64(n) }
