// Package hopping maps an (ASN, channel_offset) pair to a physical radio
// channel using a fixed hop sequence. This is the full extent of channel
// selection in the slot-operation core; computing or negotiating the hop
// sequence itself is out of scope (external schedule collaborator).
package hopping

import "github.com/ieee802154e/tsch/asn"

// Sequence is an ordered, non-empty list of physical channel numbers. The
// slice is shared read-only by every call to Channel and must not be
// mutated while any slot may reference it.
type Sequence []int

// Channel implements channel(asn, offset) = hop_seq[(asn mod L + offset)
// mod L], deterministic and constant-time given the sequence length L.
func (s Sequence) Channel(a asn.Number, offset int) int {
	l := uint64(len(s))
	if l == 0 {
		panic("hopping: empty sequence")
	}
	idx := (a.Mod64(l) + uint64(offset)%l) % l
	return s[idx]
}
