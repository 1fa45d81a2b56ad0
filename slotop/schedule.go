package slotop

import (
	"github.com/ieee802154e/tsch/asn"
	"github.com/ieee802154e/tsch/link"
)

// Schedule is the link/cell schedule store collaborator (§6): given the
// current ASN, it yields the next active link, how many slots until it
// fires, and an optional backup RX-capable link overlapping it.
type Schedule interface {
	// GetNextActiveLink returns the next active link after currentASN, or
	// ok=false if the schedule has nothing further (the executor then
	// defaults to a one-slot advance with no link bound).
	GetNextActiveLink(currentASN asn.Number) (next *link.Link, slotsUntil uint64, backup *link.Link, ok bool)
}
