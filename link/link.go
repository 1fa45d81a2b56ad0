// Package link implements the schedule entry ("cell") type and the
// packet/neighbor binding algorithm (C5) that runs once per active slot.
// Layout follows original_source's tsch_link_t; Select implements
// get_neighbor_and_packet's branch order exactly, including the
// ADVERTISING_ONLY special case that stops at the EB pseudo-neighbor
// even when its queue is empty, and plain ADVERTISING's fallthrough to
// the ordinary peer-address lookup when that queue is empty.
package link

import "github.com/ieee802154e/tsch/neighbor"

// Options is a bitset of the capabilities a link grants.
type Options uint8

const (
	TX Options = 1 << iota
	RX
	Shared
	TimeKeeping
)

func (o Options) Has(flag Options) bool { return o&flag != 0 }

// Type distinguishes ordinary data cells from the advertising
// (beacon-carrying) cells.
type Type int

const (
	Normal Type = iota
	Advertising
	AdvertisingOnly
)

// Link is a schedule entry, owned by the external schedule collaborator.
type Link struct {
	SlotOffset    uint16
	ChannelOffset uint16
	LinkOptions   Options
	LinkType      Type
	PeerAddress   neighbor.Address
}

// Select implements §4.5: bind a packet and neighbor for this link.
//
//  1. If the link has TX and is ADVERTISING_ONLY, pull only from the EB
//     neighbor's queue and stop there even if empty.
//  2. If the link has TX and is ADVERTISING, pull from the EB neighbor's
//     queue first, falling through to the ordinary peer-address lookup
//     below when that queue yields nothing.
//  3. Otherwise pull from the neighbor keyed by the link's peer address.
//  4. If that neighbor is BROADCAST and has nothing ready, scan unicast
//     neighbors for any ready packet.
//  5. Return (nil, neighbor) if nothing was found; neighbor may itself be
//     nil if the peer address does not resolve.
func Select(l Link, q neighbor.Queues) (*neighbor.Packet, *neighbor.Neighbor) {
	info := neighbor.LinkInfo{SlotOffset: l.SlotOffset, ChannelOffset: l.ChannelOffset, Shared: l.LinkOptions.Has(Shared)}

	if l.LinkOptions.Has(TX) && l.LinkType == AdvertisingOnly {
		eb, ok := q.GetNbr(neighbor.AddressEB)
		if !ok {
			return nil, nil
		}
		p, _ := q.GetPacketForNbr(eb, info)
		return p, eb
	}

	if l.LinkOptions.Has(TX) && l.LinkType == Advertising {
		if eb, ok := q.GetNbr(neighbor.AddressEB); ok {
			if p, ok := q.GetPacketForNbr(eb, info); ok {
				return p, eb
			}
		}
	}

	n, ok := q.GetNbr(l.PeerAddress)
	if !ok {
		return nil, nil
	}

	if n.IsBroadcast {
		if p, ok := q.GetPacketForNbr(n, info); ok {
			return p, n
		}
		if un, p, ok := q.GetUnicastPacketForAny(info); ok {
			return p, un
		}
		return nil, n
	}

	p, _ := q.GetPacketForNbr(n, info)
	return p, n
}

// ApplyBackupLinkRule implements the executor's backup-link fallback: if
// the active link is pure TX (no RX capability) and nothing was found to
// send, and a backup link is available, re-run Select against it.
func ApplyBackupLinkRule(active Link, backup *Link, q neighbor.Queues) (Link, *neighbor.Packet, *neighbor.Neighbor) {
	p, n := Select(active, q)
	if p == nil && !active.LinkOptions.Has(RX) && backup != nil {
		p2, n2 := Select(*backup, q)
		return *backup, p2, n2
	}
	return active, p, n
}
