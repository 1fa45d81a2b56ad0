package neighbor

import "math/rand"

// Table is the in-memory Queues implementation: a plain map keyed by
// address, matching catrate.Limiter's category-keyed state but without
// its concurrency machinery (see package doc).
type Table struct {
	byAddr map[Address]*Neighbor
	rand   *rand.Rand
}

// NewTable constructs an empty Table. seed controls the backoff window
// draw, so tests can make it deterministic.
func NewTable(seed int64) *Table {
	return &Table{
		byAddr: make(map[Address]*Neighbor),
		rand:   rand.New(rand.NewSource(seed)),
	}
}

// Add registers a neighbor, replacing any existing entry at the same
// address.
func (t *Table) Add(n *Neighbor) { t.byAddr[n.Address] = n }

// GetNbr implements Queues.
func (t *Table) GetNbr(addr Address) (*Neighbor, bool) {
	n, ok := t.byAddr[addr]
	return n, ok
}

// GetPacketForNbr implements Queues. The link parameter is unused here:
// this table keeps one undifferentiated queue per neighbor rather than
// per-link sub-queues.
func (t *Table) GetPacketForNbr(nbr *Neighbor, _ LinkInfo) (*Packet, bool) {
	if len(nbr.Queue) == 0 {
		return nil, false
	}
	return nbr.Queue[0], true
}

// GetUnicastPacketForAny implements Queues, returning the first ready
// neighbor found in map iteration order; which one that is, when several
// have packets, is not defined.
func (t *Table) GetUnicastPacketForAny(l LinkInfo) (*Neighbor, *Packet, bool) {
	for _, n := range t.byAddr {
		if n.IsBroadcast || n.Address == AddressEB {
			continue
		}
		if p, ok := t.GetPacketForNbr(n, l); ok {
			return n, p, true
		}
	}
	return nil, nil, false
}

// RemovePacketFromQueue implements Queues.
func (t *Table) RemovePacketFromQueue(nbr *Neighbor) {
	if len(nbr.Queue) == 0 {
		return
	}
	nbr.Queue = nbr.Queue[1:]
}

// IsEmpty implements Queues.
func (t *Table) IsEmpty(nbr *Neighbor) bool { return len(nbr.Queue) == 0 }

// BackoffReset implements Queues.
func (t *Table) BackoffReset(nbr *Neighbor) { nbr.BackoffReset() }

// BackoffInc implements Queues.
func (t *Table) BackoffInc(nbr *Neighbor) {
	nbr.BackoffInc(func(span int) int { return t.rand.Intn(span) })
}

// UpdateAllBackoffWindows implements Queues: every neighbor eligible over
// the given shared-link address has its backoff window decremented by
// one (never below zero), per original_source's
// tsch_queue_update_all_backoff_windows. Here "eligible over the address"
// means the neighbor whose address equals addr plus any broadcast
// neighbor; the EB pseudo-neighbor is never eligible.
func (t *Table) UpdateAllBackoffWindows(addr Address) {
	for a, n := range t.byAddr {
		if a == AddressEB {
			continue
		}
		if a == addr || n.IsBroadcast {
			if n.BackoffWindow > 0 {
				n.BackoffWindow--
			}
		}
	}
}
