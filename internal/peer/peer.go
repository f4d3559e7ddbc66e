// Package peer holds the peer table shared by core's handshake and
// liveness logic: remote endpoints currently known to a socket, indexed by
// the session id the server assigned them.
package peer

import (
	"net"
	"time"
)

// Peer is one remote endpoint known to a socket.
type Peer struct {
	SessionID uint64
	Addr      net.Addr
	LastSeen  time.Time
	LastSent  time.Time
}

// Table is the session-id-keyed peer map. It is not safe for concurrent
// use: every mutation happens on the single thread driving Core, per the
// spec's concurrency model.
type Table struct {
	byID map[uint64]*Peer
	// dirty is set whenever the peer set changes membership and cleared on
	// the next Drain, implementing the "exactly once per mutation epoch"
	// update_peers contract.
	dirty bool
}

// NewTable returns an empty peer table.
func NewTable() *Table {
	return &Table{byID: make(map[uint64]*Peer)}
}

// Get returns the peer for sessionID, if known.
func (t *Table) Get(sessionID uint64) (*Peer, bool) {
	p, ok := t.byID[sessionID]
	return p, ok
}

// Put inserts or replaces the peer for sessionID and marks the table dirty.
func (t *Table) Put(sessionID uint64, addr net.Addr) *Peer {
	now := time.Now()
	p := &Peer{SessionID: sessionID, Addr: addr, LastSeen: now, LastSent: now}
	t.byID[sessionID] = p
	t.dirty = true
	return p
}

// Remove deletes sessionID from the table, marking it dirty if it was present.
func (t *Table) Remove(sessionID uint64) {
	if _, ok := t.byID[sessionID]; ok {
		delete(t.byID, sessionID)
		t.dirty = true
	}
}

// Rebind updates an existing peer's address in place, for the address
// mobility case: a known session's datagrams start arriving from a new
// source address.
func (t *Table) Rebind(sessionID uint64, addr net.Addr) {
	if p, ok := t.byID[sessionID]; ok {
		p.Addr = addr
	}
}

// Touch refreshes LastSeen for sessionID, if known.
func (t *Table) Touch(sessionID uint64, now time.Time) {
	if p, ok := t.byID[sessionID]; ok {
		p.LastSeen = now
	}
}

// TouchSent refreshes LastSent for sessionID, if known.
func (t *Table) TouchSent(sessionID uint64, now time.Time) {
	if p, ok := t.byID[sessionID]; ok {
		p.LastSent = now
	}
}

// Len returns the number of known peers.
func (t *Table) Len() int {
	return len(t.byID)
}

// All returns every known peer. Order is unspecified.
func (t *Table) All() []*Peer {
	out := make([]*Peer, 0, len(t.byID))
	for _, p := range t.byID {
		out = append(out, p)
	}
	return out
}

// EvictStale removes every peer whose LastSeen is older than keepalive,
// relative to now, returning the evicted session ids.
func (t *Table) EvictStale(now time.Time, keepalive time.Duration) []uint64 {
	var evicted []uint64
	for id, p := range t.byID {
		if now.Sub(p.LastSeen) > keepalive {
			delete(t.byID, id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		t.dirty = true
	}
	return evicted
}

// Drain reports whether the peer set has mutated since the last Drain call,
// clearing the flag. This backs Core.update_peers: the dirty flag fires
// exactly once per mutation epoch.
func (t *Table) Drain() bool {
	if t.dirty {
		t.dirty = false
		return true
	}
	return false
}
