package pattern

import (
	"time"

	"github.com/naatebarber/nbmq/core"
	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/internal/queue"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

// pendingSend holds a not-yet-queued message for a Connect-mode Dealer
// whose handshake hasn't produced a peer yet. It is flushed into a real
// per-peer send queue the moment one exists.
type pendingSend struct {
	parts [][]byte
	nonce uint64
}

// Dealer is the round-robin duplex pattern: one send queue per known peer,
// fair-queue peer selection on send, softmax-weighted per-peer budgets on
// tick.
type Dealer struct {
	base

	sendQueues map[uint64]*queue.SendQueue
	recvQueue  *queue.RecvQueue
	pending    []pendingSend
}

// NewDealer returns a Dealer scheduled over c.
func NewDealer(c *core.Core, opt option.Opt) *Dealer {
	return &Dealer{
		base:       newBase(c, opt),
		sendQueues: make(map[uint64]*queue.SendQueue),
		recvQueue:  queue.NewRecvQueue(opt),
	}
}

// Peers reports the number of currently known peers.
func (d *Dealer) Peers() int {
	return d.core.Peers()
}

// Send fragments parts and enqueues them on the next fair-queue peer's send
// queue. A Connect-mode Dealer whose handshake hasn't completed yet has no
// peer to target; rather than fail, it buffers the message and flushes it
// once the connect target registers. A Bind-mode Dealer with no peers
// fails with ErrNoPeer, since there is no implicit single target to wait
// for.
func (d *Dealer) Send(parts [][]byte) error {
	sessionID, nonce, ok := d.nextPeer()
	if !ok {
		if d.core.Mode() == core.ModeConnect {
			if len(d.pending) >= d.opt.SendHWM {
				return nbmqerr.ErrHighWaterMark
			}
			d.pending = append(d.pending, pendingSend{parts: parts, nonce: d.nextNonce()})
			return nil
		}
		return nbmqerr.ErrNoPeer
	}

	q, ok := d.sendQueues[sessionID]
	if !ok {
		q = queue.NewSendQueue(d.opt)
		d.sendQueues[sessionID] = q
	}

	return q.Push(sessionID, parts, nonce)
}

// flushPending pushes any buffered pre-handshake sends onto the now-known
// connect target's real send queue.
func (d *Dealer) flushPending() {
	if len(d.pending) == 0 || len(d.peers) == 0 {
		return
	}

	sessionID := d.peers[0]
	q, ok := d.sendQueues[sessionID]
	if !ok {
		q = queue.NewSendQueue(d.opt)
		d.sendQueues[sessionID] = q
	}

	for _, p := range d.pending {
		q.Push(sessionID, p.parts, p.nonce)
	}
	d.pending = nil
}

// Recv returns the next fully reassembled message, or ErrWouldBlock.
func (d *Dealer) Recv() ([][]byte, error) {
	msg, ok := d.recvQueue.Pull(time.Now())
	if !ok {
		return nil, nbmqerr.ErrWouldBlock
	}
	return msg.Parts, nil
}

// Tick performs one scheduling step: absorb peer-set changes, drain
// incoming datagrams into the recv queue, drain outgoing frames from each
// peer's send queue per its softmax-weighted budget, run core maintenance,
// and re-absorb peer-set changes.
func (d *Dealer) Tick() error {
	d.absorbPeers()
	d.syncQueues()
	d.flushPending()

	now := time.Now()
	d.drainRecv(func(df *frame.DataFrame) {
		d.recvQueue.Push(df, now)
	}, nil)

	drainPeerQueuesBudgeted(
		d.peers,
		func(id uint64) []byte {
			q, ok := d.sendQueues[id]
			if !ok {
				return nil
			}
			return q.Pull()
		},
		func(id uint64) int {
			q, ok := d.sendQueues[id]
			if !ok {
				return 0
			}
			return q.Len()
		},
		d.opt.MaxTickSend,
		func(id uint64, data []byte) error {
			return d.core.SendPeer(data, id)
		},
	)

	d.core.Maint(now)
	d.absorbPeers()
	d.syncQueues()

	return nil
}

// syncQueues drops send queues for peers that have vanished from the peer
// table since the last absorption.
func (d *Dealer) syncQueues() {
	alive := make(map[uint64]bool, len(d.peers))
	for _, id := range d.peers {
		alive[id] = true
	}
	for id := range d.sendQueues {
		if !alive[id] {
			delete(d.sendQueues, id)
		}
	}
}

// SendQueueDepth reports outstanding outgoing frames across every peer.
func (d *Dealer) SendQueueDepth() int {
	total := 0
	for _, q := range d.sendQueues {
		total += q.Len()
	}
	return total
}

// RecvQueueDepth reports in-progress (not yet complete) incoming messages.
func (d *Dealer) RecvQueueDepth() int {
	return d.recvQueue.IncomingLen()
}

// SendHWMRejections reports the cumulative send-side high water mark
// rejection count across every peer.
func (d *Dealer) SendHWMRejections() uint64 {
	var total uint64
	for _, q := range d.sendQueues {
		total += q.HWMRejections()
	}
	return total
}

// RecvHWMRejections reports the cumulative recv-side high water mark
// rejection count.
func (d *Dealer) RecvHWMRejections() uint64 {
	return d.recvQueue.HWMRejections()
}

// Retransmitted is always 0: plain Dealer never retransmits.
func (d *Dealer) Retransmitted() uint64 { return 0 }

// Deduplicated is always 0: plain Dealer never deduplicates.
func (d *Dealer) Deduplicated() uint64 { return 0 }
