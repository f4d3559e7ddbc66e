package pattern

import (
	"time"

	"github.com/naatebarber/nbmq/core"
	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/internal/queue"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

// SafeDealer is Dealer plus per-frame retransmission and message-level
// dedup: every accepted data frame is acknowledged back to its sender, and
// every pushed frame is retried until acknowledged or resend_limit is hit.
type SafeDealer struct {
	base

	sendQueues map[uint64]*queue.SafeSendQueue
	recvQueue  *queue.SafeRecvQueue
	pending    []pendingSend
}

// NewSafeDealer returns a SafeDealer scheduled over c.
func NewSafeDealer(c *core.Core, opt option.Opt) *SafeDealer {
	return &SafeDealer{
		base:       newBase(c, opt),
		sendQueues: make(map[uint64]*queue.SafeSendQueue),
		recvQueue:  queue.NewSafeRecvQueue(opt),
	}
}

// Peers reports the number of currently known peers.
func (d *SafeDealer) Peers() int {
	return d.core.Peers()
}

// Send fragments parts and enqueues them on the next fair-queue peer's safe
// send queue. A Connect-mode SafeDealer whose handshake hasn't completed
// yet has no peer to target; it buffers the message and flushes it, under
// the retry variant, once the connect target registers. A Bind-mode
// SafeDealer with no peers fails with ErrNoPeer.
func (d *SafeDealer) Send(parts [][]byte) error {
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
		q = queue.NewSafeSendQueue(d.opt)
		d.sendQueues[sessionID] = q
	}

	return q.Push(sessionID, parts, nonce)
}

// flushPending pushes any buffered pre-handshake sends onto the now-known
// connect target's real safe send queue.
func (d *SafeDealer) flushPending() {
	if len(d.pending) == 0 || len(d.peers) == 0 {
		return
	}

	sessionID := d.peers[0]
	q, ok := d.sendQueues[sessionID]
	if !ok {
		q = queue.NewSafeSendQueue(d.opt)
		d.sendQueues[sessionID] = q
	}

	for _, p := range d.pending {
		q.Push(sessionID, p.parts, p.nonce)
	}
	d.pending = nil
}

// Recv returns the next fully reassembled, not-yet-delivered message, or
// ErrWouldBlock.
func (d *SafeDealer) Recv() ([][]byte, error) {
	msg, ok := d.recvQueue.PullSafe(time.Now())
	if !ok {
		return nil, nbmqerr.ErrWouldBlock
	}
	return msg.Parts, nil
}

// Tick performs one scheduling step: absorb peer-set changes, ack every
// accepted data frame and push it into the recv queue, confirm
// retransmission for every Ack received, drain each peer's safe send queue
// (fresh frames and anything due for retransmission) per its
// softmax-weighted budget, run core maintenance, and re-absorb peer-set
// changes.
func (d *SafeDealer) Tick() error {
	d.absorbPeers()
	d.syncQueues()
	d.flushPending()

	now := time.Now()

	d.drainRecv(
		func(df *frame.DataFrame) {
			ack := frame.EncodeAck(df.SessionID, df.Hash())
			d.core.SendPeer(ack, df.SessionID)
			d.recvQueue.Push(df, now)
		},
		func(cf *frame.ControlFrame) {
			if cf.Kind != frame.KindAck {
				return
			}
			if q, ok := d.sendQueues[cf.SessionID]; ok {
				q.ConfirmSafe(cf.AckHash())
			}
		},
	)

	drainPeerQueuesBudgeted(
		d.peers,
		func(id uint64) []byte {
			q, ok := d.sendQueues[id]
			if !ok {
				return nil
			}
			return q.PullSafe(now)
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

func (d *SafeDealer) syncQueues() {
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

// SendQueueDepth reports outstanding and in-flight outgoing frames across
// every peer.
func (d *SafeDealer) SendQueueDepth() int {
	total := 0
	for _, q := range d.sendQueues {
		total += q.Len()
	}
	return total
}

// RecvQueueDepth reports in-progress (not yet complete) incoming messages.
func (d *SafeDealer) RecvQueueDepth() int {
	return d.recvQueue.IncomingLen()
}

// SendHWMRejections reports the cumulative send-side high water mark
// rejection count across every peer.
func (d *SafeDealer) SendHWMRejections() uint64 {
	var total uint64
	for _, q := range d.sendQueues {
		total += q.HWMRejections()
	}
	return total
}

// RecvHWMRejections reports the cumulative recv-side high water mark
// rejection count.
func (d *SafeDealer) RecvHWMRejections() uint64 {
	return d.recvQueue.HWMRejections()
}

// Retransmitted reports the cumulative number of frames resent across every
// peer's safe send queue.
func (d *SafeDealer) Retransmitted() uint64 {
	var total uint64
	for _, q := range d.sendQueues {
		total += q.Retransmitted()
	}
	return total
}

// Deduplicated reports the cumulative number of redeliveries suppressed by
// the dedup TTL.
func (d *SafeDealer) Deduplicated() uint64 {
	return d.recvQueue.Deduplicated()
}
