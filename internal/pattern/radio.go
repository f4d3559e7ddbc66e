package pattern

import (
	"time"

	"github.com/naatebarber/nbmq/core"
	"github.com/naatebarber/nbmq/internal/queue"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

// Radio is the broadcast pattern: every send reaches every known peer.
// Receiving is not supported.
//
// Each peer gets its own send queue rather than one shared queue: a data
// frame's session id must match the id the recipient knows this connection
// by, so a single shared encoding could only ever be valid for one peer.
// Every peer's copy is pushed under the same nonce so they share one
// message id.
type Radio struct {
	base

	sendQueues map[uint64]*queue.SendQueue
}

// NewRadio returns a Radio scheduled over c.
func NewRadio(c *core.Core, opt option.Opt) *Radio {
	return &Radio{
		base:       newBase(c, opt),
		sendQueues: make(map[uint64]*queue.SendQueue),
	}
}

// Peers reports the number of currently known peers.
func (r *Radio) Peers() int {
	return r.core.Peers()
}

// Send fragments parts and enqueues a copy for every known peer. Fails with
// ErrNoPeer if the peer table is empty.
func (r *Radio) Send(parts [][]byte) error {
	if len(r.peers) == 0 {
		return nbmqerr.ErrNoPeer
	}

	nonce := r.nextNonce()
	for _, id := range r.peers {
		q, ok := r.sendQueues[id]
		if !ok {
			q = queue.NewSendQueue(r.opt)
			r.sendQueues[id] = q
		}
		if err := q.Push(id, parts, nonce); err != nil {
			return err
		}
	}
	return nil
}

// Recv always fails: Radio is send-only.
func (r *Radio) Recv() ([][]byte, error) {
	return nil, nbmqerr.ErrNotSupported
}

// Tick performs one scheduling step. Incoming data frames are drained off
// the socket and discarded; only control frames (handshake, heartbeat)
// matter to a Radio.
func (r *Radio) Tick() error {
	r.absorbPeers()
	r.syncQueues()

	now := time.Now()
	r.drainRecv(nil, nil)

	for _, id := range r.peers {
		q, ok := r.sendQueues[id]
		if !ok {
			continue
		}
		for i := 0; i < r.opt.MaxTickSend; i++ {
			data := q.Pull()
			if data == nil {
				break
			}
			if err := r.core.SendPeer(data, id); err != nil {
				break
			}
		}
	}

	r.core.Maint(now)
	r.absorbPeers()
	r.syncQueues()

	return nil
}

func (r *Radio) syncQueues() {
	alive := make(map[uint64]bool, len(r.peers))
	for _, id := range r.peers {
		alive[id] = true
	}
	for id := range r.sendQueues {
		if !alive[id] {
			delete(r.sendQueues, id)
		}
	}
}

// SendQueueDepth reports outstanding outgoing frames across every peer.
func (r *Radio) SendQueueDepth() int {
	total := 0
	for _, q := range r.sendQueues {
		total += q.Len()
	}
	return total
}

// RecvQueueDepth is always 0: Radio discards every incoming data frame.
func (r *Radio) RecvQueueDepth() int { return 0 }

// SendHWMRejections reports the cumulative send-side high water mark
// rejection count across every peer.
func (r *Radio) SendHWMRejections() uint64 {
	var total uint64
	for _, q := range r.sendQueues {
		total += q.HWMRejections()
	}
	return total
}

// RecvHWMRejections is always 0: Radio has no recv queue.
func (r *Radio) RecvHWMRejections() uint64 { return 0 }

// Retransmitted is always 0: Radio never retransmits.
func (r *Radio) Retransmitted() uint64 { return 0 }

// Deduplicated is always 0: Radio never deduplicates.
func (r *Radio) Deduplicated() uint64 { return 0 }
