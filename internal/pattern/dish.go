package pattern

import (
	"time"

	"github.com/naatebarber/nbmq/core"
	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/internal/queue"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

// Dish is the receive-only dual of Radio. Sending is not supported.
type Dish struct {
	base

	recvQueue *queue.RecvQueue
}

// NewDish returns a Dish scheduled over c.
func NewDish(c *core.Core, opt option.Opt) *Dish {
	return &Dish{
		base:      newBase(c, opt),
		recvQueue: queue.NewRecvQueue(opt),
	}
}

// Peers reports the number of currently known peers.
func (d *Dish) Peers() int {
	return d.core.Peers()
}

// Send always fails: Dish is recv-only.
func (d *Dish) Send(parts [][]byte) error {
	return nbmqerr.ErrNotSupported
}

// Recv returns the next fully reassembled message, or ErrWouldBlock.
func (d *Dish) Recv() ([][]byte, error) {
	msg, ok := d.recvQueue.Pull(time.Now())
	if !ok {
		return nil, nbmqerr.ErrWouldBlock
	}
	return msg.Parts, nil
}

// Tick performs one scheduling step: absorb peer-set changes, drain
// incoming datagrams into the recv queue, run core maintenance, and
// re-absorb peer-set changes. There is no outgoing drain.
func (d *Dish) Tick() error {
	d.absorbPeers()

	now := time.Now()
	d.drainRecv(func(df *frame.DataFrame) {
		d.recvQueue.Push(df, now)
	}, nil)

	d.core.Maint(now)
	d.absorbPeers()

	return nil
}

// SendQueueDepth is always 0: Dish has no send queue.
func (d *Dish) SendQueueDepth() int { return 0 }

// RecvQueueDepth reports in-progress (not yet complete) incoming messages.
func (d *Dish) RecvQueueDepth() int {
	return d.recvQueue.IncomingLen()
}

// SendHWMRejections is always 0: Dish has no send queue.
func (d *Dish) SendHWMRejections() uint64 { return 0 }

// RecvHWMRejections reports the cumulative recv-side high water mark
// rejection count.
func (d *Dish) RecvHWMRejections() uint64 {
	return d.recvQueue.HWMRejections()
}

// Retransmitted is always 0: Dish has no safe-variant send side.
func (d *Dish) Retransmitted() uint64 { return 0 }

// Deduplicated is always 0: plain Dish never deduplicates.
func (d *Dish) Deduplicated() uint64 { return 0 }
