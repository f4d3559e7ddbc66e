// Package pattern implements the socket patterns nbmq exposes over a core
// transport: Dealer, Radio, Dish, and SafeDealer. Every pattern shares the
// same tick() scheduling shape; what differs is how each drains its send
// queues and whether it accepts incoming data frames at all.
package pattern

import (
	"math"
	"time"

	"github.com/naatebarber/nbmq/core"
	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/option"
	"golang.org/x/time/rate"
)

// base holds the scheduling state every pattern needs: the transport, the
// known peer order used for fair-queue selection, and the round-robin/nonce
// counter.
type base struct {
	core   *core.Core
	opt    option.Opt
	peers  []uint64
	unique uint64
}

func newBase(c *core.Core, opt option.Opt) base {
	return base{core: c, opt: opt, peers: c.PeerIDs()}
}

// absorbPeers refreshes the cached peer order if the peer set has mutated
// since the last absorption. It returns whether a refresh happened, so
// callers can drop per-peer state for peers that vanished.
func (b *base) absorbPeers() bool {
	ids, changed := b.core.UpdatePeers()
	if !changed {
		return false
	}
	b.peers = ids
	return true
}

// nextPeer returns the next fair-queue target for a Dealer-style send along
// with the nonce value used to pick it (also used to diversify the
// message id), and advances the round-robin counter. ok is false if there
// are no peers. The counter wraps silently on uint64 overflow.
func (b *base) nextPeer() (sessionID uint64, nonce uint64, ok bool) {
	if len(b.peers) == 0 {
		return 0, 0, false
	}
	nonce = b.unique
	id := b.peers[nonce%uint64(len(b.peers))]
	b.unique++
	return id, nonce, true
}

// nextNonce advances and returns the round-robin/message-id counter without
// selecting a peer, for patterns that broadcast rather than fan out.
func (b *base) nextNonce() uint64 {
	n := b.unique
	b.unique++
	return n
}

// drainRecv pulls up to max_tick_recv datagrams off the core, handing each
// data frame to onData. Control frames are consumed by core.Recv itself and
// only surfaced for patterns that react to them (SafeDealer's Ack path);
// onControl may be nil.
func (b *base) drainRecv(onData func(df *frame.DataFrame), onControl func(cf *frame.ControlFrame)) {
	for i := 0; i < b.opt.MaxTickRecv; i++ {
		df, cf, err := b.core.Recv()
		if err != nil {
			return
		}
		switch {
		case df != nil && onData != nil:
			onData(df)
		case cf != nil && onControl != nil:
			onControl(cf)
		}
	}
}

// softmaxBudgets computes floor(softmax(lens)_i * total) per entry. An
// empty input returns an empty budget set rather than dividing by zero.
func softmaxBudgets(lens []int, total int) []int {
	if len(lens) == 0 {
		return nil
	}

	max := lens[0]
	for _, l := range lens[1:] {
		if l > max {
			max = l
		}
	}

	weights := make([]float64, len(lens))
	var sum float64
	for i, l := range lens {
		w := math.Exp(float64(l - max))
		weights[i] = w
		sum += w
	}

	budgets := make([]int, len(lens))
	for i, w := range weights {
		budgets[i] = int(math.Floor((w / sum) * float64(total)))
	}
	return budgets
}

// drainPeerQueuesBudgeted pulls up to each peer's softmax-weighted share of
// total from its send queue and hands the raw frame to send. A per-peer
// send failure stops draining that peer but does not affect the others.
//
// Each peer's budget is enforced with a rate.Limiter rather than a
// hand-rolled counter: a limiter built with zero refill rate and burst set
// to the computed budget grants exactly that many AllowN(1) calls before
// refusing, which is the same "take N tokens, report what's left" primitive
// the budget loop needs for one tick.
func drainPeerQueuesBudgeted(peers []uint64, pull func(sessionID uint64) []byte, lens func(sessionID uint64) int, total int, send func(sessionID uint64, data []byte) error) {
	if len(peers) == 0 {
		return
	}

	lenSlice := make([]int, len(peers))
	for i, id := range peers {
		lenSlice[i] = lens(id)
	}
	budgets := softmaxBudgets(lenSlice, total)
	now := time.Now()

	for i, id := range peers {
		limiter := rate.NewLimiter(0, budgets[i])
		for limiter.AllowN(now, 1) {
			data := pull(id)
			if data == nil {
				break
			}
			if send(id, data) != nil {
				break
			}
		}
	}
}
