// Package nbmq is a connectionless message-queue library over UDP: wire
// framing, a peer/session handshake state machine, and a small family of
// socket patterns (Dealer, Radio, Dish, SafeDealer) layered on top.
package nbmq

import (
	"github.com/sirupsen/logrus"

	"github.com/naatebarber/nbmq/core"
	"github.com/naatebarber/nbmq/internal/pattern"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

// Opt re-exports option.Opt so callers never import the internal-adjacent
// option package directly.
type Opt = option.Opt

// DefaultOpt returns the spec-mandated default option set.
func DefaultOpt() Opt {
	return option.Default()
}

// Kind selects which pattern a Socket builder produces.
type Kind int

const (
	KindDealer Kind = iota
	KindRadio
	KindDish
	KindSafeDealer
)

// Socket is the typed façade over one of the four patterns. It is not
// goroutine-safe: callers interleaving Send/Recv/Tick from multiple
// goroutines must provide their own synchronization, matching the
// single-threaded contract every pattern is built around.
type Socket struct {
	kind Kind
	opt  Opt

	dealer     *pattern.Dealer
	radio      *pattern.Radio
	dish       *pattern.Dish
	safeDealer *pattern.SafeDealer
}

// Builder configures a Socket before it binds or connects.
type Builder struct {
	kind   Kind
	opt    Opt
	logger logrus.FieldLogger
}

// NewBuilder starts a Socket builder for kind with opt as its option set.
func NewBuilder(kind Kind, opt Opt) *Builder {
	return &Builder{kind: kind, opt: opt}
}

// WithLogger overrides the default standard logrus logger the underlying
// core transport logs through.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// Bind finalises the builder into a server-mode Socket listening on addr.
func (b *Builder) Bind(addr string) (*Socket, error) {
	c, err := core.Bind(addr, b.opt, b.logger)
	if err != nil {
		return nil, err
	}
	return newSocket(b.kind, b.opt, c), nil
}

// Connect finalises the builder into a client-mode Socket targeting addr.
func (b *Builder) Connect(addr string) (*Socket, error) {
	c, err := core.Connect(addr, b.opt, b.logger)
	if err != nil {
		return nil, err
	}
	return newSocket(b.kind, b.opt, c), nil
}

func newSocket(kind Kind, opt Opt, c *core.Core) *Socket {
	s := &Socket{kind: kind, opt: opt}
	switch kind {
	case KindDealer:
		s.dealer = pattern.NewDealer(c, opt)
	case KindRadio:
		s.radio = pattern.NewRadio(c, opt)
	case KindDish:
		s.dish = pattern.NewDish(c, opt)
	case KindSafeDealer:
		s.safeDealer = pattern.NewSafeDealer(c, opt)
	}
	return s
}

// Opt returns the option set the socket was built with.
func (s *Socket) Opt() Opt {
	return s.opt
}

// Peers reports the number of currently known peers.
func (s *Socket) Peers() int {
	switch s.kind {
	case KindDealer:
		return s.dealer.Peers()
	case KindRadio:
		return s.radio.Peers()
	case KindDish:
		return s.dish.Peers()
	case KindSafeDealer:
		return s.safeDealer.Peers()
	}
	return 0
}

// Send enqueues parts for transmission. Radio broadcasts to every known
// peer; Dish always fails with ErrNotSupported; Dealer and SafeDealer
// fair-queue to the next peer in round-robin order.
func (s *Socket) Send(parts [][]byte) error {
	switch s.kind {
	case KindDealer:
		return s.dealer.Send(parts)
	case KindRadio:
		return s.radio.Send(parts)
	case KindDish:
		return s.dish.Send(parts)
	case KindSafeDealer:
		return s.safeDealer.Send(parts)
	}
	return nbmqerr.ErrNotSupported
}

// Recv returns the next fully reassembled message, or ErrWouldBlock if none
// is ready. Radio always fails with ErrNotSupported.
func (s *Socket) Recv() ([][]byte, error) {
	switch s.kind {
	case KindDealer:
		return s.dealer.Recv()
	case KindRadio:
		return s.radio.Recv()
	case KindDish:
		return s.dish.Recv()
	case KindSafeDealer:
		return s.safeDealer.Recv()
	}
	return nil, nbmqerr.ErrNotSupported
}

// Tick performs one scheduling step: absorbing peer-set changes, draining
// incoming datagrams, draining outgoing frames per the pattern's policy,
// and running core maintenance (handshake retry, heartbeat, keepalive
// eviction).
func (s *Socket) Tick() error {
	switch s.kind {
	case KindDealer:
		return s.dealer.Tick()
	case KindRadio:
		return s.radio.Tick()
	case KindDish:
		return s.dish.Tick()
	case KindSafeDealer:
		return s.safeDealer.Tick()
	}
	return nil
}

// Metrics returns the underlying pattern as a metrics.Source, for
// registration with a metrics.SocketCollector. Every Kind implements it.
func (s *Socket) Metrics() interface {
	Peers() int
	SendQueueDepth() int
	RecvQueueDepth() int
	SendHWMRejections() uint64
	RecvHWMRejections() uint64
	Retransmitted() uint64
	Deduplicated() uint64
} {
	switch s.kind {
	case KindDealer:
		return s.dealer
	case KindRadio:
		return s.radio
	case KindDish:
		return s.dish
	case KindSafeDealer:
		return s.safeDealer
	}
	return nil
}
