// Package option holds the tunable knobs shared by core, queue, and pattern
// packages. It is kept dependency-free so every layer of the socket can
// import it without risking an import cycle with the root nbmq package,
// which re-exports Opt for callers.
package option

import "time"

// Opt bundles every tunable named in the spec's builder surface. The zero
// value is not meaningful; use Default().
type Opt struct {
	SendHWM int
	RecvHWM int

	SafeResendIvl    time.Duration
	SafeResendLimit  int
	SafeHashDedupTTL time.Duration

	UncompletedMessageTTL time.Duration
	QueueMaintIvl         time.Duration

	PeerHeartbeatIvl time.Duration
	PeerKeepalive    time.Duration
	ReconnectWait    time.Duration

	MaxTickSend int
	MaxTickRecv int
}

// Default returns the option set with every spec-mandated default applied.
func Default() Opt {
	return Opt{
		SendHWM: 1000,
		RecvHWM: 1000,

		SafeResendIvl:    200 * time.Millisecond,
		SafeResendLimit:  10,
		SafeHashDedupTTL: 1 * time.Second,

		UncompletedMessageTTL: 10 * time.Second,
		QueueMaintIvl:         1 * time.Second,

		PeerHeartbeatIvl: 1 * time.Second,
		PeerKeepalive:    10 * time.Second,
		ReconnectWait:    5 * time.Second,

		MaxTickSend: 1000,
		MaxTickRecv: 1000,
	}
}

// The With* methods follow the teacher builder's consuming-self chain style
// (src/api.rs Socket<T>): each takes the receiver by value and returns a
// modified copy, so calls chain without aliasing shared state.

func (o Opt) WithSendHWM(n int) Opt {
	o.SendHWM = n
	return o
}

func (o Opt) WithRecvHWM(n int) Opt {
	o.RecvHWM = n
	return o
}

func (o Opt) WithSafeResendIvl(d time.Duration) Opt {
	o.SafeResendIvl = d
	return o
}

func (o Opt) WithSafeResendLimit(n int) Opt {
	o.SafeResendLimit = n
	return o
}

func (o Opt) WithSafeHashDedupTTL(d time.Duration) Opt {
	o.SafeHashDedupTTL = d
	return o
}

func (o Opt) WithUncompletedMessageTTL(d time.Duration) Opt {
	o.UncompletedMessageTTL = d
	return o
}

func (o Opt) WithQueueMaintIvl(d time.Duration) Opt {
	o.QueueMaintIvl = d
	return o
}

func (o Opt) WithPeerHeartbeatIvl(d time.Duration) Opt {
	o.PeerHeartbeatIvl = d
	return o
}

func (o Opt) WithPeerKeepalive(d time.Duration) Opt {
	o.PeerKeepalive = d
	return o
}

func (o Opt) WithReconnectWait(d time.Duration) Opt {
	o.ReconnectWait = d
	return o
}

func (o Opt) WithMaxTickSend(n int) Opt {
	o.MaxTickSend = n
	return o
}

func (o Opt) WithMaxTickRecv(n int) Opt {
	o.MaxTickRecv = n
	return o
}
