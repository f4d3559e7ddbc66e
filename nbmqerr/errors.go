// Package nbmqerr defines the sentinel error kinds raised by the socket,
// core, and queue layers of nbmq.
package nbmqerr

import "errors"

// Sentinel errors. Wrap these with github.com/pkg/errors at the call site
// (errors.Wrap/errors.Wrapf) to attach context; use errors.Is against these
// values to recover the kind.
var (
	// ErrWouldBlock is returned when an operation has no work to do right
	// now: no datagram ready, recv queue empty, or a recv-side HWM bounce.
	ErrWouldBlock = errors.New("operation would block")

	// ErrHighWaterMark is returned when a send queue is at its message-count
	// high water mark.
	ErrHighWaterMark = errors.New("queue is over high water mark")

	// ErrNoPeer is returned when a send is attempted with an empty peer table.
	ErrNoPeer = errors.New("no socket peers available")

	// ErrMessageTooLong is returned when a multipart message has more than
	// 255 parts.
	ErrMessageTooLong = errors.New("message part count exceeds 255")

	// ErrMessageTooLarge is returned when a message's total byte size
	// exceeds 2^32-1.
	ErrMessageTooLarge = errors.New("message size exceeds 4GiB")

	// ErrFrameCorrupt marks a frame that failed structural validation. It
	// never crosses a public API boundary: callers only ever see frames
	// silently dropped.
	ErrFrameCorrupt = errors.New("frame is malformed")

	// ErrUnknownPeer is returned internally when an operation names a
	// session id not present in the peer table.
	ErrUnknownPeer = errors.New("peer is unknown")

	ErrRecvFailed    = errors.New("recv failed")
	ErrSendFailed    = errors.New("send failed")
	ErrBindFailed    = errors.New("bind failed")
	ErrConnectFailed = errors.New("connect failed")

	// ErrNotSupported marks a pattern-forbidden operation: recv on Radio,
	// send on Dish.
	ErrNotSupported = errors.New("operation not supported by this socket pattern")
)
