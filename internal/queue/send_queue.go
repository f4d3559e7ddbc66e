// Package queue implements the send and receive queues: multipart
// fragmentation into bounded chunks, reassembly with out-of-order
// tolerance, and the safe-variant retransmission/dedup augmentation.
package queue

import (
	"container/list"
	"time"

	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/internal/hashrand"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

// itemKind distinguishes a queued frame from the marker that closes out a
// message, letting Pull report "drained one whole message" to its caller.
type itemKind int

const (
	itemFrame itemKind = iota
	itemMarker
)

type queueItem struct {
	kind itemKind
	data []byte
}

// SendQueue expands pushed multipart messages into a strict FIFO sequence
// of wire-ready data frames, enforcing the message-count high water mark.
type SendQueue struct {
	opt option.Opt

	messageCount  int
	items         *list.List
	hwmRejections uint64
}

// NewSendQueue returns an empty send queue governed by opt.
func NewSendQueue(opt option.Opt) *SendQueue {
	return &SendQueue{opt: opt, items: list.New()}
}

// Len reports outstanding frames plus markers still queued.
func (q *SendQueue) Len() int {
	return q.items.Len()
}

// MessageCount reports messages pushed but not yet fully pulled.
func (q *SendQueue) MessageCount() int {
	return q.messageCount
}

// HWMRejections reports how many Push calls have been rejected for being at
// the send high water mark.
func (q *SendQueue) HWMRejections() uint64 {
	return q.hwmRejections
}

// MessageID computes the id bound to a pushed message: FNV-1a-64 over every
// part followed by the caller-supplied nonce.
func MessageID(parts [][]byte, nonce uint64) uint64 {
	h := hashrand.NewFNV1a64()
	for _, p := range parts {
		h.Write(p)
	}
	nonceBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		nonceBytes[i] = byte(nonce >> (8 * (7 - i)))
	}
	h.Write(nonceBytes)
	return h.Sum64()
}

// Push fragments parts into chunk-sized data frames addressed to
// sessionID and enqueues them, followed by a marker. nonce diversifies the
// message id when the same parts are sent more than once (e.g. a dealer's
// monotonically increasing round-robin counter).
func (q *SendQueue) Push(sessionID uint64, parts [][]byte, nonce uint64) error {
	if q.messageCount >= q.opt.SendHWM {
		q.hwmRejections++
		return nbmqerr.ErrHighWaterMark
	}
	if len(parts) > 255 {
		return nbmqerr.ErrMessageTooLong
	}

	var messageSize uint64
	for _, p := range parts {
		messageSize += uint64(len(p))
	}
	if messageSize > 0xFFFFFFFF {
		return nbmqerr.ErrMessageTooLarge
	}

	messageID := MessageID(parts, nonce)
	partCount := uint8(len(parts))

	for i, part := range parts {
		partSize := uint32(len(part))
		var offset uint32
		if len(part) == 0 {
			// A zero-length part still needs exactly one chunk so the
			// receiver allocates and completes it.
			q.items.PushBack(&queueItem{kind: itemFrame, data: frame.EncodeDataFrame(
				sessionID, messageID, partCount, uint8(i), uint32(messageSize), partSize, 0, nil,
			)})
			continue
		}

		for offset < partSize {
			end := offset + frame.MaxDataSize
			if end > partSize {
				end = partSize
			}
			chunk := part[offset:end]
			q.items.PushBack(&queueItem{kind: itemFrame, data: frame.EncodeDataFrame(
				sessionID, messageID, partCount, uint8(i), uint32(messageSize), partSize, offset, chunk,
			)})
			offset = end
		}
	}

	q.items.PushBack(&queueItem{kind: itemMarker})
	q.messageCount++
	return nil
}

// Pull returns the next encoded data frame, or nil when the next queued
// item is the marker closing out a message (which is consumed and the
// message count decremented). Order is strict FIFO.
func (q *SendQueue) Pull() []byte {
	for {
		front := q.items.Front()
		if front == nil {
			return nil
		}
		q.items.Remove(front)

		item := front.Value.(*queueItem)
		if item.kind == itemMarker {
			q.messageCount--
			return nil
		}
		return item.data
	}
}

// inFlightEntry tracks one transmitted-but-unacknowledged frame.
type inFlightEntry struct {
	hash      uint64
	lastSent  time.Time
	sendCount int
}

// SafeSendQueue augments SendQueue with per-frame retransmission: every
// frame pulled is remembered by its hash until acknowledged, and re-emitted
// on a timer up to a capped number of attempts.
type SafeSendQueue struct {
	*SendQueue

	sent          map[uint64][]byte
	exp           *list.List // of *inFlightEntry, oldest-sent-first
	retransmitted uint64
}

// NewSafeSendQueue returns an empty safe send queue governed by opt.
func NewSafeSendQueue(opt option.Opt) *SafeSendQueue {
	return &SafeSendQueue{
		SendQueue: NewSendQueue(opt),
		sent:      make(map[uint64][]byte),
		exp:       list.New(),
	}
}

// Len reports outstanding frames, markers, and in-flight (unacknowledged)
// frames.
func (q *SafeSendQueue) Len() int {
	return q.SendQueue.Len() + len(q.sent)
}

// PullSafe returns the next frame to transmit: either a frame due for
// retransmission, or the next fresh frame off the underlying queue (which
// is recorded for retransmission before it's returned). Returns nil when
// there is nothing due and the next queued item is a message marker.
func (q *SafeSendQueue) PullSafe(now time.Time) []byte {
	for q.exp.Len() > 0 {
		front := q.exp.Front()
		entry := front.Value.(*inFlightEntry)

		if now.Sub(entry.lastSent) < q.opt.SafeResendIvl {
			break
		}
		q.exp.Remove(front)

		if entry.sendCount >= q.opt.SafeResendLimit {
			delete(q.sent, entry.hash)
			continue
		}

		data, ok := q.sent[entry.hash]
		if !ok {
			continue
		}

		entry.lastSent = now
		entry.sendCount++
		q.retransmitted++
		q.exp.PushBack(entry)
		return data
	}

	data := q.SendQueue.Pull()
	if data == nil {
		return nil
	}

	df, ok := frame.ParseDataFrame(data)
	if !ok {
		return data
	}
	hash := df.Hash()

	q.sent[hash] = data
	q.exp.PushBack(&inFlightEntry{hash: hash, lastSent: now, sendCount: 0})

	return data
}

// ConfirmSafe drops the in-flight record for hash: the frame has been
// acknowledged and retransmission for it stops.
func (q *SafeSendQueue) ConfirmSafe(hash uint64) {
	delete(q.sent, hash)
}

// InFlight reports the number of frames awaiting acknowledgement.
func (q *SafeSendQueue) InFlight() int {
	return len(q.sent)
}

// Retransmitted reports the cumulative number of frames resent after
// safe_resend_ivl elapsed without an acknowledgement.
func (q *SafeSendQueue) Retransmitted() uint64 {
	return q.retransmitted
}
