package queue

import (
	"time"

	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

// byteRange is a half-open [start, end) span already applied to a part's
// buffer, used to make duplicate chunk delivery a no-op.
type byteRange struct {
	start, end uint32
}

func (r byteRange) overlapsOrEquals(o byteRange) bool {
	return r.start == o.start && r.end == o.end
}

// messagePart reassembles one part of a multipart message from
// out-of-order, possibly duplicated chunks.
type messagePart struct {
	size     uint32
	assigned uint32
	data     []byte
	ranges   []byteRange
}

func newMessagePart(size uint32) *messagePart {
	return &messagePart{size: size, data: make([]byte, size)}
}

// addChunk applies one chunk to the part. It returns (applied, complete,
// err): applied is false if the range was already seen (idempotent
// duplicate delivery); err is ErrFrameCorrupt if the chunk's bounds exceed
// the part's declared size.
func (p *messagePart) addChunk(offset uint32, chunk []byte) (applied bool, complete bool, err error) {
	end := offset + uint32(len(chunk))
	if end > p.size || end < offset {
		return false, false, nbmqerr.ErrFrameCorrupt
	}

	rng := byteRange{start: offset, end: end}
	for _, seen := range p.ranges {
		if seen.overlapsOrEquals(rng) {
			return false, p.assigned == p.size, nil
		}
	}

	copy(p.data[offset:end], chunk)
	p.ranges = append(p.ranges, rng)
	p.assigned += uint32(len(chunk))

	return true, p.assigned == p.size, nil
}

// incomingMessage is one in-progress reassembly, keyed by (session id,
// message id) in RecvQueue.
type incomingMessage struct {
	size           uint32
	partCount      uint8
	completedParts uint8
	assigned       uint32
	parts          []*messagePart
	lastModify     time.Time
}

func newIncomingMessage(size uint32, partCount uint8, now time.Time) *incomingMessage {
	return &incomingMessage{
		size:       size,
		partCount:  partCount,
		parts:      make([]*messagePart, partCount),
		lastModify: now,
	}
}

func (m *incomingMessage) addFrame(df *frame.DataFrame, now time.Time) (complete bool, err error) {
	if int(df.PartIndex) >= len(m.parts) {
		return false, nbmqerr.ErrFrameCorrupt
	}

	part := m.parts[df.PartIndex]
	wasComplete := false
	if part == nil {
		part = newMessagePart(df.PartSize)
		m.parts[df.PartIndex] = part
	} else {
		wasComplete = part.assigned == part.size
	}

	applied, nowComplete, err := part.addChunk(df.ChunkOffset, df.Chunk)
	if err != nil {
		return false, err
	}

	m.lastModify = now

	if applied {
		m.assigned += uint32(len(df.Chunk))
	}
	if nowComplete && !wasComplete {
		m.completedParts++
	}

	return m.completedParts == m.partCount && m.assigned == m.size, nil
}

func (m *incomingMessage) reassemble() [][]byte {
	out := make([][]byte, len(m.parts))
	for i, p := range m.parts {
		if p == nil {
			out[i] = nil
			continue
		}
		out[i] = p.data
	}
	return out
}

// MessageKey identifies one logical message across both plain and safe
// recv queues.
type MessageKey struct {
	SessionID uint64
	MessageID uint64
}

// Message pairs a reassembled message with the key it was
// received under, so callers (and pull_safe's dedup set) can identify it.
type Message struct {
	Key   MessageKey
	Parts [][]byte
}

// RecvQueue reassembles incoming data frames into complete multipart
// messages, tolerating out-of-order and duplicate chunk delivery.
type RecvQueue struct {
	opt option.Opt

	incoming map[MessageKey]*incomingMessage
	complete []Message

	lastMaint     time.Time
	hwmRejections uint64
}

// NewRecvQueue returns an empty recv queue governed by opt.
func NewRecvQueue(opt option.Opt) *RecvQueue {
	return &RecvQueue{
		opt:      opt,
		incoming: make(map[MessageKey]*incomingMessage),
	}
}

// Push applies one data frame's chunk to its message, completing and
// queuing the message if this was its final outstanding chunk.
func (q *RecvQueue) Push(df *frame.DataFrame, now time.Time) error {
	key := MessageKey{SessionID: df.SessionID, MessageID: df.MessageID}

	msg, ok := q.incoming[key]
	if !ok {
		if len(q.incoming) >= q.opt.RecvHWM {
			q.hwmRejections++
			return nbmqerr.ErrWouldBlock
		}
		msg = newIncomingMessage(df.MessageSize, df.PartCount, now)
		q.incoming[key] = msg
	}

	complete, err := msg.addFrame(df, now)
	if err != nil {
		// Corrupt chunk bounds: drop silently, per spec section 7 policy on
		// individual-frame problems.
		return nil
	}

	if !complete {
		return nil
	}

	delete(q.incoming, key)

	if len(q.complete) >= q.opt.RecvHWM {
		q.hwmRejections++
		return nbmqerr.ErrWouldBlock
	}

	q.complete = append(q.complete, Message{Key: key, Parts: msg.reassemble()})
	return nil
}

// Pull returns the next fully reassembled message, or (nil, false) if none
// is ready. Before returning it runs maintenance at most once per
// opt.QueueMaintIvl, dropping incoming messages stuck past
// opt.UncompletedMessageTTL.
func (q *RecvQueue) Pull(now time.Time) (Message, bool) {
	q.maybeMaint(now)

	if len(q.complete) == 0 {
		return Message{}, false
	}

	msg := q.complete[0]
	q.complete = q.complete[1:]
	return msg, true
}

func (q *RecvQueue) maybeMaint(now time.Time) {
	if !q.lastMaint.IsZero() && now.Sub(q.lastMaint) < q.opt.QueueMaintIvl {
		return
	}
	q.lastMaint = now

	for key, msg := range q.incoming {
		if now.Sub(msg.lastModify) > q.opt.UncompletedMessageTTL {
			delete(q.incoming, key)
		}
	}
}

// IncomingLen reports in-progress (not yet complete) message count.
func (q *RecvQueue) IncomingLen() int {
	return len(q.incoming)
}

// HWMRejections reports how many frames or completed messages have been
// rejected for being at the recv high water mark.
func (q *RecvQueue) HWMRejections() uint64 {
	return q.hwmRejections
}

// dedupEntry records a surfaced message's key until its TTL lapses.
type dedupEntry struct {
	key    MessageKey
	expiry time.Time
}

// SafeRecvQueue augments RecvQueue with message-level dedup: a message is
// surfaced at most once within opt.SafeHashDedupTTL of its first delivery.
type SafeRecvQueue struct {
	*RecvQueue

	seen         map[MessageKey]struct{}
	expiry       []dedupEntry
	deduplicated uint64
}

// NewSafeRecvQueue returns an empty safe recv queue governed by opt.
func NewSafeRecvQueue(opt option.Opt) *SafeRecvQueue {
	return &SafeRecvQueue{
		RecvQueue: NewRecvQueue(opt),
		seen:      make(map[MessageKey]struct{}),
	}
}

// PullSafe returns the next fully reassembled message not already
// delivered within the dedup TTL. A message whose key is a duplicate is
// consumed but not returned, and PullSafe moves on to the next completed
// message itself; (Message{}, false) means no non-duplicate message is
// ready.
func (q *SafeRecvQueue) PullSafe(now time.Time) (Message, bool) {
	q.evictExpired(now)

	for {
		msg, ok := q.RecvQueue.Pull(now)
		if !ok {
			return Message{}, false
		}

		if _, dup := q.seen[msg.Key]; dup {
			q.deduplicated++
			continue
		}

		q.seen[msg.Key] = struct{}{}
		q.expiry = append(q.expiry, dedupEntry{key: msg.Key, expiry: now.Add(q.opt.SafeHashDedupTTL)})
		return msg, true
	}
}

// Deduplicated reports the cumulative number of redeliveries suppressed by
// the dedup TTL.
func (q *SafeRecvQueue) Deduplicated() uint64 {
	return q.deduplicated
}

func (q *SafeRecvQueue) evictExpired(now time.Time) {
	i := 0
	for i < len(q.expiry) && !q.expiry[i].expiry.After(now) {
		delete(q.seen, q.expiry[i].key)
		i++
	}
	q.expiry = q.expiry[i:]
}
