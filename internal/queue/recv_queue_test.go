package queue

import (
	"bytes"
	"testing"
	"time"

	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

func pushParts(t *testing.T, rq *RecvQueue, sessionID uint64, parts [][]byte, nonce uint64, now time.Time) {
	t.Helper()

	sq := NewSendQueue(option.Default())
	if err := sq.Push(sessionID, parts, nonce); err != nil {
		t.Fatalf("send queue push: %v", err)
	}

	for {
		raw := sq.Pull()
		if raw == nil {
			if sq.Len() == 0 {
				return
			}
			continue
		}
		df, ok := frame.ParseDataFrame(raw)
		if !ok {
			t.Fatalf("failed to parse fragmented frame")
		}
		if err := rq.Push(df, now); err != nil {
			t.Fatalf("recv queue push: %v", err)
		}
	}
}

func TestRecvQueueReassemblesWholeMessage(t *testing.T) {
	rq := NewRecvQueue(option.Default())
	now := time.Now()

	parts := [][]byte{
		bytes.Repeat([]byte{0x11}, int(frame.MaxDataSize)*2+3),
		[]byte("tail part"),
	}
	pushParts(t, rq, 42, parts, 7, now)

	msg, ok := rq.Pull(now)
	if !ok {
		t.Fatalf("expected a completed message")
	}
	if len(msg.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(msg.Parts))
	}
	if !bytes.Equal(msg.Parts[0], parts[0]) || !bytes.Equal(msg.Parts[1], parts[1]) {
		t.Fatalf("reassembled parts do not match input")
	}

	if _, ok := rq.Pull(now); ok {
		t.Fatalf("expected no second message")
	}
}

func TestRecvQueueOutOfOrderChunksStillComplete(t *testing.T) {
	rq := NewRecvQueue(option.Default())
	now := time.Now()

	big := bytes.Repeat([]byte{0x22}, int(frame.MaxDataSize)*3)

	sq := NewSendQueue(option.Default())
	if err := sq.Push(1, [][]byte{big}, 0); err != nil {
		t.Fatalf("push: %v", err)
	}

	var raws [][]byte
	for {
		raw := sq.Pull()
		if raw == nil {
			if sq.Len() == 0 {
				break
			}
			continue
		}
		raws = append(raws, raw)
	}

	// Feed chunks in reverse order, and feed the first one twice.
	for i := len(raws) - 1; i >= 0; i-- {
		df, _ := frame.ParseDataFrame(raws[i])
		if err := rq.Push(df, now); err != nil {
			t.Fatalf("push chunk %d: %v", i, err)
		}
	}
	dfDup, _ := frame.ParseDataFrame(raws[0])
	if err := rq.Push(dfDup, now); err != nil {
		t.Fatalf("push duplicate chunk: %v", err)
	}

	msg, ok := rq.Pull(now)
	if !ok {
		t.Fatalf("expected completed message despite out-of-order/duplicate delivery")
	}
	if !bytes.Equal(msg.Parts[0], big) {
		t.Fatalf("reassembled data corrupted by out-of-order or duplicate chunks")
	}
}

func TestRecvQueueZeroLengthPartCompletesImmediately(t *testing.T) {
	rq := NewRecvQueue(option.Default())
	now := time.Now()

	pushParts(t, rq, 1, [][]byte{nil}, 0, now)

	msg, ok := rq.Pull(now)
	if !ok {
		t.Fatalf("expected zero-length part message to complete")
	}
	if len(msg.Parts) != 1 || len(msg.Parts[0]) != 0 {
		t.Fatalf("expected one empty part, got %+v", msg.Parts)
	}
}

func TestRecvQueueHighWaterMarkBlocksNewMessages(t *testing.T) {
	opt := option.Default().WithRecvHWM(1)
	rq := NewRecvQueue(opt)
	now := time.Now()

	df1 := &frame.DataFrame{SessionID: 1, MessageID: 1, PartCount: 2, PartIndex: 0, MessageSize: 2, PartSize: 1, ChunkOffset: 0, Chunk: []byte("a")}
	if err := rq.Push(df1, now); err != nil {
		t.Fatalf("first incomplete message push: %v", err)
	}

	df2 := &frame.DataFrame{SessionID: 2, MessageID: 2, PartCount: 1, PartIndex: 0, MessageSize: 1, PartSize: 1, ChunkOffset: 0, Chunk: []byte("b")}
	if err := rq.Push(df2, now); err != nbmqerr.ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock at incoming HWM, got %v", err)
	}
}

func TestRecvQueueEvictsStuckIncompleteMessage(t *testing.T) {
	opt := option.Default().WithUncompletedMessageTTL(10 * time.Millisecond).WithQueueMaintIvl(time.Millisecond)
	rq := NewRecvQueue(opt)
	now := time.Now()

	df := &frame.DataFrame{SessionID: 1, MessageID: 1, PartCount: 2, PartIndex: 0, MessageSize: 2, PartSize: 1, ChunkOffset: 0, Chunk: []byte("a")}
	if err := rq.Push(df, now); err != nil {
		t.Fatalf("push: %v", err)
	}
	if rq.IncomingLen() != 1 {
		t.Fatalf("expected 1 incoming message")
	}

	later := now.Add(50 * time.Millisecond)
	rq.Pull(later)

	if rq.IncomingLen() != 0 {
		t.Fatalf("expected stuck incoming message to be evicted, still have %d", rq.IncomingLen())
	}
}

func TestSafeRecvQueueDedupsWithinTTL(t *testing.T) {
	opt := option.Default().WithSafeHashDedupTTL(20 * time.Millisecond)
	rq := NewSafeRecvQueue(opt)
	now := time.Now()

	pushParts(t, rq.RecvQueue, 1, [][]byte{[]byte("hi")}, 9, now)
	msg1, ok := rq.PullSafe(now)
	if !ok {
		t.Fatalf("expected first delivery")
	}

	// Redeliver the identical message (simulating a retransmitted frame).
	pushParts(t, rq.RecvQueue, 1, [][]byte{[]byte("hi")}, 9, now)
	if _, ok := rq.PullSafe(now); ok {
		t.Fatalf("expected duplicate delivery within dedup TTL to be suppressed")
	}

	// After the TTL lapses, the same key may be delivered again.
	later := now.Add(30 * time.Millisecond)
	pushParts(t, rq.RecvQueue, 1, [][]byte{[]byte("hi")}, 9, later)
	msg2, ok := rq.PullSafe(later)
	if !ok {
		t.Fatalf("expected redelivery to surface after dedup TTL expiry")
	}
	if msg1.Key != msg2.Key {
		t.Fatalf("expected same message key across redeliveries")
	}
}
