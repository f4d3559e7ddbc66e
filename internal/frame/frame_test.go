package frame

import (
	"bytes"
	"testing"
)

func TestDataFrameRoundTrip(t *testing.T) {
	chunk := []byte("hello")
	buf := EncodeDataFrame(7, 99, 3, 1, 100, 40, 12, chunk)

	df, ok := ParseDataFrame(buf)
	if !ok {
		t.Fatalf("expected frame to parse")
	}

	if df.SessionID != 7 || df.MessageID != 99 || df.PartCount != 3 || df.PartIndex != 1 {
		t.Fatalf("header fields mismatched: %+v", df)
	}
	if df.MessageSize != 100 || df.PartSize != 40 || df.ChunkOffset != 12 {
		t.Fatalf("size fields mismatched: %+v", df)
	}
	if df.ChunkSize != uint16(len(chunk)) || !bytes.Equal(df.Chunk, chunk) {
		t.Fatalf("chunk mismatched: %+v", df)
	}
}

func TestDataFrameTooShort(t *testing.T) {
	if _, ok := ParseDataFrame(make([]byte, DataHeaderSize-1)); ok {
		t.Fatalf("expected short buffer to fail to parse")
	}
}

func TestDataFrameWrongVersion(t *testing.T) {
	buf := EncodeDataFrame(1, 1, 1, 0, 1, 1, 0, []byte("x"))
	buf[0] = 9
	if _, ok := ParseDataFrame(buf); ok {
		t.Fatalf("expected wrong-version buffer to fail to parse")
	}
}

func TestDataFrameHashStable(t *testing.T) {
	df, ok := ParseDataFrame(EncodeDataFrame(1, 2, 1, 0, 5, 5, 0, []byte("hello")))
	if !ok {
		t.Fatalf("expected frame to parse")
	}
	h1 := df.Hash()
	h2 := df.Hash()
	if h1 != h2 {
		t.Fatalf("hash not stable across calls")
	}

	other, _ := ParseDataFrame(EncodeDataFrame(1, 2, 1, 0, 5, 5, 0, []byte("worlD")))
	if other.Hash() == h1 {
		t.Fatalf("distinct frames hashed identically")
	}
}

func TestControlFrameRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		buf  []byte
		kind uint8
	}{
		{"connect", EncodeConnect(), KindConnect},
		{"connected", EncodeConnected(42), KindConnected},
		{"disconnected", EncodeDisconnected(42), KindDisconnected},
		{"heartbeat", EncodeHeartbeat(42), KindHeartbeat},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cf, ok := ParseControlFrame(tc.buf)
			if !ok {
				t.Fatalf("expected frame to parse")
			}
			if cf.Kind != tc.kind {
				t.Fatalf("kind = %d, want %d", cf.Kind, tc.kind)
			}
		})
	}
}

func TestAckRoundTrip(t *testing.T) {
	buf := EncodeAck(5, 0xdeadbeefcafebabe)
	cf, ok := ParseControlFrame(buf)
	if !ok {
		t.Fatalf("expected ack to parse")
	}
	if cf.Kind != KindAck {
		t.Fatalf("expected ack kind")
	}
	if cf.AckHash() != 0xdeadbeefcafebabe {
		t.Fatalf("ack hash mismatch: %x", cf.AckHash())
	}
	if cf.SessionID != 5 {
		t.Fatalf("session id mismatch")
	}
}

func TestControlFrameUnknownKindRejected(t *testing.T) {
	buf := EncodeConnect()
	buf[1] = 9
	if _, ok := ParseControlFrame(buf); ok {
		t.Fatalf("expected unknown kind to fail to parse")
	}
	if _, ok := Parse(buf); ok {
		t.Fatalf("expected unknown kind to fail union parse")
	}
}

func TestParseDispatchesOnKind(t *testing.T) {
	p, ok := Parse(EncodeDataFrame(1, 1, 1, 0, 3, 3, 0, []byte("abc")))
	if !ok || p.Data == nil || p.Control != nil {
		t.Fatalf("expected data frame dispatch, got %+v ok=%v", p, ok)
	}

	p, ok = Parse(EncodeHeartbeat(3))
	if !ok || p.Control == nil || p.Data != nil {
		t.Fatalf("expected control frame dispatch, got %+v ok=%v", p, ok)
	}
}

func TestParseTooShort(t *testing.T) {
	if _, ok := Parse([]byte{1}); ok {
		t.Fatalf("expected 1-byte buffer to fail to parse")
	}
}
