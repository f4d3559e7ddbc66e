// Package frame implements the nbmq wire format: a fixed, byte-exact
// encoding for data frames and control frames over a datagram transport.
//
// Encoding is big-endian throughout. Parsing never returns an error for
// malformed input: a short buffer or unrecognised version simply yields
// (nil, false), letting a receiver silently ignore foreign traffic the way
// spec section 7 requires.
package frame

import (
	"encoding/binary"

	"github.com/naatebarber/nbmq/internal/hashrand"
)

// Kind values. 0 is data; 1..5 are control.
const (
	KindData         uint8 = 0
	KindConnect      uint8 = 1
	KindConnected    uint8 = 2
	KindDisconnected uint8 = 3
	KindHeartbeat    uint8 = 4
	KindAck          uint8 = 5
)

const (
	// Version is the only wire version this codec understands.
	Version uint8 = 1

	// DataHeaderSize is the byte length of a DataFrame header, before the
	// chunk payload.
	DataHeaderSize = 34

	// ControlHeaderSize is the byte length of a ControlFrame header, before
	// its (usually empty) payload.
	ControlHeaderSize = 10

	// MaxFrameSize bounds any single datagram nbmq emits or accepts.
	MaxFrameSize = 500

	// MaxDataSize is the largest chunk a single data frame can carry.
	MaxDataSize = MaxFrameSize - DataHeaderSize
)

// DataFrame is one chunk of one part of one multipart message.
type DataFrame struct {
	Version      uint8
	Kind         uint8
	SessionID    uint64
	MessageID    uint64
	PartCount    uint8
	PartIndex    uint8
	MessageSize  uint32
	PartSize     uint32
	ChunkSize    uint16
	ChunkOffset  uint32
	Chunk        []byte
}

// EncodeDataFrame serialises a data frame to the wire format described in
// spec section 6. The kind byte is always KindData.
func EncodeDataFrame(sessionID, messageID uint64, partCount, partIndex uint8, messageSize, partSize uint32, chunkOffset uint32, chunk []byte) []byte {
	buf := make([]byte, DataHeaderSize+len(chunk))

	buf[0] = Version
	buf[1] = KindData
	binary.BigEndian.PutUint64(buf[2:10], sessionID)
	binary.BigEndian.PutUint64(buf[10:18], messageID)
	buf[18] = partCount
	buf[19] = partIndex
	binary.BigEndian.PutUint32(buf[20:24], messageSize)
	binary.BigEndian.PutUint32(buf[24:28], partSize)
	binary.BigEndian.PutUint16(buf[28:30], uint16(len(chunk)))
	binary.BigEndian.PutUint32(buf[30:34], chunkOffset)
	copy(buf[34:], chunk)

	return buf
}

// ParseDataFrame decodes a data frame. It returns (nil, false) if buf is too
// short or carries an unrecognised version byte — never an error.
func ParseDataFrame(buf []byte) (*DataFrame, bool) {
	if len(buf) < DataHeaderSize {
		return nil, false
	}
	if buf[0] != Version {
		return nil, false
	}

	chunk := make([]byte, len(buf)-DataHeaderSize)
	copy(chunk, buf[DataHeaderSize:])

	return &DataFrame{
		Version:     buf[0],
		Kind:        buf[1],
		SessionID:   binary.BigEndian.Uint64(buf[2:10]),
		MessageID:   binary.BigEndian.Uint64(buf[10:18]),
		PartCount:   buf[18],
		PartIndex:   buf[19],
		MessageSize: binary.BigEndian.Uint32(buf[20:24]),
		PartSize:    binary.BigEndian.Uint32(buf[24:28]),
		ChunkSize:   binary.BigEndian.Uint16(buf[28:30]),
		ChunkOffset: binary.BigEndian.Uint32(buf[30:34]),
		Chunk:       chunk,
	}, true
}

// Encode re-serialises the frame to its exact wire bytes. Used by retransmit
// bookkeeping, which needs the encoded form it originally sent.
func (f *DataFrame) Encode() []byte {
	return EncodeDataFrame(f.SessionID, f.MessageID, f.PartCount, f.PartIndex, f.MessageSize, f.PartSize, f.ChunkOffset, f.Chunk)
}

// Hash returns the FNV-1a-64 hash of the frame's exact wire encoding. Safe
// send/receive uses this as the frame identity for Ack and retransmission.
func (f *DataFrame) Hash() uint64 {
	return hashrand.HashAll(f.Encode())
}

// ControlFrame is a handshake/liveness/ack control message.
type ControlFrame struct {
	Kind      uint8
	SessionID uint64
	// Payload carries the 8-byte frame hash for Ack; empty otherwise.
	Payload []byte
}

func encodeControl(kind uint8, sessionID uint64, payload []byte) []byte {
	buf := make([]byte, ControlHeaderSize+len(payload))
	buf[0] = Version
	buf[1] = kind
	binary.BigEndian.PutUint64(buf[2:10], sessionID)
	copy(buf[10:], payload)
	return buf
}

// EncodeConnect builds a Connect control frame. session_id is always 0.
func EncodeConnect() []byte {
	return encodeControl(KindConnect, 0, nil)
}

// EncodeConnected builds a Connected control frame carrying the
// server-assigned session id.
func EncodeConnected(sessionID uint64) []byte {
	return encodeControl(KindConnected, sessionID, nil)
}

// EncodeDisconnected builds a Disconnected control frame for sessionID.
func EncodeDisconnected(sessionID uint64) []byte {
	return encodeControl(KindDisconnected, sessionID, nil)
}

// EncodeHeartbeat builds a Heartbeat control frame for sessionID.
func EncodeHeartbeat(sessionID uint64) []byte {
	return encodeControl(KindHeartbeat, sessionID, nil)
}

// EncodeAck builds an Ack control frame carrying the 8-byte hash of the data
// frame being acknowledged.
func EncodeAck(sessionID uint64, frameHash uint64) []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, frameHash)
	return encodeControl(KindAck, sessionID, payload)
}

// AckHash extracts the acknowledged frame hash from an Ack control frame's
// payload. The caller must already know Kind == KindAck.
func (c *ControlFrame) AckHash() uint64 {
	if len(c.Payload) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(c.Payload[:8])
}

// ParseControlFrame decodes a control frame. It returns (nil, false) if buf
// is too short, carries an unrecognised version, or an out-of-range kind
// byte (anything outside 1..5).
func ParseControlFrame(buf []byte) (*ControlFrame, bool) {
	if len(buf) < ControlHeaderSize {
		return nil, false
	}
	if buf[0] != Version {
		return nil, false
	}

	kind := buf[1]
	if kind < KindConnect || kind > KindAck {
		return nil, false
	}

	payload := make([]byte, len(buf)-ControlHeaderSize)
	copy(payload, buf[ControlHeaderSize:])

	return &ControlFrame{
		Kind:      kind,
		SessionID: binary.BigEndian.Uint64(buf[2:10]),
		Payload:   payload,
	}, true
}

// Parsed is the result of dispatching on a frame's kind byte: exactly one of
// Data or Control is non-nil.
type Parsed struct {
	Data    *DataFrame
	Control *ControlFrame
}

// Parse dispatches on the kind byte (offset 1) and decodes into either a
// DataFrame or a ControlFrame. It returns (nil, false) for anything too
// short, version-mismatched, or carrying a kind byte outside 0..5 — the
// union of every reason an individual frame gets silently dropped.
func Parse(buf []byte) (*Parsed, bool) {
	if len(buf) < 2 {
		return nil, false
	}
	if buf[0] != Version {
		return nil, false
	}

	switch kind := buf[1]; {
	case kind == KindData:
		df, ok := ParseDataFrame(buf)
		if !ok {
			return nil, false
		}
		return &Parsed{Data: df}, true
	case kind >= KindConnect && kind <= KindAck:
		cf, ok := ParseControlFrame(buf)
		if !ok {
			return nil, false
		}
		return &Parsed{Control: cf}, true
	default:
		return nil, false
	}
}
