// Package core implements the Core transport: the non-blocking UDP
// endpoint, peer table, socket mode, and handshake/heartbeat/reconnect
// state machine nbmq's socket patterns are scheduled on top of.
package core

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/internal/hashrand"
	"github.com/naatebarber/nbmq/internal/netio"
	"github.com/naatebarber/nbmq/internal/peer"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

// Mode distinguishes a server socket (accepts any peer) from a client
// socket (tracks a single intended peer and reconnects to it).
type Mode int

const (
	ModeBind Mode = iota
	ModeConnect
)

// Core owns the datagram endpoint, the peer table, and the handshake state
// machine. It is single-threaded: every method must be called from the one
// goroutine that owns the enclosing socket.
type Core struct {
	conn   *netio.Conn
	opt    option.Opt
	logger logrus.FieldLogger

	mode  Mode
	peers *peer.Table

	// Connect-mode only.
	peerAddr         net.Addr
	currentSessionID uint64
	lastReconnect    time.Time

	recvBuf []byte
}

// Bind opens a server-mode Core: any peer may Connect to it.
func Bind(addr string, opt option.Opt, logger logrus.FieldLogger) (*Core, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := netio.Bind(addr)
	if err != nil {
		return nil, err
	}

	return &Core{
		conn:    conn,
		opt:     opt,
		logger:  logger,
		mode:    ModeBind,
		peers:   peer.NewTable(),
		recvBuf: make([]byte, frame.MaxFrameSize),
	}, nil
}

// Connect opens a client-mode Core pointed at addr, immediately sending a
// Connect handshake frame and arming the reconnect clock.
func Connect(addr string, opt option.Opt, logger logrus.FieldLogger) (*Core, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := netio.Connect(addr)
	if err != nil {
		return nil, err
	}

	peerAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(nbmqerr.ErrConnectFailed, err.Error())
	}

	c := &Core{
		conn:             conn,
		opt:              opt,
		logger:           logger,
		mode:             ModeConnect,
		peers:            peer.NewTable(),
		peerAddr:         peerAddr,
		currentSessionID: 0,
		lastReconnect:    time.Now(),
		recvBuf:          make([]byte, frame.MaxFrameSize),
	}

	if err := c.conn.Send(frame.EncodeConnect()); err != nil {
		return nil, err
	}

	return c, nil
}

// Mode reports whether this Core is a bind server or a connect client.
func (c *Core) Mode() Mode {
	return c.mode
}

// SessionID returns the current session id for a Connect-mode Core, or 0 if
// the handshake hasn't completed yet. Always 0 for a Bind-mode Core.
func (c *Core) SessionID() uint64 {
	return c.currentSessionID
}

// Peers reports the number of currently known peers.
func (c *Core) Peers() int {
	return c.peers.Len()
}

// PeerIDs returns the session ids of every currently known peer. Order is
// unspecified.
func (c *Core) PeerIDs() []uint64 {
	all := c.peers.All()
	ids := make([]uint64, len(all))
	for i, p := range all {
		ids[i] = p.SessionID
	}
	return ids
}

// UpdatePeers returns the current peer set exactly once per mutation epoch:
// it is non-nil only the first time it's called after the peer set last
// changed.
func (c *Core) UpdatePeers() ([]uint64, bool) {
	if !c.peers.Drain() {
		return nil, false
	}
	return c.PeerIDs(), true
}

// Close releases the underlying socket.
func (c *Core) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the underlying socket's local address.
func (c *Core) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// transmit routes a raw payload the way the spec's design notes describe:
// Connect mode always writes to the one dialed peer; Bind mode writes to an
// explicit address.
func (c *Core) transmit(data []byte, addr net.Addr) error {
	if c.mode == ModeConnect {
		return c.conn.Send(data)
	}
	return c.conn.SendTo(data, addr)
}

// SendDirect sends a raw payload to addr, bypassing the peer table. Used
// for handshake replies to peers not yet (or no longer) registered.
func (c *Core) SendDirect(data []byte, addr net.Addr) error {
	return c.transmit(data, addr)
}

// SendPeer unicasts data to a known peer by session id.
func (c *Core) SendPeer(data []byte, sessionID uint64) error {
	p, ok := c.peers.Get(sessionID)
	if !ok {
		return nbmqerr.ErrUnknownPeer
	}

	now := time.Now()
	if err := c.transmit(data, p.Addr); err != nil {
		return err
	}
	c.peers.TouchSent(sessionID, now)
	return nil
}

// SendAll broadcasts data to every known peer. A per-peer send failure is
// recorded but does not stop the broadcast to the remaining peers.
func (c *Core) SendAll(data []byte) error {
	now := time.Now()
	var firstErr error

	for _, p := range c.peers.All() {
		if err := c.transmit(data, p.Addr); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.peers.TouchSent(p.SessionID, now)
	}

	return firstErr
}

// Recv reads and dispatches one datagram. On success at most one of the two
// frame results is non-nil: a DataFrame to hand to a recv queue, or a
// ControlFrame already acted on internally but surfaced for patterns that
// care (Ack, notably). A (nil, nil, nil) result means a frame was read and
// silently dropped (corrupt, foreign version, unknown peer) — callers
// should loop. nbmqerr.ErrWouldBlock means no datagram was queued.
func (c *Core) Recv() (*frame.DataFrame, *frame.ControlFrame, error) {
	n, addr, err := c.conn.Recv(c.recvBuf)
	if err != nil {
		if errors.Is(err, nbmqerr.ErrWouldBlock) {
			return nil, nil, nbmqerr.ErrWouldBlock
		}
		return nil, nil, err
	}

	buf := make([]byte, n)
	copy(buf, c.recvBuf[:n])

	parsed, ok := frame.Parse(buf)
	if !ok {
		c.logger.WithField("addr", addr).Debug("nbmq: dropped malformed or foreign-version frame")
		return nil, nil, nil
	}

	if parsed.Data != nil {
		return c.handleData(parsed.Data, addr)
	}
	return c.handleControl(parsed.Control, addr)
}

func (c *Core) handleData(df *frame.DataFrame, addr net.Addr) (*frame.DataFrame, *frame.ControlFrame, error) {
	p, ok := c.peers.Get(df.SessionID)
	if !ok {
		c.logger.WithField("session_id", df.SessionID).Debug("nbmq: dropped data frame for unknown peer")
		return nil, nil, nil
	}

	c.peers.Rebind(df.SessionID, addr)
	now := time.Now()
	c.peers.Touch(df.SessionID, now)

	if now.Sub(p.LastSent) > c.opt.PeerHeartbeatIvl {
		if err := c.transmit(frame.EncodeHeartbeat(df.SessionID), addr); err == nil {
			c.peers.TouchSent(df.SessionID, now)
		}
	}

	return df, nil, nil
}

func (c *Core) handleControl(cf *frame.ControlFrame, addr net.Addr) (*frame.DataFrame, *frame.ControlFrame, error) {
	switch cf.Kind {
	case frame.KindConnect:
		c.reactToConnect(addr)
	case frame.KindConnected:
		c.reactToConnected(cf.SessionID, addr)
	case frame.KindDisconnected:
		c.reactToDisconnected(cf.SessionID)
	case frame.KindHeartbeat:
		c.reactToHeartbeat(cf.SessionID, addr)
	case frame.KindAck:
		if _, ok := c.peers.Get(cf.SessionID); ok {
			c.peers.Rebind(cf.SessionID, addr)
			c.peers.Touch(cf.SessionID, time.Now())
		}
	}

	return nil, cf, nil
}

func (c *Core) reactToConnect(addr net.Addr) {
	if c.mode != ModeBind {
		return
	}

	sessionID := newSessionID(addr)
	c.peers.Put(sessionID, addr)

	if err := c.transmit(frame.EncodeConnected(sessionID), addr); err != nil {
		c.logger.WithError(err).Warn("nbmq: failed to reply Connected")
	}
}

func (c *Core) reactToConnected(sessionID uint64, addr net.Addr) {
	if c.mode != ModeConnect {
		return
	}

	c.currentSessionID = sessionID
	c.peers.Put(sessionID, addr)

	if err := c.transmit(frame.EncodeHeartbeat(sessionID), addr); err != nil {
		c.logger.WithError(err).Warn("nbmq: failed to reply Heartbeat after Connected")
	}
}

func (c *Core) reactToDisconnected(sessionID uint64) {
	c.peers.Remove(sessionID)

	if c.mode == ModeConnect && sessionID == c.currentSessionID {
		c.currentSessionID = 0
		c.lastReconnect = time.Now()
	}
}

func (c *Core) reactToHeartbeat(sessionID uint64, addr net.Addr) {
	if _, ok := c.peers.Get(sessionID); ok {
		c.peers.Rebind(sessionID, addr)
		c.peers.Touch(sessionID, time.Now())
		return
	}

	if err := c.transmit(frame.EncodeDisconnected(sessionID), addr); err != nil {
		c.logger.WithError(err).Debug("nbmq: failed to reply Disconnected to unknown heartbeat")
	}
}

// Maint runs per-tick housekeeping: heartbeat peers gone quiet on our end,
// evict peers that have gone quiet on theirs, and in Connect mode retry the
// handshake if it's been lost.
func (c *Core) Maint(now time.Time) {
	for _, p := range c.peers.All() {
		if now.Sub(p.LastSent) > c.opt.PeerHeartbeatIvl {
			if err := c.transmit(frame.EncodeHeartbeat(p.SessionID), p.Addr); err == nil {
				c.peers.TouchSent(p.SessionID, now)
			}
		}
	}

	for _, sid := range c.peers.EvictStale(now, c.opt.PeerKeepalive) {
		c.logger.WithField("session_id", sid).Warn("nbmq: evicted peer after keepalive timeout")
	}

	if c.mode == ModeConnect && c.currentSessionID == 0 {
		if now.Sub(c.lastReconnect) > c.opt.ReconnectWait {
			if err := c.transmit(frame.EncodeConnect(), c.peerAddr); err != nil {
				c.logger.WithError(err).Debug("nbmq: reconnect Connect send failed")
			}
			c.lastReconnect = now
		}
	}
}

// newSessionID allocates a fresh server-side session id: FNV-1a-64 of the
// current timestamp concatenated with the peer's address, per spec section
// 4.2.
func newSessionID(addr net.Addr) uint64 {
	ts := make([]byte, 8)
	now := uint64(time.Now().UnixNano())
	for i := 0; i < 8; i++ {
		ts[i] = byte(now >> (8 * (7 - i)))
	}
	return hashrand.HashAll(ts, []byte(addr.String()))
}
