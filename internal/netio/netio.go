// Package netio is the injected non-blocking datagram transport nbmq's core
// is layered on. It wraps *net.UDPConn with the poll-style non-blocking
// read Go's net package doesn't offer directly: each Recv call sets an
// immediate read deadline, so a datagram that isn't already queued surfaces
// as a timeout rather than a blocking wait.
package netio

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/naatebarber/nbmq/nbmqerr"
)

// Conn is a non-blocking UDP endpoint, usable either bound (accepts
// datagrams from any address) or connected (datagrams only ever flow
// to/from one remote address).
type Conn struct {
	udp *net.UDPConn
}

// Bind opens a UDP socket listening on addr, accepting datagrams from any
// source.
func Bind(addr string) (*Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(nbmqerr.ErrBindFailed, "resolve %s: %v", addr, err)
	}

	udp, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrapf(nbmqerr.ErrBindFailed, "listen %s: %v", addr, err)
	}

	tuneSocket(udp)

	return &Conn{udp: udp}, nil
}

// Connect opens a UDP socket on an ephemeral local port with addr set as
// its only peer: subsequent Recv calls only ever see datagrams from addr,
// and Send writes directly to it.
func Connect(addr string) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(nbmqerr.ErrConnectFailed, "resolve %s: %v", addr, err)
	}

	udp, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrapf(nbmqerr.ErrConnectFailed, "dial %s: %v", addr, err)
	}

	tuneSocket(udp)

	return &Conn{udp: udp}, nil
}

// LocalAddr returns the socket's local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.udp.LocalAddr()
}

// Recv reads one datagram without blocking. If none is queued it returns
// nbmqerr.ErrWouldBlock. The datagram is written into buf, and the
// returned count is how many bytes of buf it occupies.
func (c *Conn) Recv(buf []byte) (int, net.Addr, error) {
	if err := c.udp.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, errors.Wrap(nbmqerr.ErrRecvFailed, err.Error())
	}

	n, addr, err := c.udp.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, nbmqerr.ErrWouldBlock
		}
		return 0, nil, errors.Wrap(nbmqerr.ErrRecvFailed, err.Error())
	}

	return n, addr, nil
}

// Send writes to the connected peer. Only valid on a Connect()-mode Conn.
func (c *Conn) Send(data []byte) error {
	if _, err := c.udp.Write(data); err != nil {
		return errors.Wrap(nbmqerr.ErrSendFailed, err.Error())
	}
	return nil
}

// SendTo writes to an explicit address. Used in Bind mode, and for
// handshake traffic before a peer is registered.
func (c *Conn) SendTo(data []byte, addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return errors.Wrap(nbmqerr.ErrSendFailed, err.Error())
		}
		udpAddr = resolved
	}

	if _, err := c.udp.WriteToUDP(data, udpAddr); err != nil {
		return errors.Wrap(nbmqerr.ErrSendFailed, err.Error())
	}
	return nil
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return c.udp.Close()
}
