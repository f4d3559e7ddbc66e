package core

import (
	"testing"
	"time"

	"github.com/naatebarber/nbmq/internal/frame"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

func drainOnce(t *testing.T, c *Core) (*frame.DataFrame, *frame.ControlFrame) {
	t.Helper()
	for i := 0; i < 200; i++ {
		df, cf, err := c.Recv()
		if err == nbmqerr.ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		return df, cf
	}
	return nil, nil
}

func drainUntilQuiet(c *Core) {
	for {
		_, _, err := c.Recv()
		if err == nbmqerr.ErrWouldBlock {
			return
		}
	}
}

func TestHandshakeRegistersBothSides(t *testing.T) {
	opt := option.Default()

	server, err := Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer server.Close()

	client, err := Connect(server.conn.LocalAddr().String(), opt, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	// server sees Connect -> replies Connected
	drainOnce(t, server)
	// client sees Connected -> replies Heartbeat, sets session
	drainOnce(t, client)
	// server sees the Heartbeat
	drainOnce(t, server)

	if server.Peers() != 1 {
		t.Fatalf("server.Peers() = %d, want 1", server.Peers())
	}
	if client.SessionID() == 0 {
		t.Fatalf("client never completed handshake")
	}
}

func TestKeepaliveEviction(t *testing.T) {
	opt := option.Default().WithPeerKeepalive(30 * time.Millisecond).WithPeerHeartbeatIvl(5 * time.Millisecond)

	server, err := Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer server.Close()

	client, err := Connect(server.conn.LocalAddr().String(), opt, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	drainOnce(t, server)
	drainOnce(t, client)
	drainOnce(t, server)

	if server.Peers() != 1 {
		t.Fatalf("expected peer registered before eviction test")
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && server.Peers() > 0 {
		drainUntilQuiet(server)
		server.Maint(time.Now())
		time.Sleep(5 * time.Millisecond)
	}

	if server.Peers() != 0 {
		t.Fatalf("expected silent peer to be evicted, still have %d", server.Peers())
	}
}

func TestHeartbeatingPeerNeverEvicted(t *testing.T) {
	opt := option.Default().WithPeerKeepalive(40 * time.Millisecond).WithPeerHeartbeatIvl(5 * time.Millisecond)

	server, err := Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer server.Close()

	client, err := Connect(server.conn.LocalAddr().String(), opt, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	drainOnce(t, server)
	drainOnce(t, client)
	drainOnce(t, server)

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		now := time.Now()
		client.Maint(now)
		drainUntilQuiet(server)
		server.Maint(now)
		drainUntilQuiet(client)
		time.Sleep(5 * time.Millisecond)
	}

	if server.Peers() != 1 {
		t.Fatalf("heartbeating peer was evicted")
	}
}

func TestReconnect(t *testing.T) {
	opt := option.Default().WithReconnectWait(5 * time.Millisecond)

	// Connect to an address nothing is bound to yet.
	probe, err := Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind probe: %v", err)
	}
	addr := probe.conn.LocalAddr().String()
	probe.Close()

	client, err := Connect(addr, opt, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	time.Sleep(20 * time.Millisecond)

	server, err := Bind(addr, opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer server.Close()

	deadline := time.Now().Add(80 * time.Millisecond)
	for time.Now().Before(deadline) {
		now := time.Now()
		client.Maint(now)
		drainUntilQuiet(server)
		drainUntilQuiet(client)
		if server.Peers() == 1 && client.SessionID() != 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	if server.Peers() != 1 {
		t.Fatalf("server never registered reconnecting client")
	}
	if client.SessionID() == 0 {
		t.Fatalf("client never completed handshake on reconnect")
	}
}
