package pattern

import (
	"bytes"
	"testing"
	"time"

	"github.com/naatebarber/nbmq/core"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

func TestSafeDealerRoundTripAndDedup(t *testing.T) {
	opt := option.Default().WithSafeResendIvl(5 * time.Millisecond)

	serverCore, err := core.Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer serverCore.Close()

	clientCore, err := core.Connect(serverCore.LocalAddr().String(), opt, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer clientCore.Close()
	handshake(t, serverCore, clientCore)

	server := NewSafeDealer(serverCore, opt)
	client := NewSafeDealer(clientCore, opt)

	if err := client.Send([][]byte{[]byte("safe hello")}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var received [][][]byte
	tickUntil(t, func() bool {
		for {
			parts, err := server.Recv()
			if err == nbmqerr.ErrWouldBlock {
				break
			}
			received = append(received, parts)
		}
		return len(received) >= 1
	}, client.Tick, server.Tick)

	// Keep ticking a while longer: any retransmissions that still arrive
	// before the sender's Ack-triggered ConfirmSafe takes effect must be
	// deduplicated at the message level.
	settleDeadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(settleDeadline) {
		client.Tick()
		server.Tick()
		for {
			parts, err := server.Recv()
			if err == nbmqerr.ErrWouldBlock {
				break
			}
			received = append(received, parts)
		}
		time.Sleep(time.Millisecond)
	}

	if len(received) != 1 {
		t.Fatalf("expected exactly one delivered message despite retransmission, got %d", len(received))
	}
	if !bytes.Equal(received[0][0], []byte("safe hello")) {
		t.Fatalf("unexpected payload: %q", received[0][0])
	}
}

func TestSafeDealerResendBeforePeerBinds(t *testing.T) {
	opt := option.Default().WithSafeResendIvl(10 * time.Millisecond).WithSafeResendLimit(30).WithReconnectWait(10 * time.Millisecond)

	probe, err := core.Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind probe: %v", err)
	}
	addr := probe.LocalAddr().String()
	probe.Close()

	clientCore, err := core.Connect(addr, opt, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer clientCore.Close()
	client := NewSafeDealer(clientCore, opt)

	// Nothing is listening on addr yet, so the client has no peer: these
	// sends must buffer rather than fail, and flush once a real peer
	// appears.
	for i := 0; i < 10; i++ {
		if err := client.Send([][]byte{[]byte("queued")}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	serverCore, err := core.Bind(addr, opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer serverCore.Close()
	server := NewSafeDealer(serverCore, opt)

	var received int
	tickUntil(t, func() bool {
		for {
			_, err := server.Recv()
			if err == nbmqerr.ErrWouldBlock {
				break
			}
			received++
		}
		return received == 10
	}, client.Tick, server.Tick)
}
