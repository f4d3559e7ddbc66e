package pattern

import (
	"bytes"
	"testing"

	"github.com/naatebarber/nbmq/core"
	"github.com/naatebarber/nbmq/nbmqerr"
	"github.com/naatebarber/nbmq/option"
)

func TestRadioBroadcastToThreeDishes(t *testing.T) {
	opt := option.Default()

	radioCore, err := core.Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer radioCore.Close()
	radio := NewRadio(radioCore, opt)

	var dishes []*Dish
	tickers := []func() error{radio.Tick}
	for i := 0; i < 3; i++ {
		dc, err := core.Connect(radioCore.LocalAddr().String(), opt, nil)
		if err != nil {
			t.Fatalf("connect dish %d: %v", i, err)
		}
		defer dc.Close()
		handshake(t, radioCore, dc)

		dish := NewDish(dc, opt)
		dishes = append(dishes, dish)
		tickers = append(tickers, dish.Tick)
	}

	if err := radio.Send([][]byte{[]byte("broadcast")}); err != nil {
		t.Fatalf("radio send: %v", err)
	}

	counts := make([]int, len(dishes))
	tickUntil(t, func() bool {
		for i, d := range dishes {
			for {
				parts, err := d.Recv()
				if err == nbmqerr.ErrWouldBlock {
					break
				}
				if len(parts) != 1 || !bytes.Equal(parts[0], []byte("broadcast")) {
					t.Fatalf("dish %d got unexpected payload %v", i, parts)
				}
				counts[i]++
			}
		}
		for _, c := range counts {
			if c != 1 {
				return false
			}
		}
		return true
	}, tickers...)
}

func TestDishSendUnsupported(t *testing.T) {
	opt := option.Default()
	c, err := core.Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer c.Close()

	d := NewDish(c, opt)
	if err := d.Send([][]byte{[]byte("x")}); err != nbmqerr.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestRadioRecvUnsupported(t *testing.T) {
	opt := option.Default()
	c, err := core.Bind("127.0.0.1:0", opt, nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer c.Close()

	r := NewRadio(c, opt)
	if _, err := r.Recv(); err != nbmqerr.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}
