package link_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/danmuck/gforcelink/internal/link"
	"github.com/danmuck/gforcelink/internal/protocol"
	"github.com/danmuck/gforcelink/internal/sim"
	"github.com/danmuck/gforcelink/internal/testutil/testlog"
)

func TestSingleByteCommandsReachDevice(t *testing.T) {
	testlog.Start(t)
	dev := sim.NewDevice(sim.DefaultConfig())
	l := link.New(dev, link.DefaultConfig())
	dev.Attach(l)
	defer dev.Close()
	defer l.Close()

	opcodes := []byte{0x00, 0x01, 0x06, 0x46}
	for _, op := range opcodes {
		op := op
		dev.Handle(op, func(body []byte) (protocol.Status, []byte) {
			if len(body) != 0 {
				return protocol.StatusBadParam, nil
			}
			return protocol.StatusSuccess, []byte{op, 0xA5}
		})
	}

	for _, op := range opcodes {
		res, err := l.Call(context.Background(), op, nil, time.Second)
		if err != nil {
			t.Fatalf("call 0x%02x: %v", op, err)
		}
		if !res.OK() || !bytes.Equal(res.Payload, []byte{op, 0xA5}) {
			t.Fatalf("call 0x%02x: unexpected result %+v", op, res)
		}
	}

	cmds := dev.Commands()
	if len(cmds) != len(opcodes) {
		t.Fatalf("device saw %d commands want %d", len(cmds), len(opcodes))
	}
	for i, op := range opcodes {
		if !bytes.Equal(cmds[i], []byte{op}) {
			t.Fatalf("command %d = % x want %02x", i, cmds[i], op)
		}
	}
}
