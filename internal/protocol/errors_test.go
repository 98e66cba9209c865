package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/gforcelink/internal/testutil/testlog"
)

func TestRetCodeOf(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		err  error
		want RetCode
	}{
		{nil, RetSuccess},
		{ErrBadParam, RetBadParam},
		{fmt.Errorf("%w: empty message", ErrBadParam), RetBadParam},
		{ErrBadState, RetBadState},
		{ErrDisconnected, RetBadState},
		{fmt.Errorf("wrapped: %w", ErrDeviceBusy), RetDeviceBusy},
		{ErrTimeout, RetTimeout},
		{ErrTransport, RetError},
		{errors.New("other"), RetError},
	}
	for _, c := range cases {
		if got := RetCodeOf(c.err); got != c.want {
			t.Fatalf("RetCodeOf(%v)=%s want %s", c.err, got, c.want)
		}
	}
	if RetDeviceBusy == RetTimeout {
		t.Fatalf("busy and timeout share a code")
	}
}

func TestEnumNames(t *testing.T) {
	testlog.Start(t)
	if StatusDisconnected.String() == StatusTimeout.String() {
		t.Fatalf("status names collide")
	}
	if ChannelCommand.String() == ChannelNotify.String() {
		t.Fatalf("channel names collide")
	}
}
