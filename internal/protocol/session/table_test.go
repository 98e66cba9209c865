package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	cv "github.com/glycerine/goconvey/convey"

	"github.com/danmuck/gforcelink/internal/protocol"
	"github.com/danmuck/gforcelink/internal/testutil/testlog"
)

var epoch = time.Unix(1700000000, 0)

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) done(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recorder) last() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[len(r.results)-1]
}

func TestTableRejectsDuplicateOpcode(t *testing.T) {
	testlog.Start(t)
	clock := NewManualClock(epoch)
	tbl := NewTable(clock, nil)
	var first, second recorder

	if _, err := tbl.Register(0x02, time.Second, first.done); err != nil {
		t.Fatalf("register first: %v", err)
	}
	before := tbl.Snapshot()

	clock.Advance(100 * time.Millisecond)
	_, err := tbl.Register(0x02, 5*time.Second, second.done)
	if !errors.Is(err, protocol.ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy, got %v", err)
	}
	after := tbl.Snapshot()
	if len(after) != 1 || !after[0].Deadline.Equal(before[0].Deadline) {
		t.Fatalf("busy register mutated table: before=%+v after=%+v", before, after)
	}
	if first.count() != 0 || second.count() != 0 {
		t.Fatalf("no completion expected yet: first=%d second=%d", first.count(), second.count())
	}
}

func TestTableRegisterValidatesArguments(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(NewManualClock(epoch), nil)
	if _, err := tbl.Register(0x01, time.Second, nil); !errors.Is(err, protocol.ErrBadParam) {
		t.Fatalf("nil completion: got %v", err)
	}
	if _, err := tbl.Register(0x01, 0, func(Result) {}); !errors.Is(err, protocol.ErrBadParam) {
		t.Fatalf("zero timeout: got %v", err)
	}
	if tbl.Len() != 0 {
		t.Fatalf("invalid register mutated table: len=%d", tbl.Len())
	}
}

func TestTableTimeoutFiresExactlyOnce(t *testing.T) {
	testlog.Start(t)
	clock := NewManualClock(epoch)
	tbl := NewTable(clock, nil)

	var calls int
	var presentAtCompletion bool
	_, err := tbl.Register(0x06, 1000*time.Millisecond, func(res Result) {
		calls++
		presentAtCompletion = tbl.Has(0x06)
		if res.Status != protocol.StatusTimeout || !errors.Is(res.Err, protocol.ErrTimeout) || res.Payload != nil {
			t.Errorf("unexpected timeout result: %+v", res)
		}
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	clock.Advance(999 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("fired early")
	}
	clock.Advance(time.Millisecond)
	if calls != 1 {
		t.Fatalf("expected one timeout completion, got %d", calls)
	}
	if presentAtCompletion {
		t.Fatalf("opcode still in table when completion ran")
	}
	clock.Advance(10 * time.Second)
	if calls != 1 {
		t.Fatalf("timeout fired again: %d", calls)
	}
	if tbl.Len() != 0 || len(clock.Armed()) != 0 {
		t.Fatalf("table not drained: len=%d armed=%v", tbl.Len(), clock.Armed())
	}
}

func TestTableResolveDeliversResponse(t *testing.T) {
	testlog.Start(t)
	clock := NewManualClock(epoch)
	var observed []Pending
	tbl := NewTable(clock, func(p Pending, r Result) { observed = append(observed, p) })
	var rec recorder

	if _, err := tbl.Register(0x06, time.Second, rec.done); err != nil {
		t.Fatalf("register: %v", err)
	}
	if tbl.Resolve(0x07, protocol.StatusSuccess, nil) {
		t.Fatalf("resolve of unknown opcode should report false")
	}
	if !tbl.Resolve(0x06, protocol.StatusSuccess, []byte{1, 2, 3}) {
		t.Fatalf("resolve should find opcode 0x06")
	}
	if rec.count() != 1 || !rec.last().OK() || string(rec.last().Payload) != "\x01\x02\x03" {
		t.Fatalf("unexpected delivery: %+v", rec.results)
	}
	if len(observed) != 1 || observed[0].Opcode != 0x06 {
		t.Fatalf("observer not called: %+v", observed)
	}
	if len(clock.Armed()) != 0 {
		t.Fatalf("timer left armed after last resolve: %v", clock.Armed())
	}
	clock.Advance(2 * time.Second)
	if rec.count() != 1 {
		t.Fatalf("resolved command timed out later")
	}
}

func TestTableCancelDoesNotComplete(t *testing.T) {
	testlog.Start(t)
	clock := NewManualClock(epoch)
	tbl := NewTable(clock, nil)
	var rec recorder
	tk, err := tbl.Register(0x24, time.Second, rec.done)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !tbl.Cancel(tk) {
		t.Fatalf("cancel should find opcode")
	}
	if tbl.Cancel(tk) {
		t.Fatalf("second cancel should report false")
	}
	clock.Advance(5 * time.Second)
	if rec.count() != 0 {
		t.Fatalf("cancelled command completed: %+v", rec.results)
	}
}

func TestTableAbortCompletesEverything(t *testing.T) {
	testlog.Start(t)
	clock := NewManualClock(epoch)
	tbl := NewTable(clock, nil)
	var rec recorder
	for op := byte(1); op <= 3; op++ {
		if _, err := tbl.Register(op, time.Duration(op)*time.Second, rec.done); err != nil {
			t.Fatalf("register 0x%02x: %v", op, err)
		}
	}
	n := tbl.Abort(protocol.StatusDisconnected, protocol.ErrDisconnected)
	if n != 3 || rec.count() != 3 {
		t.Fatalf("abort completed=%d delivered=%d", n, rec.count())
	}
	for _, res := range rec.results {
		if res.Status != protocol.StatusDisconnected || !errors.Is(res.Err, protocol.ErrDisconnected) {
			t.Fatalf("unexpected abort result: %+v", res)
		}
	}
	if len(clock.Armed()) != 0 || tbl.Len() != 0 {
		t.Fatalf("abort left state: armed=%v len=%d", clock.Armed(), tbl.Len())
	}
	clock.Advance(10 * time.Second)
	if rec.count() != 3 {
		t.Fatalf("aborted commands completed again")
	}
	if _, err := tbl.Register(0x04, time.Second, rec.done); !errors.Is(err, protocol.ErrBadState) {
		t.Fatalf("register after abort: got %v", err)
	}
	if tbl.Len() != 0 || len(clock.Armed()) != 0 {
		t.Fatalf("rejected register mutated table: len=%d armed=%v", tbl.Len(), clock.Armed())
	}
}

func TestTableSystemClockTimeout(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(SystemClock(), nil)
	timeout := 30 * time.Millisecond
	start := time.Now()
	fired := make(chan time.Duration, 2)
	if _, err := tbl.Register(0x06, timeout, func(res Result) {
		fired <- time.Since(start)
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	select {
	case elapsed := <-fired:
		if elapsed < timeout {
			t.Fatalf("timeout fired early: %v", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout never fired")
	}
	select {
	case <-fired:
		t.Fatalf("timeout fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTableScheduling(t *testing.T) {
	testlog.Start(t)

	cv.Convey("given three outstanding commands with deadlines t1 < t2 < t3", t, func() {
		clock := NewManualClock(epoch)
		tbl := NewTable(clock, nil)
		var order []byte
		var statuses []protocol.Status
		done := func(op byte) Completion {
			return func(res Result) {
				order = append(order, op)
				statuses = append(statuses, res.Status)
			}
		}
		timeouts := []struct {
			op byte
			d  time.Duration
		}{
			{0x30, 300 * time.Millisecond},
			{0x10, 100 * time.Millisecond},
			{0x20, 200 * time.Millisecond},
		}
		for _, tc := range timeouts {
			_, err := tbl.Register(tc.op, tc.d, done(tc.op))
			cv.So(err, cv.ShouldBeNil)
		}

		cv.Convey("exactly one timer is armed, for t1", func() {
			armed := clock.Armed()
			cv.So(len(armed), cv.ShouldEqual, 1)
			cv.So(armed[0].Equal(epoch.Add(100*time.Millisecond)), cv.ShouldBeTrue)
			next, ok := tbl.NextDeadline()
			cv.So(ok, cv.ShouldBeTrue)
			cv.So(next.Equal(epoch.Add(100*time.Millisecond)), cv.ShouldBeTrue)
		})

		cv.Convey("firing at t1 expires only the first and re-arms for t2", func() {
			clock.Advance(100 * time.Millisecond)
			cv.So(order, cv.ShouldResemble, []byte{0x10})
			cv.So(statuses[0], cv.ShouldEqual, protocol.StatusTimeout)
			armed := clock.Armed()
			cv.So(len(armed), cv.ShouldEqual, 1)
			cv.So(armed[0].Equal(epoch.Add(200*time.Millisecond)), cv.ShouldBeTrue)
		})

		cv.Convey("resolving the earliest re-arms for the next deadline", func() {
			cv.So(tbl.Resolve(0x10, protocol.StatusSuccess, nil), cv.ShouldBeTrue)
			cv.So(statuses, cv.ShouldResemble, []protocol.Status{protocol.StatusSuccess})
			armed := clock.Armed()
			cv.So(len(armed), cv.ShouldEqual, 1)
			cv.So(armed[0].Equal(epoch.Add(200*time.Millisecond)), cv.ShouldBeTrue)
		})

		cv.Convey("all three expire in deadline order", func() {
			clock.Advance(time.Second)
			cv.So(order, cv.ShouldResemble, []byte{0x10, 0x20, 0x30})
			cv.So(tbl.Len(), cv.ShouldEqual, 0)
			cv.So(len(clock.Armed()), cv.ShouldEqual, 0)
		})
	})
}

func TestTableCompletionMayRegisterAgain(t *testing.T) {
	testlog.Start(t)
	clock := NewManualClock(epoch)
	tbl := NewTable(clock, nil)
	var second recorder
	var reErr error
	_, err := tbl.Register(0x06, time.Second, func(res Result) {
		_, reErr = tbl.Register(0x06, time.Second, second.done)
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !tbl.Resolve(0x06, protocol.StatusSuccess, nil) {
		t.Fatalf("resolve failed")
	}
	if reErr != nil {
		t.Fatalf("re-register from completion: %v", reErr)
	}
	if !tbl.Has(0x06) {
		t.Fatalf("re-registered command missing")
	}
	clock.Advance(time.Second)
	if second.count() != 1 || second.last().Status != protocol.StatusTimeout {
		t.Fatalf("re-registered command did not time out: %+v", second.results)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{}.WithDefaults()
	def := DefaultConfig()
	if cfg.DefaultTimeout != def.DefaultTimeout || cfg.MaxReassemblyBytes != def.MaxReassemblyBytes {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	cfg = Config{DefaultTimeout: 250 * time.Millisecond}.WithDefaults()
	if cfg.DefaultTimeout != 250*time.Millisecond {
		t.Fatalf("explicit timeout overwritten: %v", cfg.DefaultTimeout)
	}
}
