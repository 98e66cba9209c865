package session

import (
	"time"

	"github.com/danmuck/gforcelink/internal/protocol"
)

// MinTimerDelay bounds how soon the scheduler timer may be armed.
const MinTimerDelay = time.Millisecond

func timeoutResult() Result {
	return Result{Status: protocol.StatusTimeout, Err: protocol.ErrTimeout}
}

// rearmLocked cancels the armed timer, expires every entry whose deadline
// has passed, and arms one timer for the earliest remaining deadline. The
// expired entries are returned for delivery after the lock is released.
// Must be called with t.mu held.
func (t *Table) rearmLocked() []delivery {
	t.stopTimerLocked()

	var out []delivery
	now := t.clock.Now()
	for t.deadlines.Len() > 0 {
		it := t.deadlines.Min()
		p := it.Item().(*Pending)
		if p.Deadline.After(now) {
			t.armLocked(p, p.Deadline.Sub(now))
			break
		}
		t.deadlines.DeleteWithIterator(it)
		delete(t.byOpcode, p.Opcode)
		out = append(out, delivery{p: *p, r: timeoutResult()})
	}
	return out
}

func (t *Table) armLocked(p *Pending, d time.Duration) {
	if d < MinTimerDelay {
		d = MinTimerDelay
	}
	gen := t.gen
	t.armed = p
	t.timer = t.clock.AfterFunc(d, func() {
		t.onTimer(gen)
	})
}

func (t *Table) stopTimerLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = nil
	t.armed = nil
}

// onTimer expires the entry the timer was armed for, then re-evaluates the
// rest of the table. A timer superseded by a later mutation does nothing.
func (t *Table) onTimer(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	var out []delivery
	if p := t.armed; p != nil {
		t.removeLocked(p)
		out = append(out, delivery{p: *p, r: timeoutResult()})
	}
	out = append(out, t.rearmLocked()...)
	t.mu.Unlock()

	t.deliver(out)
}
