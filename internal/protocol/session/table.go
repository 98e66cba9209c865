package session

import (
	"fmt"
	"sync"
	"time"

	rb "github.com/glycerine/rbtree"

	"github.com/danmuck/gforcelink/internal/protocol"
)

// Result is what a Completion receives. Err is set for outcomes produced
// locally (timeout, disconnect); device responses carry only Status and
// Payload.
type Result struct {
	Status  protocol.Status
	Payload []byte
	Err     error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Status == protocol.StatusSuccess
}

// Completion is invoked exactly once per registered command, never while
// the table lock is held.
type Completion func(Result)

// Observer sees every completion just before it is delivered.
type Observer func(p Pending, r Result)

// Pending tracks one command awaiting its response.
type Pending struct {
	Opcode   byte
	IssuedAt time.Time
	Deadline time.Time
	Done     Completion

	seq uint64
}

// Ticket identifies one registration so it can be cancelled without
// touching a later registration of the same opcode.
type Ticket struct {
	Opcode byte
	seq    uint64
}

type delivery struct {
	p Pending
	r Result
}

// Table is the correlation table for one link. It holds at most one
// Pending per opcode and keeps a single timer armed for the earliest
// deadline.
type Table struct {
	mu        sync.Mutex
	clock     Clock
	observe   Observer
	byOpcode  map[byte]*Pending
	deadlines *rb.Tree
	timer     Timer
	armed     *Pending
	gen       uint64
	seq       uint64
	closed    bool
}

func NewTable(clock Clock, observe Observer) *Table {
	if clock == nil {
		clock = SystemClock()
	}
	return &Table{
		clock:     clock,
		observe:   observe,
		byOpcode:  make(map[byte]*Pending),
		deadlines: rb.NewTree(compareDeadline),
	}
}

func compareDeadline(a, b rb.Item) int {
	av := a.(*Pending)
	bv := b.(*Pending)
	if av == bv {
		return 0
	}
	if av.Deadline.Before(bv.Deadline) {
		return -1
	}
	if av.Deadline.After(bv.Deadline) {
		return 1
	}
	if av.seq < bv.seq {
		return -1
	}
	if av.seq > bv.seq {
		return 1
	}
	return 0
}

// Register adds a command for opcode that expires after timeout. It fails
// with protocol.ErrDeviceBusy, leaving the table untouched, when opcode is
// already outstanding, and with protocol.ErrBadState after Abort.
func (t *Table) Register(opcode byte, timeout time.Duration, done Completion) (Ticket, error) {
	if done == nil {
		return Ticket{}, fmt.Errorf("%w: nil completion", protocol.ErrBadParam)
	}
	if timeout <= 0 {
		return Ticket{}, fmt.Errorf("%w: timeout=%v", protocol.ErrBadParam, timeout)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Ticket{}, fmt.Errorf("%w: table closed", protocol.ErrBadState)
	}
	if _, busy := t.byOpcode[opcode]; busy {
		t.mu.Unlock()
		return Ticket{}, fmt.Errorf("%w: opcode=0x%02x outstanding", protocol.ErrDeviceBusy, opcode)
	}
	now := t.clock.Now()
	t.seq++
	p := &Pending{
		Opcode:   opcode,
		IssuedAt: now,
		Deadline: now.Add(timeout),
		Done:     done,
		seq:      t.seq,
	}
	t.byOpcode[opcode] = p
	t.deadlines.Insert(p)
	expired := t.rearmLocked()
	t.mu.Unlock()

	t.deliver(expired)
	return Ticket{Opcode: opcode, seq: p.seq}, nil
}

// Resolve completes the command outstanding for opcode with a device
// response. It reports false when no such command exists.
func (t *Table) Resolve(opcode byte, status protocol.Status, payload []byte) bool {
	t.mu.Lock()
	p, ok := t.byOpcode[opcode]
	if !ok {
		t.mu.Unlock()
		return false
	}
	t.removeLocked(p)
	out := []delivery{{p: *p, r: Result{Status: status, Payload: payload}}}
	out = append(out, t.rearmLocked()...)
	t.mu.Unlock()

	t.deliver(out)
	return true
}

// Cancel removes the registration named by tk without completing it. It
// reports false when that registration already completed.
func (t *Table) Cancel(tk Ticket) bool {
	t.mu.Lock()
	p, ok := t.byOpcode[tk.Opcode]
	if !ok || p.seq != tk.seq {
		t.mu.Unlock()
		return false
	}
	t.removeLocked(p)
	expired := t.rearmLocked()
	t.mu.Unlock()

	t.deliver(expired)
	return true
}

// Abort closes the table, stops the timer, and completes every removed
// command with status and err. It returns the number of commands completed.
// Later registrations are rejected.
func (t *Table) Abort(status protocol.Status, err error) int {
	t.mu.Lock()
	t.closed = true
	t.stopTimerLocked()
	out := make([]delivery, 0, t.deadlines.Len())
	for it := t.deadlines.Min(); it != t.deadlines.Limit(); it = it.Next() {
		p := it.Item().(*Pending)
		out = append(out, delivery{p: *p, r: Result{Status: status, Err: err}})
	}
	t.deadlines.DeleteAll()
	t.byOpcode = make(map[byte]*Pending)
	t.mu.Unlock()

	t.deliver(out)
	return len(out)
}

func (t *Table) Has(opcode byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byOpcode[opcode]
	return ok
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byOpcode)
}

// NextDeadline returns the deadline the timer is currently armed for.
func (t *Table) NextDeadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed == nil {
		return time.Time{}, false
	}
	return t.armed.Deadline, true
}

// Snapshot lists outstanding commands by ascending deadline.
func (t *Table) Snapshot() []Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Pending, 0, len(t.byOpcode))
	for it := t.deadlines.Min(); it != t.deadlines.Limit(); it = it.Next() {
		out = append(out, *it.Item().(*Pending))
	}
	return out
}

func (t *Table) removeLocked(p *Pending) {
	delete(t.byOpcode, p.Opcode)
	if it, found := t.deadlines.FindGE_isEqual(p); found {
		t.deadlines.DeleteWithIterator(it)
	}
}

func (t *Table) deliver(out []delivery) {
	for _, d := range out {
		if t.observe != nil {
			t.observe(d.p, d.r)
		}
		if d.p.Done != nil {
			d.p.Done(d.r)
		}
	}
}
