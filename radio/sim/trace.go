package sim

import (
	"sync"
	"time"

	"github.com/user/aurapair/radio"
)

// Operation kinds recorded by the trace
const (
	OpScanStart  = "scan_start"
	OpScanStop   = "scan_stop"
	OpConnect    = "connect"
	OpDiscover   = "discover"
	OpSubscribe  = "subscribe"
	OpWrite      = "write"
	OpNotify     = "notify"
	OpDisconnect = "disconnect"
)

// Op is one completed radio operation.
type Op struct {
	Kind string
	Peer radio.PeerID
	At   time.Time
}

// Trace is an append-only record of radio operations, in completion order.
type Trace struct {
	mu  sync.Mutex
	ops []Op
}

func (t *Trace) record(kind string, peer radio.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, Op{Kind: kind, Peer: peer, At: time.Now()})
}

// Ops returns a copy of the recorded operations.
func (t *Trace) Ops() []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Op, len(t.ops))
	copy(out, t.ops)
	return out
}

// Kinds returns the recorded operation kinds in order.
func (t *Trace) Kinds() []string {
	ops := t.Ops()
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}

// Count returns how many operations of kind were recorded.
func (t *Trace) Count(kind string) int {
	n := 0
	for _, op := range t.Ops() {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Index returns the position of the first operation of kind, or -1.
func (t *Trace) Index(kind string) int {
	for i, op := range t.Ops() {
		if op.Kind == kind {
			return i
		}
	}
	return -1
}
