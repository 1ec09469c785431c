package handshake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/aurapair/logger"
	"github.com/user/aurapair/protocol"
	"github.com/user/aurapair/radio"
)

// DefaultTimeout bounds an Operation when Options.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// Options configures an Initiator. The zero value is usable.
type Options struct {
	Timeout       time.Duration
	OnSoftFailure func(*SoftFailure)
	Events        *EventLog
	Metrics       *Metrics
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Initiator starts pairing operations on a shared radio. At most one
// Operation holds the scanner at a time.
type Initiator struct {
	lease *radio.Lease
	opts  Options
}

func NewInitiator(lease *radio.Lease, opts Options) *Initiator {
	return &Initiator{lease: lease, opts: opts}
}

// Start begins looking for expectedPeer and returns immediately. The
// returned Operation resolves exactly once: with the host's network
// details, ErrTimeout, ErrRadioUnavailable, or ErrAborted. Cancelling ctx
// aborts the Operation.
func (i *Initiator) Start(ctx context.Context, expectedPeer, localName, localID string) (*Operation, error) {
	if expectedPeer == "" {
		return nil, ErrInvalidPeerName
	}

	adapter, release, err := i.lease.Acquire()
	if err != nil {
		return nil, err
	}

	op := newOperation(ctx, adapter, release, i.opts, expectedPeer, protocol.HandshakeRequest{
		RequesterName: localName,
		RequesterID:   localID,
	})
	op.begin(ctx)
	return op, nil
}

// Pair runs one Operation to completion.
func (i *Initiator) Pair(ctx context.Context, expectedPeer, localName, localID string) (protocol.HandshakeResponse, error) {
	op, err := i.Start(ctx, expectedPeer, localName, localID)
	if err != nil {
		return protocol.HandshakeResponse{}, err
	}
	<-op.Done()
	return op.Result()
}

// Operation is one attempt to pair with a named host.
type Operation struct {
	id       string
	expected string
	request  protocol.HandshakeRequest
	adapter  radio.Adapter
	release  func()
	opts     Options
	prefix   string
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span

	mu        sync.Mutex
	state     State
	resolved  bool
	matched   bool
	peerID    radio.PeerID
	stopScan  func()
	stopWatch func() bool
	timer     *time.Timer
	session   *session
	resp      protocol.HandshakeResponse
	err       error
	done      chan struct{}
}

func newOperation(parent context.Context, adapter radio.Adapter, release func(), opts Options, expected string, req protocol.HandshakeRequest) *Operation {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	ctx, span := startSpan(ctx, "handshake.operation",
		attribute.String("operation_id", id),
		attribute.String("expected_peer", expected))

	return &Operation{
		id:       id,
		expected: expected,
		request:  req,
		adapter:  adapter,
		release:  release,
		opts:     opts,
		prefix:   fmt.Sprintf("%s handshake", logger.Short(id)),
		started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		span:     span,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

// begin arms the deadline, ties the Operation to the caller's context and
// starts scanning.
func (o *Operation) begin(parent context.Context) {
	logger.Info(o.prefix, "Looking for %q (timeout %s)", o.expected, o.opts.timeout())
	o.event(Event{Event: "started", State: StateIdle.String(), Details: map[string]string{
		"expected_peer": o.expected,
		"timeout":       o.opts.timeout().String(),
	}})

	o.mu.Lock()
	o.timer = time.AfterFunc(o.opts.timeout(), o.expire)
	o.stopWatch = context.AfterFunc(parent, o.Abort)
	o.state = StateScanning
	o.mu.Unlock()
	o.event(Event{Event: "state", State: StateScanning.String()})

	stop, err := o.adapter.StartScan(o.ctx, o)
	if err != nil {
		logger.Error(o.prefix, "Scan could not start: %v", err)
		o.resolve(protocol.HandshakeResponse{}, fmt.Errorf("%w: %v", ErrRadioUnavailable, err), StateFailed)
		return
	}

	o.mu.Lock()
	if o.state != StateScanning {
		// Matched, resolved or aborted before StartScan returned.
		o.mu.Unlock()
		stop()
		return
	}
	o.stopScan = stop
	o.mu.Unlock()
}

// ID identifies the Operation in logs and events.
func (o *Operation) ID() string { return o.id }

// Expected returns the peer name being searched for.
func (o *Operation) Expected() string { return o.expected }

// Peer returns the matched peer, if any.
func (o *Operation) Peer() (radio.PeerID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.peerID, o.matched
}

func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Done is closed once the Operation has resolved or been aborted.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Result returns the outcome, or ErrPending if the Operation has not yet
// resolved.
func (o *Operation) Result() (protocol.HandshakeResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.resolved {
		return protocol.HandshakeResponse{}, ErrPending
	}
	return o.resp, o.err
}

// Wait blocks until the Operation resolves or ctx ends. Giving up on ctx does
// not abort the Operation.
func (o *Operation) Wait(ctx context.Context) (protocol.HandshakeResponse, error) {
	select {
	case <-o.done:
		return o.Result()
	case <-ctx.Done():
		return protocol.HandshakeResponse{}, ctx.Err()
	}
}

// Abort cancels the Operation. Scanning stops, any link is dropped, the
// deadline is disarmed and Result reports ErrAborted. Calling Abort again, or
// after the Operation resolved, has no effect.
func (o *Operation) Abort() {
	if o.resolve(protocol.HandshakeResponse{}, ErrAborted, StateAborted) {
		logger.Info(o.prefix, "Aborted")
	}
}

// OnScanResult implements radio.ScanCallback.
func (o *Operation) OnScanResult(adv radio.Advertisement) {
	if !MatchAdvertisement(adv, o.expected) {
		return
	}

	o.mu.Lock()
	if o.resolved || o.matched {
		o.mu.Unlock()
		return
	}
	o.matched = true
	o.peerID = adv.ID
	o.state = StateMatched
	stop := o.stopScan
	o.stopScan = nil
	s := newSession(o.adapter, adv.ID, o.request, o.prefix)
	s.onState = o.advance
	s.onValue = o.onNotification
	o.session = s
	o.mu.Unlock()

	if stop != nil {
		stop()
	}

	logger.Info(o.prefix, "Matched %q at %s (rssi %d)", adv.Name, logger.Short(string(adv.ID)), adv.RSSI)
	o.event(Event{Event: "matched", State: StateMatched.String(), Peer: string(adv.ID), Details: map[string]string{
		"rssi": strconv.Itoa(adv.RSSI),
	}})

	go o.run(s)
}

// OnScanFailed implements radio.ScanCallback. Scan errors are reported but
// the deadline still decides the outcome.
func (o *Operation) OnScanFailed(err error) {
	o.softFailure(&SoftFailure{Step: StepScan, Err: err})
}

func (o *Operation) run(s *session) {
	err := s.open(o.ctx)
	if err == nil {
		return
	}
	var sf *SoftFailure
	if !errors.As(err, &sf) {
		sf = &SoftFailure{Step: StepConnect, Peer: s.peerID, Err: err}
	}
	o.softFailure(sf)
}

func (o *Operation) softFailure(sf *SoftFailure) {
	if o.finished() {
		return
	}
	logger.Warn(o.prefix, "%v", sf)
	o.opts.Metrics.softFailure(sf.Step)
	o.event(Event{Event: "soft_failure", State: o.State().String(), Peer: string(sf.Peer), Step: string(sf.Step), Error: sf.Err.Error()})
	if o.opts.OnSoftFailure != nil {
		o.opts.OnSoftFailure(sf)
	}
}

func (o *Operation) advance(next State) {
	o.mu.Lock()
	if o.resolved {
		o.mu.Unlock()
		return
	}
	o.state = next
	o.mu.Unlock()
	logger.Debug(o.prefix, "State -> %s", next)
	o.event(Event{Event: "state", State: next.String()})
}

func (o *Operation) onNotification(value []byte) {
	resp, ok := protocol.DecodeResponse(value)
	if !ok {
		o.opts.Metrics.notification("ignored")
		logger.Debug(o.prefix, "Ignoring notification (%d bytes)", len(value))
		o.event(Event{Event: "notification_ignored", State: o.State().String()})
		return
	}
	if o.resolve(resp, nil, StateApproved) {
		o.opts.Metrics.notification("approved")
	}
}

func (o *Operation) expire() {
	if o.resolve(protocol.HandshakeResponse{}, ErrTimeout, StateTimedOut) {
		logger.Warn(o.prefix, "No approval from %q within %s", o.expected, o.opts.timeout())
	}
}

func (o *Operation) finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolved
}

// resolve records the outcome and releases every resource the Operation
// holds. Only the first call wins; it reports whether this call did.
func (o *Operation) resolve(resp protocol.HandshakeResponse, err error, terminal State) bool {
	o.mu.Lock()
	if o.resolved {
		o.mu.Unlock()
		return false
	}
	o.resolved = true
	o.state = terminal
	o.resp, o.err = resp, err
	stop := o.stopScan
	o.stopScan = nil
	s := o.session
	timer := o.timer
	stopWatch := o.stopWatch
	o.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if stop != nil {
		stop()
	}
	o.cancel()
	if s != nil {
		s.close()
	}
	o.release()
	if stopWatch != nil {
		stopWatch()
	}

	elapsed := time.Since(o.started)
	o.opts.Metrics.observeOutcome(terminal, elapsed)

	ev := Event{Event: "resolved", State: terminal.String(), Details: map[string]string{
		"elapsed_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
	}}
	if err != nil {
		ev.Error = err.Error()
	} else {
		// The password never reaches the audit log.
		ev.Details["ssid"] = resp.NetworkName
		ev.Details["host"] = resp.HostAddress
		ev.Details["port"] = strconv.Itoa(resp.HostPort)
		logger.Info(o.prefix, "Approved: join %q, host %s:%d", resp.NetworkName, resp.HostAddress, resp.HostPort)
	}
	o.event(ev)

	if err != nil && !errors.Is(err, ErrAborted) {
		endSpan(o.span, err)
	} else {
		endSpan(o.span, nil)
	}

	close(o.done)
	return true
}

func (o *Operation) event(e Event) {
	e.OperationID = o.id
	o.opts.Events.Log(e)
}
