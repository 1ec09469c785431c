package handshake

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/user/aurapair/logger"
	"github.com/user/aurapair/protocol"
	"github.com/user/aurapair/radio"
)

// session drives one matched peer through connect, discover, subscribe and
// write. It never resolves the Operation itself; progress goes out through
// onState and response bytes through onValue.
type session struct {
	adapter radio.Adapter
	peerID  radio.PeerID
	request protocol.HandshakeRequest
	prefix  string

	onState func(State)
	onValue func([]byte)

	mu     sync.Mutex
	peer   radio.Peer
	closed bool
}

func newSession(adapter radio.Adapter, peerID radio.PeerID, req protocol.HandshakeRequest, prefix string) *session {
	return &session{
		adapter: adapter,
		peerID:  peerID,
		request: req,
		prefix:  prefix,
		onState: func(State) {},
		onValue: func([]byte) {},
	}
}

// open runs the four steps in order. The subscription is in place before the
// request is written so an immediate reply cannot be missed. Any failure
// closes the link and comes back as a *SoftFailure.
func (s *session) open(ctx context.Context) error {
	s.onState(StateConnecting)
	if err := s.step(ctx, StepConnect, s.connect); err != nil {
		return err
	}

	s.onState(StateDiscovering)
	if err := s.step(ctx, StepDiscover, s.discover); err != nil {
		s.close()
		return err
	}

	if err := s.step(ctx, StepSubscribe, s.subscribe); err != nil {
		s.close()
		return err
	}

	if err := s.step(ctx, StepWrite, s.write); err != nil {
		s.close()
		return err
	}

	s.onState(StateAwaitingApproval)
	logger.Debug(s.prefix, "Request written to %s, awaiting approval", logger.Short(string(s.peerID)))
	return nil
}

func (s *session) step(ctx context.Context, step Step, fn func(context.Context) error) error {
	ctx, span := startSpan(ctx, "session."+string(step), attribute.String("peer", string(s.peerID)))
	err := fn(ctx)
	endSpan(span, err)
	if err != nil {
		return &SoftFailure{Step: step, Peer: s.peerID, Err: err}
	}
	return nil
}

func (s *session) connect(ctx context.Context) error {
	logger.Debug(s.prefix, "Connecting to %s", logger.Short(string(s.peerID)))
	p, err := s.adapter.Connect(ctx, s.peerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.Disconnect()
		return context.Canceled
	}
	s.peer = p
	s.mu.Unlock()
	return nil
}

func (s *session) discover(ctx context.Context) error {
	chars, err := s.current().DiscoverCharacteristics(ctx)
	if err != nil {
		return err
	}
	for _, uuid := range []string{radio.RequestCharUUID, radio.ResponseCharUUID} {
		if _, ok := radio.FindCharacteristic(chars, uuid); !ok {
			return fmt.Errorf("%s: %w", uuid, radio.ErrCharacteristicNotFound)
		}
	}
	logger.Trace(s.prefix, "Discovered %d characteristics on %s", len(chars), logger.Short(string(s.peerID)))
	return nil
}

func (s *session) subscribe(ctx context.Context) error {
	return s.current().Subscribe(ctx, radio.ResponseCharUUID, func(value []byte) {
		s.onValue(value)
	})
}

func (s *session) write(ctx context.Context) error {
	return s.current().Write(ctx, radio.RequestCharUUID, protocol.EncodeRequest(s.request))
}

func (s *session) current() radio.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return disconnectedPeer{id: s.peerID}
	}
	return s.peer
}

// close releases the link. It is safe to call more than once and from any
// goroutine, including while connect is still in flight.
func (s *session) close() {
	s.mu.Lock()
	s.closed = true
	p := s.peer
	s.peer = nil
	s.mu.Unlock()

	if p != nil {
		if err := p.Disconnect(); err != nil {
			logger.Debug(s.prefix, "Disconnect %s: %v", logger.Short(string(s.peerID)), err)
		}
	}
}

// disconnectedPeer stands in once the link is gone so late steps fail with
// ErrNotConnected instead of a nil dereference.
type disconnectedPeer struct {
	id radio.PeerID
}

func (d disconnectedPeer) ID() radio.PeerID { return d.id }

func (disconnectedPeer) DiscoverCharacteristics(context.Context) ([]radio.Characteristic, error) {
	return nil, radio.ErrNotConnected
}

func (disconnectedPeer) Subscribe(context.Context, string, func([]byte)) error {
	return radio.ErrNotConnected
}

func (disconnectedPeer) Write(context.Context, string, []byte) error {
	return radio.ErrNotConnected
}

func (disconnectedPeer) Disconnect() error { return nil }
