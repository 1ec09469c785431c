package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/user/aurapair/logger"
	"github.com/user/aurapair/protocol"
	"github.com/user/aurapair/radio"
)

var ErrAlreadyRunning = errors.New("host: responder already running")

// Config describes what the host advertises and what it hands out on
// approval.
type Config struct {
	Name    string
	Network protocol.HandshakeResponse
}

// Validate reports fields that would make an APPROVED payload unparseable
// on the other side.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("host: advertised name is required")
	}
	for field, v := range map[string]string{
		"ssid":     c.Network.NetworkName,
		"password": c.Network.NetworkPassword,
		"address":  c.Network.HostAddress,
	} {
		if strings.Contains(v, protocol.Delimiter) {
			return fmt.Errorf("host: %s must not contain %q", field, protocol.Delimiter)
		}
	}
	if c.Network.HostAddress == "" {
		return errors.New("host: address is required")
	}
	return nil
}

// Responder is the peripheral side of the handshake. It advertises Name,
// reads REQUEST writes and answers approved ones with the network details.
type Responder struct {
	periph   radio.Peripheral
	config   Config
	approver Approver
	prefix   string

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	onDecision func(central radio.PeerID, req protocol.HandshakeRequest, approved bool)
}

func NewResponder(periph radio.Peripheral, config Config, approver Approver) *Responder {
	if approver == nil {
		approver = DenyAll{}
	}
	return &Responder{
		periph:     periph,
		config:     config,
		approver:   approver,
		prefix:     "host",
		onDecision: func(radio.PeerID, protocol.HandshakeRequest, bool) {},
	}
}

// OnDecision registers a callback invoked after every approval decision.
func (r *Responder) OnDecision(fn func(central radio.PeerID, req protocol.HandshakeRequest, approved bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDecision = fn
}

// Start begins advertising. Requests are handled until Stop.
func (r *Responder) Start() error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	r.mu.Unlock()

	r.periph.HandleWrites(r.handleWrite)
	if err := r.periph.Advertise(r.config.Name); err != nil {
		r.Stop()
		return fmt.Errorf("advertise %q: %w", r.config.Name, err)
	}
	logger.Info(r.prefix, "Advertising as %q", r.config.Name)
	return nil
}

// Stop ends advertising and waits for in-flight approvals to finish.
func (r *Responder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.periph.StopAdvertising()
	r.periph.HandleWrites(nil)
	r.wg.Wait()
	logger.Info(r.prefix, "Stopped advertising")
}

func (r *Responder) handleWrite(central radio.PeerID, charUUID string, value []byte) {
	if !strings.EqualFold(charUUID, radio.RequestCharUUID) {
		logger.Trace(r.prefix, "Ignoring write to %s", charUUID)
		return
	}

	req, ok := protocol.DecodeRequest(value)
	if !ok {
		logger.Debug(r.prefix, "Ignoring malformed request from %s", logger.Short(string(central)))
		return
	}

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	ctx := r.ctx
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.decide(ctx, central, req)
	}()
}

func (r *Responder) decide(ctx context.Context, central radio.PeerID, req protocol.HandshakeRequest) {
	logger.Info(r.prefix, "Pairing request from %q (%s)", req.RequesterName, logger.Short(req.RequesterID))

	approved := r.approver.Approve(ctx, req)

	r.mu.Lock()
	onDecision := r.onDecision
	r.mu.Unlock()
	defer onDecision(central, req, approved)

	if !approved {
		logger.Info(r.prefix, "Request from %q not approved", req.RequesterName)
		return
	}
	if ctx.Err() != nil {
		return
	}

	if err := r.periph.Notify(central, radio.ResponseCharUUID, protocol.EncodeResponse(r.config.Network)); err != nil {
		logger.Warn(r.prefix, "Failed to send approval to %s: %v", logger.Short(string(central)), err)
		return
	}
	logger.Info(r.prefix, "Approved %q", req.RequesterName)
}
