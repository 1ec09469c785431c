package handshake

import (
	"errors"
	"fmt"

	"github.com/user/aurapair/radio"
)

// Terminal errors delivered through Operation.Result.
var (
	ErrTimeout          = errors.New("handshake: peer not found or not approved")
	ErrRadioUnavailable = errors.New("handshake: radio unavailable")
	ErrAborted          = errors.New("handshake: aborted")
	ErrPending          = errors.New("handshake: operation still pending")
	ErrInvalidPeerName  = errors.New("handshake: expected peer name is empty")

	ErrScannerBusy = radio.ErrScannerBusy
)

// Step names the part of the flow a soft failure came from.
type Step string

const (
	StepScan      Step = "scan"
	StepConnect   Step = "connect"
	StepDiscover  Step = "discover"
	StepSubscribe Step = "subscribe"
	StepWrite     Step = "write"
)

// SoftFailure is a failure that is logged and counted but never resolves
// the Operation; the deadline or an approval still decides the outcome.
type SoftFailure struct {
	Step Step
	Peer radio.PeerID
	Err  error
}

func (e *SoftFailure) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Step, e.Peer, e.Err)
}

func (e *SoftFailure) Unwrap() error {
	return e.Err
}
