package radio

import (
	"context"
	"errors"
	"testing"
)

type nopAdapter struct{}

func (nopAdapter) StartScan(ctx context.Context, cb ScanCallback) (func(), error) {
	return func() {}, nil
}

func (nopAdapter) Connect(ctx context.Context, id PeerID) (Peer, error) {
	return nil, ErrNotConnected
}

func TestLeaseIsExclusive(t *testing.T) {
	lease := NewLease(nopAdapter{})

	adapter, release, err := lease.Acquire()
	if err != nil {
		t.Fatalf("First Acquire failed: %v", err)
	}
	if adapter == nil {
		t.Fatal("Expected adapter from Acquire")
	}

	if _, _, err := lease.Acquire(); !errors.Is(err, ErrScannerBusy) {
		t.Fatalf("Expected ErrScannerBusy while held, got %v", err)
	}

	release()
	release() // second release must not over-release the semaphore

	_, release2, err := lease.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if _, _, err := lease.Acquire(); !errors.Is(err, ErrScannerBusy) {
		t.Fatalf("Double release let two holders in: %v", err)
	}
	release2()
}

func TestFindCharacteristic(t *testing.T) {
	chars := []Characteristic{
		{ServiceUUID: PairingServiceUUID, UUID: RequestCharUUID, Properties: []string{"write"}},
		{ServiceUUID: PairingServiceUUID, UUID: ResponseCharUUID, Properties: []string{"notify"}},
	}

	c, ok := FindCharacteristic(chars, "7A3C0003-5E1B-4D8E-9F2A-6C4B1D0E8F11")
	if !ok {
		t.Fatal("Expected case-insensitive UUID lookup to succeed")
	}
	if c.UUID != ResponseCharUUID {
		t.Errorf("Found wrong characteristic %s", c.UUID)
	}

	if _, ok := FindCharacteristic(chars, CCCDUUID); ok {
		t.Error("Expected lookup of absent UUID to fail")
	}
}
