package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/aurapair/radio"
)

type recordingScan struct {
	mu     sync.Mutex
	ads    []radio.Advertisement
	errs   []error
	gotAdv chan struct{}
}

func newRecordingScan() *recordingScan {
	return &recordingScan{gotAdv: make(chan struct{}, 100)}
}

func (r *recordingScan) OnScanResult(adv radio.Advertisement) {
	r.mu.Lock()
	r.ads = append(r.ads, adv)
	r.mu.Unlock()
	select {
	case r.gotAdv <- struct{}{}:
	default:
	}
}

func (r *recordingScan) OnScanFailed(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recordingScan) snapshot() ([]radio.Advertisement, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]radio.Advertisement{}, r.ads...), append([]error{}, r.errs...)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestScanReportsNamesAndAnonymousAdvertisers(t *testing.T) {
	air := NewAir(PerfectSimulationConfig())
	named := air.NewDevice("")
	if err := named.Advertise("Host_42"); err != nil {
		t.Fatalf("Advertise failed: %v", err)
	}
	anonymous := air.NewDevice("")
	if err := anonymous.Advertise(""); err != nil {
		t.Fatalf("Advertise failed: %v", err)
	}
	air.NewDevice("") // never advertises

	central := air.NewCentral("")
	rec := newRecordingScan()
	stop, err := central.StartScan(context.Background(), rec)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	waitFor(t, rec.gotAdv)
	waitFor(t, rec.gotAdv)
	stop()
	stop()

	ads, _ := rec.snapshot()
	seen := map[radio.PeerID]radio.Advertisement{}
	for _, a := range ads {
		seen[a.ID] = a
	}
	if len(seen) != 2 {
		t.Fatalf("Expected 2 advertisers, saw %d", len(seen))
	}
	if a := seen[named.ID()]; !a.HasName || a.Name != "Host_42" {
		t.Errorf("Named advertisement = %+v", a)
	}
	if a := seen[anonymous.ID()]; a.HasName {
		t.Errorf("Anonymous advertisement should have no name: %+v", a)
	}
	if central.Scanning() {
		t.Error("Expected scan to be stopped")
	}
	if got := air.Trace().Count(OpScanStop); got != 1 {
		t.Errorf("Expected exactly one scan_stop, got %d", got)
	}
}

func TestScanPoweredOff(t *testing.T) {
	air := NewAir(PerfectSimulationConfig())
	central := air.NewCentral("")
	central.SetPowered(false)

	if _, err := central.StartScan(context.Background(), newRecordingScan()); !errors.Is(err, radio.ErrPoweredOff) {
		t.Fatalf("Expected ErrPoweredOff, got %v", err)
	}
}

func TestInjectScanError(t *testing.T) {
	air := NewAir(PerfectSimulationConfig())
	central := air.NewCentral("")
	rec := newRecordingScan()
	stop, err := central.StartScan(context.Background(), rec)
	if err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	defer stop()

	central.InjectScanError(errors.New("controller busy"))
	_, errs := rec.snapshot()
	if len(errs) != 1 {
		t.Fatalf("Expected one scan error, got %d", len(errs))
	}
	if !central.Scanning() {
		t.Error("Scan error should not stop the scan")
	}
}

func TestConnectSubscribeNotify(t *testing.T) {
	air := NewAir(PerfectSimulationConfig())
	device := air.NewDevice("")
	device.Advertise("Host")

	writes := make(chan string, 1)
	device.HandleWrites(func(central radio.PeerID, charUUID string, value []byte) {
		writes <- string(value)
	})

	central := air.NewCentral("")
	ctx := context.Background()
	p, err := central.Connect(ctx, device.ID())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	chars, err := p.DiscoverCharacteristics(ctx)
	if err != nil {
		t.Fatalf("DiscoverCharacteristics failed: %v", err)
	}
	if _, ok := radio.FindCharacteristic(chars, radio.ResponseCharUUID); !ok {
		t.Fatal("Response characteristic missing")
	}

	// Notifications before subscribing are refused.
	if err := device.Notify(central.ID(), radio.ResponseCharUUID, []byte("early")); !errors.Is(err, radio.ErrNotSubscribed) {
		t.Fatalf("Expected ErrNotSubscribed, got %v", err)
	}

	got := make(chan string, 1)
	if err := p.Subscribe(ctx, radio.ResponseCharUUID, func(v []byte) { got <- string(v) }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := p.Write(ctx, radio.RequestCharUUID, []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	select {
	case w := <-writes:
		if w != "hello" {
			t.Errorf("Peripheral saw %q", w)
		}
	case <-time.After(time.Second):
		t.Fatal("Write never reached peripheral")
	}

	if err := device.Notify(central.ID(), radio.ResponseCharUUID, []byte("value")); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	select {
	case v := <-got:
		if v != "value" {
			t.Errorf("Central saw %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Notification never delivered")
	}

	p.Disconnect()
	p.Disconnect()
	if err := p.Write(ctx, radio.RequestCharUUID, []byte("x")); !errors.Is(err, radio.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after disconnect, got %v", err)
	}
	if len(device.ConnectedCentrals()) != 0 {
		t.Error("Device still lists the central after disconnect")
	}

	kinds := air.Trace().Kinds()
	want := []string{OpConnect, OpDiscover, OpSubscribe, OpWrite, OpNotify, OpDisconnect}
	if len(kinds) != len(want) {
		t.Fatalf("Trace = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("Trace = %v, want %v", kinds, want)
		}
	}
}

func TestConnectFaults(t *testing.T) {
	air := NewAir(PerfectSimulationConfig())
	device := air.NewDevice("")
	device.Advertise("Host")
	central := air.NewCentral("")

	boom := errors.New("boom")
	central.SetFaults(Faults{ConnectErr: boom})
	if _, err := central.Connect(context.Background(), device.ID()); !errors.Is(err, boom) {
		t.Fatalf("Expected injected error, got %v", err)
	}

	central.SetFaults(Faults{HoldConnect: true})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := central.Connect(ctx, device.ID()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected held connect to end with the context, got %v", err)
	}

	central.SetFaults(Faults{})
	device.StopAdvertising()
	if _, err := central.Connect(context.Background(), device.ID()); err == nil {
		t.Fatal("Expected non-advertising device to refuse connections")
	}
}

func TestRemoveCharacteristic(t *testing.T) {
	air := NewAir(PerfectSimulationConfig())
	device := air.NewDevice("")
	device.Advertise("Host")
	device.RemoveCharacteristic(radio.ResponseCharUUID)

	p, err := air.NewCentral("").Connect(context.Background(), device.ID())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer p.Disconnect()

	err = p.Subscribe(context.Background(), radio.ResponseCharUUID, func([]byte) {})
	if !errors.Is(err, radio.ErrCharacteristicNotFound) {
		t.Fatalf("Expected ErrCharacteristicNotFound, got %v", err)
	}
}
