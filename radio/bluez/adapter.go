// Package bluez implements the radio interfaces on Linux through the BlueZ
// D-Bus API. Only the central role is supported.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/user/aurapair/logger"
	"github.com/user/aurapair/radio"
)

const servicesResolvedPoll = 100 * time.Millisecond

var errSignalsClosed = errors.New("bluez: D-Bus signal channel closed")

var _ radio.Adapter = (*Adapter)(nil)

// Adapter drives one local controller (hci0, hci1, ...).
type Adapter struct {
	conn *dbus.Conn
	name string
	path dbus.ObjectPath
}

// New attaches to the system bus. The controller itself is checked when a
// scan starts.
func New(name string) (*Adapter, error) {
	if name == "" {
		name = "hci0"
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return &Adapter{conn: conn, name: name, path: adapterPath(name)}, nil
}

// StartScan starts LE discovery and reports every Device1 that appears or
// changes under this adapter.
func (a *Adapter) StartScan(ctx context.Context, cb radio.ScanCallback) (func(), error) {
	powered, err := getProperty[bool](a.conn, a.path, adapter1Iface, "Powered")
	if err != nil {
		return nil, fmt.Errorf("read %s power state: %w", a.name, err)
	}
	if !powered {
		return nil, radio.ErrPoweredOff
	}

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(objectManager),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchInterface(propertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchPathNamespace(a.path),
		},
	}
	for _, m := range matches {
		if err := a.conn.AddMatchSignal(m...); err != nil {
			return nil, fmt.Errorf("add signal match: %w", err)
		}
	}
	signals := make(chan *dbus.Signal, 64)
	a.conn.Signal(signals)

	cleanup := func() {
		a.conn.RemoveSignal(signals)
		for _, m := range matches {
			_ = a.conn.RemoveMatchSignal(m...)
		}
	}

	obj := a.conn.Object(bluezBus, a.path)
	filter := map[string]dbus.Variant{
		"Transport":     dbus.MakeVariant("le"),
		"DuplicateData": dbus.MakeVariant(true),
	}
	if call := obj.CallWithContext(ctx, adapter1Iface+".SetDiscoveryFilter", 0, filter); call.Err != nil {
		logger.Warn("bluez", "SetDiscoveryFilter on %s: %v", a.name, call.Err)
	}
	if call := obj.CallWithContext(ctx, adapter1Iface+".StartDiscovery", 0); call.Err != nil {
		cleanup()
		return nil, fmt.Errorf("start discovery on %s: %w", a.name, call.Err)
	}
	logger.Debug("bluez", "Discovery started on %s", a.name)

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			if call := obj.Call(adapter1Iface+".StopDiscovery", 0); call.Err != nil {
				logger.Debug("bluez", "StopDiscovery on %s: %v", a.name, call.Err)
			}
			cleanup()
			logger.Debug("bluez", "Discovery stopped on %s", a.name)
		})
	}

	cache := a.knownDevices()
	go a.scanLoop(ctx, cb, signals, cache, done, stop)
	return stop, nil
}

// knownDevices returns the Device1 properties BlueZ already holds for this
// adapter, keyed by object path.
func (a *Adapter) knownDevices() map[dbus.ObjectPath]map[string]dbus.Variant {
	cache := make(map[dbus.ObjectPath]map[string]dbus.Variant)
	objects, err := a.managedObjects()
	if err != nil {
		logger.Debug("bluez", "GetManagedObjects: %v", err)
		return cache
	}
	for path, ifaces := range objects {
		if props, ok := ifaces[device1Iface]; ok && under(path, a.path) {
			cache[path] = props
		}
	}
	return cache
}

func (a *Adapter) scanLoop(ctx context.Context, cb radio.ScanCallback, signals <-chan *dbus.Signal,
	cache map[dbus.ObjectPath]map[string]dbus.Variant, done <-chan struct{}, stop func()) {

	report := func(props map[string]dbus.Variant) {
		// Entries without RSSI are cached from earlier sessions, not live.
		if _, live := props["RSSI"]; !live {
			return
		}
		if adv, ok := advertisementFromProps(props); ok {
			cb.OnScanResult(adv)
		}
	}

	for _, props := range cache {
		select {
		case <-done:
			return
		default:
		}
		report(props)
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			stop()
			return
		case sig, ok := <-signals:
			if !ok {
				cb.OnScanFailed(errSignalsClosed)
				return
			}
			if path, props, ok := interfacesAdded(sig); ok {
				if !under(path, a.path) {
					continue
				}
				cache[path] = props
				report(props)
				continue
			}
			if !under(sig.Path, a.path) {
				continue
			}
			changed, invalidated, ok := propertiesChanged(sig, device1Iface)
			if !ok {
				continue
			}
			props := mergeProps(cache[sig.Path], changed, invalidated)
			if _, known := props["Address"]; !known {
				if all, err := a.deviceProps(sig.Path); err == nil {
					props = mergeProps(all, changed, nil)
				}
			}
			cache[sig.Path] = props
			report(props)
		}
	}
}

// Connect opens a link to the device with the given address and waits for
// BlueZ to finish resolving its GATT services.
func (a *Adapter) Connect(ctx context.Context, id radio.PeerID) (radio.Peer, error) {
	path := devicePath(a.name, string(id))
	obj := a.conn.Object(bluezBus, path)

	if call := obj.CallWithContext(ctx, device1Iface+".Connect", 0); call.Err != nil {
		return nil, fmt.Errorf("connect %s: %w", id, call.Err)
	}
	if err := a.waitServicesResolved(ctx, path); err != nil {
		obj.Call(device1Iface+".Disconnect", 0)
		return nil, fmt.Errorf("resolve services on %s: %w", id, err)
	}
	logger.Debug("bluez", "Connected to %s", id)
	return newPeer(a, id, path), nil
}

func (a *Adapter) waitServicesResolved(ctx context.Context, path dbus.ObjectPath) error {
	ticker := time.NewTicker(servicesResolvedPoll)
	defer ticker.Stop()

	for {
		resolved, err := getProperty[bool](a.conn, path, device1Iface, "ServicesResolved")
		if err == nil && resolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) managedObjects() (managedObjects, error) {
	var objects managedObjects
	call := a.conn.Object(bluezBus, "/").Call(objectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, call.Err
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("parse managed objects: %w", err)
	}
	return objects, nil
}

func (a *Adapter) deviceProps(path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	call := a.conn.Object(bluezBus, path).Call(propertiesIface+".GetAll", 0, device1Iface)
	if call.Err != nil {
		return nil, call.Err
	}
	if err := call.Store(&props); err != nil {
		return nil, err
	}
	return props, nil
}

// getProperty reads a property from a BlueZ object.
func getProperty[T any](conn *dbus.Conn, path dbus.ObjectPath, iface, property string) (T, error) {
	var zero T
	variant, err := conn.Object(bluezBus, path).GetProperty(iface + "." + property)
	if err != nil {
		return zero, err
	}
	val, ok := variant.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s.%s has unexpected type %T", iface, property, variant.Value())
	}
	return val, nil
}
