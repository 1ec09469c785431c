package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/user/aurapair/logger"
	"github.com/user/aurapair/radio"
)

type peer struct {
	adapter *Adapter
	id      radio.PeerID
	path    dbus.ObjectPath

	mu         sync.Mutex
	chars      map[string]dbus.ObjectPath
	subscribed []dbus.ObjectPath
	signals    []chan *dbus.Signal
	matches    [][]dbus.MatchOption

	done chan struct{}
	once sync.Once
}

func newPeer(a *Adapter, id radio.PeerID, path dbus.ObjectPath) *peer {
	return &peer{
		adapter: a,
		id:      id,
		path:    path,
		chars:   make(map[string]dbus.ObjectPath),
		done:    make(chan struct{}),
	}
}

func (p *peer) ID() radio.PeerID {
	return p.id
}

func (p *peer) DiscoverCharacteristics(ctx context.Context) ([]radio.Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	objects, err := p.adapter.managedObjects()
	if err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", err)
	}
	chars, paths := characteristics(objects, p.path)

	p.mu.Lock()
	p.chars = paths
	p.mu.Unlock()

	logger.Trace("bluez", "%s exposes %d characteristics", p.id, len(chars))
	return chars, nil
}

// Subscribe listens for Value changes on the characteristic before enabling
// notifications so an immediate notification is not lost.
func (p *peer) Subscribe(ctx context.Context, charUUID string, onValue func([]byte)) error {
	path, err := p.charPath(charUUID)
	if err != nil {
		return err
	}
	conn := p.adapter.conn

	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := conn.AddMatchSignal(match...); err != nil {
		return fmt.Errorf("add signal match: %w", err)
	}
	signals := make(chan *dbus.Signal, 64)
	conn.Signal(signals)

	p.mu.Lock()
	p.signals = append(p.signals, signals)
	p.matches = append(p.matches, match)
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-p.done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig.Path != path {
					continue
				}
				if value, ok := notificationValue(sig); ok {
					onValue(value)
				}
			}
		}
	}()

	if call := conn.Object(bluezBus, path).CallWithContext(ctx, gattChar1Iface+".StartNotify", 0); call.Err != nil {
		return fmt.Errorf("StartNotify %s: %w", charUUID, call.Err)
	}

	p.mu.Lock()
	p.subscribed = append(p.subscribed, path)
	p.mu.Unlock()
	return nil
}

func (p *peer) Write(ctx context.Context, charUUID string, value []byte) error {
	path, err := p.charPath(charUUID)
	if err != nil {
		return err
	}
	opts := map[string]dbus.Variant{
		"type": dbus.MakeVariant("request"),
	}
	call := p.adapter.conn.Object(bluezBus, path).CallWithContext(ctx, gattChar1Iface+".WriteValue", 0, value, opts)
	if call.Err != nil {
		return fmt.Errorf("WriteValue %s: %w", charUUID, call.Err)
	}
	return nil
}

// Disconnect stops notifications, drops the signal listeners and closes the
// link. The shared system bus connection stays open.
func (p *peer) Disconnect() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		conn := p.adapter.conn

		p.mu.Lock()
		subscribed, signals, matches := p.subscribed, p.signals, p.matches
		p.subscribed, p.signals, p.matches = nil, nil, nil
		p.mu.Unlock()

		for _, path := range subscribed {
			conn.Object(bluezBus, path).Call(gattChar1Iface+".StopNotify", 0)
		}
		for _, ch := range signals {
			conn.RemoveSignal(ch)
		}
		for _, m := range matches {
			_ = conn.RemoveMatchSignal(m...)
		}

		if call := conn.Object(bluezBus, p.path).Call(device1Iface+".Disconnect", 0); call.Err != nil {
			err = fmt.Errorf("disconnect %s: %w", p.id, call.Err)
		}
		logger.Debug("bluez", "Disconnected from %s", p.id)
	})
	return err
}

func (p *peer) charPath(charUUID string) (dbus.ObjectPath, error) {
	select {
	case <-p.done:
		return "", radio.ErrNotConnected
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	path, ok := p.chars[strings.ToLower(charUUID)]
	if !ok {
		return "", fmt.Errorf("%s: %w", charUUID, radio.ErrCharacteristicNotFound)
	}
	return path, nil
}
