package bluez

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/user/aurapair/radio"
)

// BlueZ D-Bus names
const (
	bluezBus          = "org.bluez"
	adapter1Iface     = "org.bluez.Adapter1"
	device1Iface      = "org.bluez.Device1"
	gattService1Iface = "org.bluez.GattService1"
	gattChar1Iface    = "org.bluez.GattCharacteristic1"
	objectManager     = "org.freedesktop.DBus.ObjectManager"
	propertiesIface   = "org.freedesktop.DBus.Properties"
)

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// adapterPath returns the object path of a local controller, e.g. /org/bluez/hci0.
func adapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// devicePath converts a BLE MAC address to a BlueZ object path.
// Example: "AA:BB:CC:DD:EE:FF" -> "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"
func devicePath(adapter, address string) dbus.ObjectPath {
	devAddr := strings.ToUpper(strings.ReplaceAll(address, ":", "_"))
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, devAddr))
}

// under reports whether path is a strict descendant of parent.
func under(path, parent dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(parent)+"/")
}

func variantValue[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := props[key]
	if !ok {
		return zero, false
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, false
	}
	return val, true
}

// advertisementFromProps builds a scan result from Device1 properties. The
// Alias property is ignored since BlueZ fills it with the address when the
// device broadcasts no name.
func advertisementFromProps(props map[string]dbus.Variant) (radio.Advertisement, bool) {
	address, ok := variantValue[string](props, "Address")
	if !ok || address == "" {
		return radio.Advertisement{}, false
	}
	adv := radio.Advertisement{ID: radio.PeerID(address)}
	adv.Name, adv.HasName = variantValue[string](props, "Name")
	if rssi, ok := variantValue[int16](props, "RSSI"); ok {
		adv.RSSI = int(rssi)
	}
	return adv, true
}

// mergeProps copies changed over cached and drops invalidated keys.
func mergeProps(cached, changed map[string]dbus.Variant, invalidated []string) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(cached)+len(changed))
	for k, v := range cached {
		out[k] = v
	}
	for k, v := range changed {
		out[k] = v
	}
	for _, k := range invalidated {
		delete(out, k)
	}
	return out
}

// interfacesAdded extracts the Device1 properties from an InterfacesAdded
// signal.
func interfacesAdded(sig *dbus.Signal) (dbus.ObjectPath, map[string]dbus.Variant, bool) {
	if sig.Name != objectManager+".InterfacesAdded" || len(sig.Body) < 2 {
		return "", nil, false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return "", nil, false
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return "", nil, false
	}
	props, ok := ifaces[device1Iface]
	return path, props, ok
}

// propertiesChanged extracts the changed properties of iface from a
// PropertiesChanged signal.
func propertiesChanged(sig *dbus.Signal, iface string) (map[string]dbus.Variant, []string, bool) {
	if sig.Name != propertiesIface+".PropertiesChanged" || len(sig.Body) < 2 {
		return nil, nil, false
	}
	name, ok := sig.Body[0].(string)
	if !ok || name != iface {
		return nil, nil, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, nil, false
	}
	var invalidated []string
	if len(sig.Body) > 2 {
		invalidated, _ = sig.Body[2].([]string)
	}
	return changed, invalidated, true
}

// notificationValue returns the new Value of a characteristic from a
// PropertiesChanged signal.
func notificationValue(sig *dbus.Signal) ([]byte, bool) {
	changed, _, ok := propertiesChanged(sig, gattChar1Iface)
	if !ok {
		return nil, false
	}
	return variantValue[[]byte](changed, "Value")
}

// characteristics lists the GATT characteristics under dev and maps each
// lowercased UUID to its object path.
func characteristics(objects managedObjects, dev dbus.ObjectPath) ([]radio.Characteristic, map[string]dbus.ObjectPath) {
	services := make(map[dbus.ObjectPath]string)
	for path, ifaces := range objects {
		if !under(path, dev) {
			continue
		}
		if props, ok := ifaces[gattService1Iface]; ok {
			if uuid, ok := variantValue[string](props, "UUID"); ok {
				services[path] = strings.ToLower(uuid)
			}
		}
	}

	var chars []radio.Characteristic
	paths := make(map[string]dbus.ObjectPath)
	for path, ifaces := range objects {
		if !under(path, dev) {
			continue
		}
		props, ok := ifaces[gattChar1Iface]
		if !ok {
			continue
		}
		uuid, ok := variantValue[string](props, "UUID")
		if !ok {
			continue
		}
		uuid = strings.ToLower(uuid)
		service, _ := variantValue[dbus.ObjectPath](props, "Service")
		flags, _ := variantValue[[]string](props, "Flags")
		chars = append(chars, radio.Characteristic{
			ServiceUUID: services[service],
			UUID:        uuid,
			Properties:  flags,
		})
		paths[uuid] = path
	}
	return chars, paths
}
