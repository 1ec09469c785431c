package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/user/aurapair/radio"
)

func TestDevicePath(t *testing.T) {
	got := devicePath("hci0", "aa:bb:cc:dd:ee:ff")
	if want := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"); got != want {
		t.Errorf("devicePath = %s, want %s", got, want)
	}
	if !under(got, adapterPath("hci0")) {
		t.Error("Device path should be under its adapter")
	}
	if under(got, adapterPath("hci1")) {
		t.Error("Device path should not be under another adapter")
	}
	if under(adapterPath("hci0"), adapterPath("hci0")) {
		t.Error("A path is not under itself")
	}
}

func TestAdvertisementFromProps(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]dbus.Variant
		want  radio.Advertisement
		ok    bool
	}{
		{
			name: "named",
			props: map[string]dbus.Variant{
				"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
				"Name":    dbus.MakeVariant("Host_42"),
				"Alias":   dbus.MakeVariant("Host_42"),
				"RSSI":    dbus.MakeVariant(int16(-61)),
			},
			want: radio.Advertisement{ID: "AA:BB:CC:DD:EE:FF", Name: "Host_42", HasName: true, RSSI: -61},
			ok:   true,
		},
		{
			name: "alias only",
			props: map[string]dbus.Variant{
				"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
				"Alias":   dbus.MakeVariant("AA-BB-CC-DD-EE-FF"),
			},
			want: radio.Advertisement{ID: "AA:BB:CC:DD:EE:FF"},
			ok:   true,
		},
		{
			name:  "no address",
			props: map[string]dbus.Variant{"Name": dbus.MakeVariant("Host_42")},
			ok:    false,
		},
		{
			name: "wrong type",
			props: map[string]dbus.Variant{
				"Address": dbus.MakeVariant(uint32(7)),
			},
			ok: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := advertisementFromProps(tt.props)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Advertisement = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeProps(t *testing.T) {
	cached := map[string]dbus.Variant{
		"Address": dbus.MakeVariant("AA"),
		"Name":    dbus.MakeVariant("Old"),
		"RSSI":    dbus.MakeVariant(int16(-80)),
	}
	changed := map[string]dbus.Variant{"Name": dbus.MakeVariant("New")}
	merged := mergeProps(cached, changed, []string{"RSSI"})

	if name, _ := variantValue[string](merged, "Name"); name != "New" {
		t.Errorf("Name = %q, want New", name)
	}
	if _, ok := merged["RSSI"]; ok {
		t.Error("Invalidated RSSI should be dropped")
	}
	if name, _ := variantValue[string](cached, "Name"); name != "Old" {
		t.Error("mergeProps must not modify the cached map")
	}
}

func TestInterfacesAdded(t *testing.T) {
	path := devicePath("hci0", "AA:BB:CC:DD:EE:FF")
	sig := &dbus.Signal{
		Name: objectManager + ".InterfacesAdded",
		Body: []interface{}{
			path,
			map[string]map[string]dbus.Variant{
				device1Iface: {"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF")},
			},
		},
	}
	gotPath, props, ok := interfacesAdded(sig)
	if !ok || gotPath != path {
		t.Fatalf("interfacesAdded = %s, %v", gotPath, ok)
	}
	if addr, _ := variantValue[string](props, "Address"); addr != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address = %q", addr)
	}

	sig.Body[1] = map[string]map[string]dbus.Variant{gattChar1Iface: {}}
	if _, _, ok := interfacesAdded(sig); ok {
		t.Error("Non-device interfaces should be skipped")
	}
}

func TestNotificationValue(t *testing.T) {
	sig := &dbus.Signal{
		Name: propertiesIface + ".PropertiesChanged",
		Body: []interface{}{
			gattChar1Iface,
			map[string]dbus.Variant{"Value": dbus.MakeVariant([]byte("QVBQUk9WRUQ="))},
			[]string{},
		},
	}
	value, ok := notificationValue(sig)
	if !ok || string(value) != "QVBQUk9WRUQ=" {
		t.Fatalf("notificationValue = %q, %v", value, ok)
	}

	sig.Body[0] = device1Iface
	if _, ok := notificationValue(sig); ok {
		t.Error("Device property changes are not notifications")
	}

	sig.Body = []interface{}{gattChar1Iface, map[string]dbus.Variant{"Notifying": dbus.MakeVariant(true)}}
	if _, ok := notificationValue(sig); ok {
		t.Error("Changes without Value are not notifications")
	}
}

func TestCharacteristics(t *testing.T) {
	dev := devicePath("hci0", "AA:BB:CC:DD:EE:FF")
	svc := dev + "/service0010"
	objects := managedObjects{
		dev: {device1Iface: {"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF")}},
		svc: {gattService1Iface: {"UUID": dbus.MakeVariant(radio.PairingServiceUUID)}},
		svc + "/char0011": {gattChar1Iface: {
			"UUID":    dbus.MakeVariant(radio.RequestCharUUID),
			"Service": dbus.MakeVariant(svc),
			"Flags":   dbus.MakeVariant([]string{"write"}),
		}},
		svc + "/char0013": {gattChar1Iface: {
			"UUID":    dbus.MakeVariant(radio.ResponseCharUUID),
			"Service": dbus.MakeVariant(svc),
			"Flags":   dbus.MakeVariant([]string{"notify"}),
		}},
		// Another device's characteristic must not leak in.
		devicePath("hci0", "11:22:33:44:55:66") + "/service0010/char0011": {gattChar1Iface: {
			"UUID": dbus.MakeVariant("0000aaaa-0000-1000-8000-00805f9b34fb"),
		}},
	}

	chars, paths := characteristics(objects, dev)
	if len(chars) != 2 {
		t.Fatalf("Expected 2 characteristics, got %d", len(chars))
	}
	req, ok := radio.FindCharacteristic(chars, radio.RequestCharUUID)
	if !ok {
		t.Fatal("Request characteristic missing")
	}
	if req.ServiceUUID != radio.PairingServiceUUID {
		t.Errorf("ServiceUUID = %q", req.ServiceUUID)
	}
	if len(req.Properties) != 1 || req.Properties[0] != "write" {
		t.Errorf("Properties = %v", req.Properties)
	}
	if paths[radio.ResponseCharUUID] != svc+"/char0013" {
		t.Errorf("Response path = %s", paths[radio.ResponseCharUUID])
	}
}
