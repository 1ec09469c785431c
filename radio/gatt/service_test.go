package gatt

import (
	"testing"

	"github.com/user/aurapair/radio"
)

func TestBuildPairingService(t *testing.T) {
	table := Build(PairingService())

	req, ok := table.Lookup(radio.RequestCharUUID)
	if !ok {
		t.Fatal("Request characteristic missing")
	}
	// 0x0001 service, 0x0002 declaration, 0x0003 value
	if req.DeclarationHandle != 0x0002 || req.ValueHandle != 0x0003 {
		t.Errorf("Request handles = %#04x/%#04x", req.DeclarationHandle, req.ValueHandle)
	}
	if req.CCCDHandle != 0 {
		t.Error("Write-only characteristic should have no CCCD")
	}

	resp, ok := table.Lookup(radio.ResponseCharUUID)
	if !ok {
		t.Fatal("Response characteristic missing")
	}
	if resp.DeclarationHandle != 0x0004 || resp.ValueHandle != 0x0005 || resp.CCCDHandle != 0x0006 {
		t.Errorf("Response handles = %#04x/%#04x/%#04x", resp.DeclarationHandle, resp.ValueHandle, resp.CCCDHandle)
	}
	if resp.ServiceUUID != radio.PairingServiceUUID {
		t.Errorf("ServiceUUID = %q", resp.ServiceUUID)
	}
}

func TestTableRemove(t *testing.T) {
	table := Build(PairingService())
	table.Remove(radio.ResponseCharUUID)

	if _, ok := table.Lookup(radio.ResponseCharUUID); ok {
		t.Error("Removed characteristic still present")
	}
	chars := table.Characteristics()
	if len(chars) != 1 || chars[0].UUID != radio.RequestCharUUID {
		t.Errorf("Characteristics = %+v", chars)
	}
}

func TestPropertyNames(t *testing.T) {
	tests := []struct {
		props uint8
		want  []string
	}{
		{PropWrite, []string{"write"}},
		{PropRead | PropNotify, []string{"read", "notify"}},
		{PropWriteWithoutResponse | PropIndicate, []string{"write-without-response", "indicate"}},
		{0, nil},
	}
	for _, tt := range tests {
		got := PropertyNames(tt.props)
		if len(got) != len(tt.want) {
			t.Errorf("PropertyNames(%#02x) = %v, want %v", tt.props, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("PropertyNames(%#02x) = %v, want %v", tt.props, got, tt.want)
			}
		}
	}
}
