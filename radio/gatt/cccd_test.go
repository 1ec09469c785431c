package gatt

import (
	"errors"
	"testing"
)

const responseChar = "7a3c0003-5e1b-4d8e-9f2a-6c4b1d0e8f11"

func TestCCCDEncodeDecode(t *testing.T) {
	tests := []struct {
		name            string
		notifyEnabled   bool
		indicateEnabled bool
		expectedValue   uint16
	}{
		{"both disabled", false, false, CCCDNotificationsDisabled},
		{"notifications enabled", true, false, CCCDNotificationsEnabled},
		{"indications enabled", false, true, CCCDIndicationsEnabled},
		{"both enabled", true, true, CCCDNotificationsEnabled | CCCDIndicationsEnabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cccdValue := EncodeCCCDValue(tt.notifyEnabled, tt.indicateEnabled)
			value := uint16(cccdValue[0]) | (uint16(cccdValue[1]) << 8)
			if value != tt.expectedValue {
				t.Errorf("Expected CCCD value 0x%04X, got 0x%04X", tt.expectedValue, value)
			}

			notify, indicate, err := DecodeCCCDValue(cccdValue)
			if err != nil {
				t.Fatalf("DecodeCCCDValue failed: %v", err)
			}
			if notify != tt.notifyEnabled || indicate != tt.indicateEnabled {
				t.Errorf("Decoded (%v, %v), want (%v, %v)", notify, indicate, tt.notifyEnabled, tt.indicateEnabled)
			}
		})
	}
}

func TestCCCDManagerSubscriptions(t *testing.T) {
	cm := NewCCCDManager()

	if cm.IsNotifyEnabled(responseChar) {
		t.Fatal("Expected no subscription initially")
	}

	if err := cm.SetSubscription(responseChar, EncodeCCCDValue(true, false)); err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}
	if !cm.IsNotifyEnabled("7A3C0003-5E1B-4D8E-9F2A-6C4B1D0E8F11") {
		t.Error("Expected notify enabled (UUID lookups are case-insensitive)")
	}
	if cm.IsIndicateEnabled(responseChar) {
		t.Error("Indications should be disabled")
	}
	if cm.Count() != 1 {
		t.Errorf("Expected 1 subscription, got %d", cm.Count())
	}

	if err := cm.SetSubscription(responseChar, EncodeCCCDValue(false, false)); err != nil {
		t.Fatalf("SetSubscription failed: %v", err)
	}
	if cm.Count() != 0 {
		t.Errorf("Disabling should remove the subscription, have %d", cm.Count())
	}

	cm.SetSubscription(responseChar, EncodeCCCDValue(true, true))
	cm.Clear()
	if cm.IsNotifyEnabled(responseChar) {
		t.Error("Clear should drop subscriptions")
	}
}

func TestCCCDManagerInvalidLength(t *testing.T) {
	cm := NewCCCDManager()
	err := cm.SetSubscription(responseChar, []byte{0x01})
	if !errors.Is(err, ErrInvalidAttributeValueLength) {
		t.Fatalf("Expected ErrInvalidAttributeValueLength, got %v", err)
	}
}
