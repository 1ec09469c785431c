package gatt

import (
	"encoding/binary"
	"strings"
	"sync"
)

// CCCD (Client Characteristic Configuration Descriptor) values
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
)

// ErrInvalidAttributeValueLength is returned when a CCCD value is not 2 bytes
var ErrInvalidAttributeValueLength = &Error{Code: 0x0D, Description: "Invalid Attribute Value Length"}

// Error represents a GATT error
type Error struct {
	Code        uint8
	Description string
}

func (e *Error) Error() string {
	return e.Description
}

// CCCDManager tracks which characteristics one connection has enabled
// notifications or indications on. State is per connection and is dropped
// when the connection closes.
type CCCDManager struct {
	mu            sync.RWMutex
	subscriptions map[string]uint16 // lowercase characteristic UUID -> CCCD value
}

// NewCCCDManager creates a new CCCD manager for a connection
func NewCCCDManager() *CCCDManager {
	return &CCCDManager{
		subscriptions: make(map[string]uint16),
	}
}

// SetSubscription applies a CCCD write (2 bytes, little-endian).
func (cm *CCCDManager) SetSubscription(charUUID string, cccdValue []byte) error {
	if len(cccdValue) != 2 {
		return ErrInvalidAttributeValueLength
	}
	value := binary.LittleEndian.Uint16(cccdValue)

	cm.mu.Lock()
	defer cm.mu.Unlock()

	key := strings.ToLower(charUUID)
	if value&(CCCDNotificationsEnabled|CCCDIndicationsEnabled) == 0 {
		delete(cm.subscriptions, key)
		return nil
	}
	cm.subscriptions[key] = value
	return nil
}

// IsNotifyEnabled returns true if notifications are enabled for a characteristic
func (cm *CCCDManager) IsNotifyEnabled(charUUID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.subscriptions[strings.ToLower(charUUID)]&CCCDNotificationsEnabled != 0
}

// IsIndicateEnabled returns true if indications are enabled for a characteristic
func (cm *CCCDManager) IsIndicateEnabled(charUUID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.subscriptions[strings.ToLower(charUUID)]&CCCDIndicationsEnabled != 0
}

// Clear removes all subscriptions (called when connection is closed)
func (cm *CCCDManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.subscriptions = make(map[string]uint16)
}

// Count returns the number of active subscriptions
func (cm *CCCDManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.subscriptions)
}

// EncodeCCCDValue converts subscription state to CCCD value bytes (little-endian)
func EncodeCCCDValue(notifyEnabled, indicateEnabled bool) []byte {
	var value uint16
	if notifyEnabled {
		value |= CCCDNotificationsEnabled
	}
	if indicateEnabled {
		value |= CCCDIndicationsEnabled
	}
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, value)
	return out
}

// DecodeCCCDValue parses CCCD value bytes to notification/indication flags
func DecodeCCCDValue(cccdValue []byte) (notifyEnabled, indicateEnabled bool, err error) {
	if len(cccdValue) != 2 {
		return false, false, ErrInvalidAttributeValueLength
	}
	value := binary.LittleEndian.Uint16(cccdValue)
	return value&CCCDNotificationsEnabled != 0, value&CCCDIndicationsEnabled != 0, nil
}
