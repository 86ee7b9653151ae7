package amqp

import (
	"encoding/json"
	"time"
)

// KeySyncMessage asks the sync worker to mirror one family key to the
// backend. It carries only the coordinates; the worker reads the
// current value from the local store, so a burst of writes to the same
// key collapses into pushing the latest state.
type KeySyncMessage struct {
	FamilyID  string    `json:"family_id"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// NewKeySyncMessage creates a sync message for one family key.
func NewKeySyncMessage(familyID, key string) *KeySyncMessage {
	return &KeySyncMessage{
		FamilyID:  familyID,
		Key:       key,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *KeySyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// KeySyncMessageFromJSON creates a message from JSON bytes.
func KeySyncMessageFromJSON(data []byte) (*KeySyncMessage, error) {
	var msg KeySyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
