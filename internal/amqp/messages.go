package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expensemanager/internal/ledger"
)

// ChangeMessage announces that a ledger entity changed. Consumers reload the
// entity from their own store; the message carries no payload.
type ChangeMessage struct {
	Entity    string    `json:"entity"`
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage creates a message for change stamped with the current time.
func NewChangeMessage(change ledger.Change) *ChangeMessage {
	return &ChangeMessage{
		Entity:    change.Entity,
		ID:        change.ID,
		Timestamp: time.Now(),
	}
}

// Change converts the message back into a ledger change.
func (m *ChangeMessage) Change() ledger.Change {
	return ledger.Change{Entity: m.Entity, ID: m.ID}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects one without an entity.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Entity == "" {
		return nil, fmt.Errorf("change message without entity")
	}
	return &msg, nil
}
