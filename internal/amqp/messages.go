package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Action says what happened to a connected source.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

var ErrInvalidMessage = errors.New("invalid connection message")

// ConnectionChangedMessage announces that a source was added or removed. The
// worker reloads everything else from the registry.
type ConnectionChangedMessage struct {
	SourceID  string    `json:"source_id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewConnectionChangedMessage(sourceID string, action Action) *ConnectionChangedMessage {
	return &ConnectionChangedMessage{
		SourceID:  sourceID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ConnectionChangedMessage) Validate() error {
	if m.SourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrInvalidMessage)
	}
	switch m.Action {
	case ActionAdded, ActionRemoved:
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidMessage, m.Action)
	}
}

func (m *ConnectionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ConnectionChangedMessageFromJSON decodes and validates a message body.
func ConnectionChangedMessageFromJSON(data []byte) (*ConnectionChangedMessage, error) {
	var msg ConnectionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
