package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeSnapshot is sent by the server right after a client connects
	TypeSnapshot MessageType = "snapshot"

	// Engine events broadcast to every client
	TypeDesignationPending MessageType = "designation_pending"
	TypeTriggerChanged     MessageType = "trigger_changed"
	TypeBindingAdded       MessageType = "binding_added"
	TypeBindingRemoved     MessageType = "binding_removed"
	TypeIntervalChanged    MessageType = "interval_changed"
	TypeRunningChanged     MessageType = "running_changed"

	// Commands sent by clients
	TypeDesignate   MessageType = "designate"
	TypeSetInterval MessageType = "set_interval"
	TypeRemove      MessageType = "remove"

	// TypeError answers a command that could not be applied
	TypeError MessageType = "error"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// BindingPayload describes one turbo binding
type BindingPayload struct {
	Input      string `json:"input"`
	IntervalMs int    `json:"interval_ms"`
	Running    bool   `json:"running"`
}

// TriggerPayload is the payload for TypeTriggerChanged
type TriggerPayload struct {
	Trigger string `json:"trigger"`
}

// SnapshotPayload is the payload for TypeSnapshot
type SnapshotPayload struct {
	ClientID            string           `json:"client_id,omitempty"`
	Trigger             string           `json:"trigger,omitempty"`
	AwaitingDesignation bool             `json:"awaiting_designation"`
	Bindings            []BindingPayload `json:"bindings"`
}

// RemovePayload is the payload for TypeRemove and TypeBindingRemoved
type RemovePayload struct {
	Input string `json:"input"`
}

// SetIntervalPayload is the payload for TypeSetInterval
type SetIntervalPayload struct {
	Input      string `json:"input"`
	IntervalMs int    `json:"interval_ms"`
}

// ErrorPayload is the payload for TypeError
type ErrorPayload struct {
	Command MessageType `json:"command"`
	Error   string      `json:"error"`
}

// DecodePayload converts the loosely typed payload of a decoded message into v.
func DecodePayload(msg Message, v interface{}) error {
	if msg.Payload == nil {
		return fmt.Errorf("%s message has no payload", msg.Type)
	}
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	return nil
}
