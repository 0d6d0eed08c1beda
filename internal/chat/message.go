package chat

import (
	"encoding/json"
	"fmt"
)

// ReadyState is the connection lifecycle position of a Channel.
type ReadyState int

const (
	Connecting ReadyState = iota
	Connected
	Disconnected
	Reconnecting
	Errored
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	default:
		return "ERROR"
	}
}

// MessageType tags a frame.
type MessageType string

const (
	TypeChatMessage MessageType = "chat_message"
	TypeTypingStart MessageType = "typing_start"
	TypeTypingStop  MessageType = "typing_stop"
	TypeMessageRead MessageType = "message_read"
	TypeUserJoined  MessageType = "user_joined"
	TypeUserLeft    MessageType = "user_left"
)

// Message is one inbound frame.
type Message struct {
	Type      MessageType    `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Decode re-reads Data into v.
func (m Message) Decode(v any) error {
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("failed to re-encode %s payload: %w", m.Type, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Field returns the string field key of Data, or "".
func (m Message) Field(key string) string {
	s, _ := m.Data[key].(string)
	return s
}

// envelope is one outbound frame.
type envelope struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data"`
	Timestamp string      `json:"timestamp"`
}
