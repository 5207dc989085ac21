// Package eventfeed streams bus events to presentation clients over a
// websocket and accepts outbound commands from them.
package eventfeed

import (
	"encoding/json"
	"time"
)

// Message types exchanged with feed clients.
const (
	TypeHello         = "hello"
	TypeCommand       = "command"
	TypeCommandResult = "command_result"
	TypeError         = "error"
)

// Message is the JSON envelope used in both directions. Bus events carry the
// topic name as Type and the event payload as Data.
type Message struct {
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Data      any             `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hello is sent to every client right after it connects.
type Hello struct {
	ClientID string `json:"client_id"`
	Status   any    `json:"status,omitempty"`
}

// CommandResult reports how many host peers received a command frame.
type CommandResult struct {
	Delivered int `json:"delivered"`
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return json.Marshal(msg)
}
