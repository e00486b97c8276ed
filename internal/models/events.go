package models

import "encoding/json"

// Client frame ops on the realtime websocket.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpTyping      = "typing"
	OpPing        = "ping"
)

// Server frame types.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
	FramePong     = "pong"
)

// ClientFrame is sent by clients over the realtime websocket.
type ClientFrame struct {
	Op     string `json:"op"`
	Topic  string `json:"topic,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
	Typing bool   `json:"typing,omitempty"`
}

// ServerFrame carries a full snapshot of a topic, or an error for it.
type ServerFrame struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}
