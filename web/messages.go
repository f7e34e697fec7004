package web

import (
	"encoding/json"
	"time"
)

// Event names of the real-time channel.
const (
	EventSendMessage    = "send-message"
	EventReceiveMessage = "receive-message"
	EventError          = "error"
)

// WireMessage is the envelope of every frame on the real-time channel.
type WireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendMessagePayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// ReceiveMessagePayload is broadcast to every connected session once a
// message has been persisted; clients filter by relevance themselves.
type ReceiveMessagePayload struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
	ChatID    string    `json:"chatId"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func newWireMessage(event string, payload any) (*WireMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &WireMessage{Event: event, Data: data}, nil
}
