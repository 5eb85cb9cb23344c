// Package hub fans estimate updates out to websocket subscribers through a
// single goroutine that owns the client set.
package hub

import "encoding/json"

// Message is one pre-encoded JSON text frame.
type Message struct {
	Data []byte
}

// NewJSONMessage encodes v into a Message.
func NewJSONMessage(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
