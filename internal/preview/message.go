// Package preview mirrors editor content into an isolated preview surface
// over a one-way message channel.
package preview

import (
	"encoding/json"
	"fmt"
)

// UpdateType is the only envelope type on the channel.
const UpdateType = "preview-update"

// Message is the envelope sent from editor to preview surface.
type Message struct {
	Type    string         `json:"type"`
	Content map[string]any `json:"content"`
}

// Encode serializes content as a preview-update envelope string.
func Encode(content map[string]any) (string, error) {
	if content == nil {
		content = map[string]any{}
	}
	payload, err := json.Marshal(Message{Type: UpdateType, Content: content})
	if err != nil {
		return "", fmt.Errorf("encode preview message: %w", err)
	}
	return string(payload), nil
}

// Decode parses raw as an envelope. Anything that is not a preview-update
// with an object content reports false.
func Decode(raw string) (Message, bool) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, false
	}
	if msg.Type != UpdateType || msg.Content == nil {
		return Message{}, false
	}
	return msg, true
}
