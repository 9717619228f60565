package router

import "encoding/json"

// ClientMessage is the frame every client-to-server message arrives in.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
