package requester

import "encoding/json"

// ProcessPath is the gateway endpoint receiving work items.
const ProcessPath = "/process"

// ProcessPayload is the body sent to the process endpoint.
type ProcessPayload struct {
	Value int    `json:"value"`
	Msg   string `json:"msg"`
}

// DefaultPayload is the payload every simulated user sends.
var DefaultPayload = ProcessPayload{Value: 123, Msg: "hello"}

// Encode returns the JSON encoding of the payload.
func (p ProcessPayload) Encode() []byte {
	// Cannot fail: the struct only holds an int and a string.
	body, _ := json.Marshal(p)
	return body
}
