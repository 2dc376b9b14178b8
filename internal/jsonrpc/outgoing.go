package jsonrpc

import "encoding/json"

// OutgoingRequest is the shape posted to an upstream: the original id,
// method and params carried forward unchanged so correlation by id
// survives the round-trip.
type OutgoingRequest struct {
	ID     ID
	Method string
	Params json.RawMessage
}

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON renders the standard jsonrpc/id/method/params envelope.
func (r OutgoingRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRequest{
		JSONRPC: "2.0",
		ID:      r.ID,
		Method:  r.Method,
		Params:  r.Params,
	})
}
