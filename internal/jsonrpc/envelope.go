package jsonrpc

import "encoding/json"

// Standard JSON-RPC 2.0 error codes used by this proxy. Custom upstream
// errors are forwarded verbatim and do not use these constants.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// Error is a JSON-RPC error object: exactly one of Result or Error is set
// on the owning Response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Request is a parsed JSON-RPC request. Params may be nil (absent), or a
// JSON array/object, passed through untouched.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// Response is a JSON-RPC response: exactly one of Result or Err is set.
type Response struct {
	ID     ID
	Result json.RawMessage
	Err    *Error
}

// wireResponse is the JSON shape a Response marshals to / unmarshals from.
type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// MarshalJSON renders the standard jsonrpc/id/result-or-error envelope.
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireResponse{
		JSONRPC: "2.0",
		ID:      r.ID,
		Result:  r.Result,
		Error:   r.Err,
	})
}

// UnmarshalJSON parses a wire response, e.g. one returned by an upstream.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.Result = w.Result
	r.Err = w.Error
	return nil
}

// ResultResponse builds a successful response.
func ResultResponse(id ID, result json.RawMessage) Response {
	return Response{ID: id, Result: result}
}

// ErrorResponse builds a standard-coded error response.
func ErrorResponse(id ID, code int, message string, data json.RawMessage) Response {
	return Response{ID: id, Err: &Error{Code: code, Message: message, Data: data}}
}

// CustomErrorResponse forwards an upstream's error object verbatim.
func CustomErrorResponse(id ID, upstreamErr json.RawMessage) Response {
	var e Error
	if err := json.Unmarshal(upstreamErr, &e); err != nil {
		// Upstream error did not match the standard shape; forward it as
		// the Data of an internal error rather than dropping it.
		return ErrorResponse(id, CodeInternalError, "upstream returned a malformed error object", upstreamErr)
	}
	return Response{ID: id, Err: &e}
}

func invalidRequestData(reason string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"reason": reason})
	return b
}

// InternalErrorResponse builds a -32603 response carrying a reason, used
// whenever the dispatcher must surface a backend-acquire, upstream
// transport, or cache-extraction failure to the client.
func InternalErrorResponse(id ID, reason string) Response {
	return ErrorResponse(id, CodeInternalError, "internal error", invalidRequestData(reason))
}
