package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// Entry is the result of parsing one element of an incoming batch. Fail
// is non-nil when the entry itself is malformed; in that case ID, Method
// and Params should not be trusted beyond what Fail already reports.
type Entry struct {
	ID     ID
	Method string
	Params json.RawMessage
	Fail   *Response
}

// ParseIncoming implements the envelope parse contract: a JSON object is
// a one-entry batch with isSingle true; a JSON array (including empty)
// is an N-entry batch with isSingle false; anything else yields a
// top-level parse failure, reported as a single InvalidRequest response
// with id null.
func ParseIncoming(body []byte) (entries []Entry, isSingle bool, topLevelFailure *Response) {
	trimmed := bytes.TrimSpace(body)

	var raw json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		resp := ErrorResponse(AbsentID, CodeInvalidRequest, "invalid request", invalidRequestData(err.Error()))
		return nil, true, &resp
	}

	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		return []Entry{parseEntry(raw)}, true, nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			resp := ErrorResponse(AbsentID, CodeInvalidRequest, "invalid request", invalidRequestData(err.Error()))
			return nil, true, &resp
		}
		out := make([]Entry, len(items))
		for i, item := range items {
			out[i] = parseEntry(item)
		}
		return out, false, nil
	default:
		resp := ErrorResponse(AbsentID, CodeInvalidRequest, "invalid request", nil)
		return nil, true, &resp
	}
}

// parseEntry extracts (id, method, params) from a single batch element,
// per the per-entry parse contract: a missing/invalid id fails the entry
// with InvalidRequest and id reported as null; a missing or non-string
// method fails with MethodNotFound with the id preserved; params passes
// through unexamined.
func parseEntry(raw json.RawMessage) Entry {
	var obj struct {
		ID     json.RawMessage `json:"id"`
		Method json.RawMessage `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		fail := ErrorResponse(AbsentID, CodeInvalidRequest, "invalid request", invalidRequestData(err.Error()))
		return Entry{ID: AbsentID, Fail: &fail}
	}

	if len(obj.ID) == 0 {
		fail := ErrorResponse(AbsentID, CodeInvalidRequest, "invalid request", invalidRequestData("id is missing"))
		return Entry{ID: AbsentID, Fail: &fail}
	}
	id, err := ParseID(obj.ID)
	if err != nil {
		fail := ErrorResponse(AbsentID, CodeInvalidRequest, "invalid request", invalidRequestData(err.Error()))
		return Entry{ID: AbsentID, Fail: &fail}
	}

	var method string
	if len(obj.Method) == 0 || json.Unmarshal(obj.Method, &method) != nil {
		fail := ErrorResponse(id, CodeMethodNotFound, "method not found", nil)
		return Entry{ID: id, Fail: &fail}
	}

	return Entry{ID: id, Method: method, Params: obj.Params}
}

// Assemble renders the final client-visible body: a single serialized
// object when isSingle is true, otherwise a JSON array in the original
// request order, regardless of correlation issues encountered along the
// way.
func Assemble(isSingle bool, responses []Response) (json.RawMessage, error) {
	if isSingle {
		if len(responses) != 1 {
			panic("jsonrpc: Assemble called with isSingle but len(responses) != 1")
		}
		return json.Marshal(responses[0])
	}
	return json.Marshal(responses)
}
