// Package jsonrpc implements the JSON-RPC 2.0 envelope: request ids,
// request/response shapes, batch parsing and assembly, and the standard
// error codes.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"math"
)

// IDKind discriminates the three forms a JSON-RPC id may take. The zero
// value is KindAbsent, matching a notification with no id supplied.
type IDKind int

const (
	KindAbsent IDKind = iota
	KindInteger
	KindString
)

// ID is a JSON-RPC request id. Integer and string ids are distinct even
// when textually equal ("1" != 1); the kind tag participates in equality
// and in use as a map key, so ID is safe to use directly as a map key.
type ID struct {
	kind IDKind
	num  int64
	str  string
}

// AbsentID is the id of a notification (no id was supplied by the client).
var AbsentID = ID{kind: KindAbsent}

// IntID builds an integer-valued id.
func IntID(v int64) ID { return ID{kind: KindInteger, num: v} }

// StringID builds a string-valued id.
func StringID(v string) ID { return ID{kind: KindString, str: v} }

// Kind reports which variant this id holds.
func (id ID) Kind() IDKind { return id.kind }

// IsAbsent reports whether this id represents a notification.
func (id ID) IsAbsent() bool { return id.kind == KindAbsent }

// ParseID constructs an ID from an arbitrary JSON value. Per the
// JSON-RPC id domain: null maps to the absent variant, a JSON string maps
// to a string id, and an integral JSON number maps to an integer id. Any
// other shape - booleans, objects, arrays, or a number with a fractional
// part - is rejected.
func ParseID(raw json.RawMessage) (ID, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return AbsentID, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return StringID(s), nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f != math.Trunc(f) {
			return ID{}, fmt.Errorf("jsonrpc: id %s is not integral", raw)
		}
		return IntID(int64(f)), nil
	}

	return ID{}, fmt.Errorf("jsonrpc: id %s is neither null, string, nor integer", raw)
}

// MarshalJSON serializes the id back to its wire form: null, a JSON
// string, or a JSON number, inverse to ParseID.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case KindAbsent:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(id.str)
	case KindInteger:
		return json.Marshal(id.num)
	default:
		return nil, fmt.Errorf("jsonrpc: id has unknown kind %d", id.kind)
	}
}

// UnmarshalJSON is the decode counterpart used when an ID sits inside a
// parsed struct, e.g. an upstream response.
func (id *ID) UnmarshalJSON(data []byte) error {
	parsed, err := ParseID(data)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ID) String() string {
	switch id.kind {
	case KindAbsent:
		return "<absent>"
	case KindString:
		return id.str
	case KindInteger:
		return fmt.Sprintf("%d", id.num)
	default:
		return "<invalid>"
	}
}
