package cachepolicy

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// isBlockTagSensitive reports whether a block parameter refers to a
// chain-head-relative tag whose result is not yet stable. Per spec,
// extractKey MUST SkipCache any call carrying one of these.
func isBlockTagSensitive(tag string) bool {
	switch strings.ToLower(tag) {
	case "latest", "pending", "earliest", "safe", "finalized":
		return true
	default:
		return false
	}
}

// normalizeHex canonicalizes a 0x-prefixed hex string so that "0x01" and
// "0x1" (and differing case) hash identically: it lowercases the string
// and strips redundant leading zeros from the digit portion, without
// losing the numeric value, using big.Int for any length of input.
func normalizeHex(s string) string {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return strings.ToLower(s)
	}
	digits := s[2:]
	if digits == "" {
		return "0x0"
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		// Not a valid hex integer: just lowercase. Addresses and hashes do
		// parse as integers above, so their leading zeros are stripped too.
		return "0x" + strings.ToLower(digits)
	}
	return "0x" + n.Text(16)
}

// canonicalize recursively sorts object keys (via a stable (k, v) pair
// list) so that semantically identical params hash the same regardless
// of field order, and lowercases/normalizes any hex-looking string leaves.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		type pair struct {
			K string `json:"k"`
			V any    `json:"v"`
		}
		pairs := make([]pair, len(keys))
		for i, k := range keys {
			pairs[i] = pair{K: k, V: canonicalize(t[k])}
		}
		return pairs
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	case string:
		if strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X") {
			return normalizeHex(t)
		}
		return t
	default:
		return v
	}
}

// cacheKey builds the opaque key string for a method given its already
// order-sensitive parameter list: canonicalize then JSON-encode. The
// format is opaque to callers, but deterministic across process restarts
// for the same logical inputs, per spec.
func cacheKey(method string, args []any) (string, error) {
	canon := canonicalize(args)
	b, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("cachepolicy: failed to canonicalize params for %s: %w", method, err)
	}
	return method + ":" + string(b), nil
}

// decodeArgs unmarshals a params value (array, object, or absent) into a
// positional slice. An object is wrapped as a one-element slice and absent
// params decode to a nil slice, so every policy can index by position
// uniformly.
func decodeArgs(params json.RawMessage) ([]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	var args []any
	if err := json.Unmarshal(params, &args); err == nil {
		return args, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(params, &obj); err == nil {
		return []any{obj}, nil
	}
	return nil, fmt.Errorf("cachepolicy: params is neither an array nor an object: %s", params)
}

// stringArg returns args[i] as a string, and whether it was present and
// was in fact a string.
func stringArg(args []any, i int) (string, bool) {
	if i < 0 || i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

// isResultNull reports whether a raw JSON result is the null literal or
// absent, the "unknown/absent upstream state" a cache must never adopt.
func isResultNull(result json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(result))
	return trimmed == "" || trimmed == "null"
}
