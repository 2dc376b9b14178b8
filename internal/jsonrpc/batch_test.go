package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIncomingSingleObject(t *testing.T) {
	entries, isSingle, fail := ParseIncoming([]byte(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
	require.Nil(t, fail)
	assert.True(t, isSingle)
	require.Len(t, entries, 1)
	assert.Equal(t, "eth_blockNumber", entries[0].Method)
	assert.Equal(t, IntID(1), entries[0].ID)
}

func TestParseIncomingBatch(t *testing.T) {
	entries, isSingle, fail := ParseIncoming([]byte(`[
		{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1},
		{"jsonrpc":"2.0","method":"eth_chainId","params":[],"id":"two"}
	]`))
	require.Nil(t, fail)
	assert.False(t, isSingle)
	require.Len(t, entries, 2)
	assert.Equal(t, IntID(1), entries[0].ID)
	assert.Equal(t, StringID("two"), entries[1].ID)
}

func TestParseIncomingEmptyBatch(t *testing.T) {
	entries, isSingle, fail := ParseIncoming([]byte(`[]`))
	require.Nil(t, fail)
	assert.False(t, isSingle)
	assert.Len(t, entries, 0)
}

func TestParseIncomingGarbageTopLevel(t *testing.T) {
	_, isSingle, fail := ParseIncoming([]byte(`not json`))
	require.NotNil(t, fail)
	assert.True(t, isSingle)
	assert.Equal(t, CodeInvalidRequest, fail.Err.Code)
}

func TestParseIncomingScalarTopLevel(t *testing.T) {
	_, _, fail := ParseIncoming([]byte(`42`))
	require.NotNil(t, fail)
	assert.Equal(t, CodeInvalidRequest, fail.Err.Code)
}

func TestParseEntryMissingMethod(t *testing.T) {
	entries, _, fail := ParseIncoming([]byte(`{"jsonrpc":"2.0","id":5}`))
	require.Nil(t, fail)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Fail)
	assert.Equal(t, CodeMethodNotFound, entries[0].Fail.Err.Code)
	assert.Equal(t, IntID(5), entries[0].Fail.ID)
}

func TestParseEntryMalformedID(t *testing.T) {
	entries, _, fail := ParseIncoming([]byte(`{"jsonrpc":"2.0","method":"eth_blockNumber","id":1.5}`))
	require.Nil(t, fail)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Fail)
	assert.Equal(t, CodeInvalidRequest, entries[0].Fail.Err.Code)
	assert.True(t, entries[0].Fail.ID.IsAbsent())
}

func TestAssembleSingle(t *testing.T) {
	out, err := Assemble(true, []Response{ResultResponse(IntID(1), json.RawMessage(`"0x1"`))})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "0x1", decoded["result"])
}

func TestAssembleBatchPreservesOrder(t *testing.T) {
	out, err := Assemble(false, []Response{
		ResultResponse(IntID(1), json.RawMessage(`"a"`)),
		ResultResponse(IntID(2), json.RawMessage(`"b"`)),
	})
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "a", decoded[0]["result"])
	assert.Equal(t, "b", decoded[1]["result"])
}

func TestAssembleSingleWithWrongLengthPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = Assemble(true, []Response{})
	})
}
