package cachepolicy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(t *testing.T, method string) Policy {
	t.Helper()
	reg := NewRegistry()
	p, ok := reg.Lookup(method)
	require.True(t, ok, "expected %s to be registered", method)
	return p
}

func TestTransactionByHashSkipsWhilePending(t *testing.T) {
	p := lookup(t, "eth_getTransactionByHash")

	key, skip, err := p.ExtractKey(json.RawMessage(`["0xabc"]`))
	require.NoError(t, err)
	require.False(t, skip)
	require.NotEmpty(t, key)

	_, cacheable, err := p.ExtractValue(json.RawMessage(`{"blockHash":null,"blockNumber":null}`))
	require.NoError(t, err)
	assert.False(t, cacheable)

	value, cacheable, err := p.ExtractValue(json.RawMessage(`{"blockHash":"0x1","blockNumber":"0x2"}`))
	require.NoError(t, err)
	assert.True(t, cacheable)
	assert.NotEmpty(t, value)
}

func TestTransactionReceiptCachesOnceNonNull(t *testing.T) {
	p := lookup(t, "eth_getTransactionReceipt")

	_, cacheable, err := p.ExtractValue(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.False(t, cacheable)

	_, cacheable, err = p.ExtractValue(json.RawMessage(`{"status":"0x1"}`))
	require.NoError(t, err)
	assert.True(t, cacheable)
}

func TestStorageAtSkipsSensitiveBlockTag(t *testing.T) {
	p := lookup(t, "eth_getStorageAt")

	_, skip, err := p.ExtractKey(json.RawMessage(`["0xaddr", "0x0", "latest"]`))
	require.NoError(t, err)
	assert.True(t, skip)

	_, skip, err = p.ExtractKey(json.RawMessage(`["0xaddr", "0x0", "0x10"]`))
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestStorageAtNormalizesEquivalentBlockNumbers(t *testing.T) {
	p := lookup(t, "eth_getStorageAt")

	key1, _, err := p.ExtractKey(json.RawMessage(`["0xaddr", "0x0", "0x10"]`))
	require.NoError(t, err)
	key2, _, err := p.ExtractKey(json.RawMessage(`["0xaddr", "0x0", "0x010"]`))
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestBlockByNumberSkipsLatest(t *testing.T) {
	p := lookup(t, "eth_getBlockByNumber")
	_, skip, err := p.ExtractKey(json.RawMessage(`["latest", true]`))
	require.NoError(t, err)
	assert.True(t, skip)
}

func TestBlockByHashAlwaysCacheable(t *testing.T) {
	p := lookup(t, "eth_getBlockByHash")
	_, skip, err := p.ExtractKey(json.RawMessage(`["0xblockhash", false]`))
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestGetLogsRequiresBoundedToBlock(t *testing.T) {
	p := lookup(t, "eth_getLogs")

	_, skip, err := p.ExtractKey(json.RawMessage(`[{"fromBlock":"0x1"}]`))
	require.NoError(t, err)
	assert.True(t, skip, "missing toBlock must skip cache")

	_, skip, err = p.ExtractKey(json.RawMessage(`[{"fromBlock":"0x1","toBlock":"pending"}]`))
	require.NoError(t, err)
	assert.True(t, skip, "sensitive toBlock must skip cache")

	_, skip, err = p.ExtractKey(json.RawMessage(`[{"fromBlock":"0x1","toBlock":"0x10"}]`))
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestGetLogsEmptyParamsDoesNotPanic(t *testing.T) {
	p := lookup(t, "eth_getLogs")
	_, skip, err := p.ExtractKey(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestTraceTransactionAlwaysCacheableOnceMined(t *testing.T) {
	p := lookup(t, "debug_traceTransaction")

	value, cacheable, err := p.ExtractValue(json.RawMessage(`{"gas":"0x1"}`))
	require.NoError(t, err)
	assert.True(t, cacheable)
	assert.NotEmpty(t, value)
}
