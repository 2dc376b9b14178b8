package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rpccache/gateway/internal/jsonrpc"
	"github.com/rpccache/gateway/internal/upstream"
)

// ProbeChainID issues an eth_chainId-shaped call against url and returns
// the decoded chain id as a normalized hex string, suitable for embedding
// in every cache namespace belonging to this chain. Probe failure is
// fatal to startup, per spec.
func ProbeChainID(ctx context.Context, client *upstream.Client, url string) (string, error) {
	req := jsonrpc.OutgoingRequest{
		ID:     jsonrpc.IntID(1),
		Method: "eth_chainId",
	}

	responses, err := client.Send(ctx, url, []jsonrpc.OutgoingRequest{req})
	if err != nil {
		return "", fmt.Errorf("chain: failed to probe chain id at %s: %w", url, err)
	}
	if len(responses) != 1 {
		return "", fmt.Errorf("chain: expected exactly one response probing chain id at %s, got %d", url, len(responses))
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(responses[0], &resp); err != nil {
		return "", fmt.Errorf("chain: failed to parse chain id probe response from %s: %w", url, err)
	}
	if resp.Err != nil {
		return "", fmt.Errorf("chain: probe of %s returned an error: %s", url, resp.Err.Message)
	}

	var chainID string
	if err := json.Unmarshal(resp.Result, &chainID); err != nil {
		return "", fmt.Errorf("chain: failed to decode chain id from %s: %w", url, err)
	}
	digits := strings.TrimPrefix(strings.ToLower(chainID), "0x")
	n, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return "", fmt.Errorf("chain: chain id %q from %s is not a hex integer: %w", chainID, url, err)
	}
	return "0x" + strconv.FormatUint(n, 16), nil
}
