package server_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rpccache/gateway/internal/cache"
	"github.com/rpccache/gateway/internal/cachepolicy"
	"github.com/rpccache/gateway/internal/chain"
	"github.com/rpccache/gateway/internal/dispatcher"
	"github.com/rpccache/gateway/internal/server"
	"github.com/rpccache/gateway/internal/upstream"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newTestServer(t *testing.T, addr, authToken string, upstreamURL string, limiter *rate.Limiter) *server.Server {
	t.Helper()
	cs := &chain.State{
		Name:        "mainnet",
		UpstreamURL: upstreamURL,
		ChainID:     "1",
		Backend:     cache.NewMemoryBackend(),
		Policies:    cachepolicy.NewRegistry(),
		Limiter:     limiter,
	}
	state := &server.AppState{Chains: map[string]*chain.State{"MAINNET": cs}}
	d := dispatcher.New(upstream.New(), zap.NewNop())
	srv := server.New(zap.NewNop(), addr, state, d, authToken)

	go func() {
		if err := srv.Start(); err != nil {
			t.Logf("server error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	time.Sleep(50 * time.Millisecond)
	return srv
}

func TestServerRoutesToChainByPathSegment(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1234"}]`))
	}))
	defer upstream.Close()

	newTestServer(t, ":18081", "", upstream.URL, nil)

	resp, err := http.Post("http://localhost:18081/mainnet", "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerUnknownChainReturns404(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1"}]`))
	}))
	defer upstream.Close()

	newTestServer(t, ":18082", "", upstream.URL, nil)

	resp, err := http.Post("http://localhost:18082/nosuchchain", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerChainLookupIsCaseInsensitive(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1"}]`))
	}))
	defer upstream.Close()

	newTestServer(t, ":18083", "", upstream.URL, nil)

	resp, err := http.Post("http://localhost:18083/MainNet", "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerAuthGatesRequests(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1"}]`))
	}))
	defer upstream.Close()

	newTestServer(t, ":18084", "secret-token", upstream.URL, nil)

	req, _ := http.NewRequest(http.MethodPost, "http://localhost:18084/mainnet",
		bytes.NewBufferString(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req2, _ := http.NewRequest(http.MethodPost, "http://localhost:18084/mainnet",
		bytes.NewBufferString(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
	req2.Header.Set("Authorization", "Bearer secret-token")
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestServerHealthEndpointBypassesAuth(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1"}]`))
	}))
	defer upstream.Close()

	newTestServer(t, ":18085", "secret-token", upstream.URL, nil)

	resp, err := http.Get("http://localhost:18085/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerServesEthClientOverJSONRPC(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1234"}]`))
	}))
	defer upstream.Close()

	newTestServer(t, ":18087", "", upstream.URL, nil)

	rpcClient, err := rpc.Dial("http://localhost:18087/mainnet")
	require.NoError(t, err)
	defer rpcClient.Close()

	var result string
	err = rpcClient.CallContext(context.Background(), &result, "eth_blockNumber")
	require.NoError(t, err)
	require.Equal(t, "0x1234", result)
}

func TestServerRateLimitBlocksBurst(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"jsonrpc":"2.0","id":1,"result":"0x1"}]`))
	}))
	defer upstream.Close()

	limiter := rate.NewLimiter(rate.Limit(1), 1)
	newTestServer(t, ":18086", "", upstream.URL, limiter)

	send := func(ctx context.Context) int {
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, "http://localhost:18086/mainnet",
			bytes.NewBufferString(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return http.StatusTooManyRequests
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, send(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Equal(t, http.StatusTooManyRequests, send(ctx))
}
