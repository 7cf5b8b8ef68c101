package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-insight/internal/circuitbreaker"
	"github.com/wallet-insight/internal/config"
	apperrors "github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/types"
)

func testProviderConfig(url string) config.ProviderConfig {
	return config.ProviderConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	}
}

func fastRetries(c *httpClient) {
	c.retry.InitialDelay = time.Millisecond
	c.retry.MaxDelay = 5 * time.Millisecond
}

func TestEtherscanClient_FetchTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "txlist", r.URL.Query().Get("action"))
		assert.Equal(t, "0xabc", r.URL.Query().Get("address"))
		assert.Equal(t, "25", r.URL.Query().Get("offset"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[{"hash":"0x1","timeStamp":"1700000000"}]}`))
	}))
	defer srv.Close()

	client := NewEtherscanClient(testProviderConfig(srv.URL))
	raw, err := client.FetchTransactions(context.Background(), "0xabc", 25)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"hash":"0x1","timeStamp":"1700000000"}]`, string(raw))
	assert.Equal(t, int64(1), client.Health().SuccessfulReqs)
}

func TestEtherscanClient_NoTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	}))
	defer srv.Close()

	client := NewEtherscanClient(testProviderConfig(srv.URL))
	raw, err := client.FetchTransactions(context.Background(), "0xabc", 0)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestEtherscanClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))
	}))
	defer srv.Close()

	client := NewEtherscanClient(testProviderConfig(srv.URL))
	_, err := client.FetchTransactions(context.Background(), "0xabc", 0)
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestEtherscanClient_MissingKey(t *testing.T) {
	cfg := testProviderConfig("http://127.0.0.1:0")
	cfg.APIKey = ""
	_, err := NewEtherscanClient(cfg).FetchTransactions(context.Background(), "0xabc", 0)
	require.Error(t, err)
}

func TestEtherscanClient_FetchTokenTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tokentx", r.URL.Query().Get("action"))
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[{"hash":"0x1","tokenSymbol":"USDC","tokenDecimal":"6","value":"1000000"}]}`))
	}))
	defer srv.Close()

	transfers, err := NewEtherscanClient(testProviderConfig(srv.URL)).FetchTokenTransfers(context.Background(), "0xabc", 10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "USDC", transfers[0].TokenSymbol)
	assert.Equal(t, "6", transfers[0].TokenDecimal)
}

func TestBlockCypherClient_FetchAddressTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ltc/main/addrs/LQ3abc/full", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"address":"LQ3abc","txs":[{"hash":"h1"},{"hash":"h2"}]}`))
	}))
	defer srv.Close()

	client := NewBlockCypherClient(testProviderConfig(srv.URL))
	raw, err := client.FetchAddressTransactions(context.Background(), types.ChainLTC, "LQ3abc", 50)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"hash":"h1"},{"hash":"h2"}]`, string(raw))
}

func TestBlockCypherClient_MissingTxs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":"1abc"}`))
	}))
	defer srv.Close()

	raw, err := NewBlockCypherClient(testProviderConfig(srv.URL)).
		FetchAddressTransactions(context.Background(), types.ChainBTC, "1abc", 0)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestBlockCypherClient_UnsupportedChain(t *testing.T) {
	_, err := NewBlockCypherClient(testProviderConfig("http://127.0.0.1:0")).
		FetchAddressTransactions(context.Background(), "DOGE", "D123", 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsUserError(err))
}

func TestBlockCypherClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"txs":[]}`))
	}))
	defer srv.Close()

	client := NewBlockCypherClient(testProviderConfig(srv.URL))
	fastRetries(client.http)

	raw, err := client.FetchAddressTransactions(context.Background(), types.ChainBTC, "1abc", 0)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	health := client.Health()
	assert.Equal(t, int64(2), health.FailedReqs)
	assert.Equal(t, 0, health.ConsecutiveFails)
	assert.True(t, health.IsHealthy)
}

func TestBlockCypherClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewBlockCypherClient(testProviderConfig(srv.URL))
	fastRetries(client.http)

	_, err := client.FetchAddressTransactions(context.Background(), types.ChainBTC, "1abc", 0)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClient_CircuitBreakerFailsFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testProviderConfig(srv.URL)
	cfg.MaxRetries = 1
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Hour
	client := NewBlockCypherClient(cfg)

	for i := 0; i < 2; i++ {
		_, err := client.FetchAddressTransactions(context.Background(), types.ChainBTC, "1abc", 0)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, string(circuitbreaker.StateOpen), client.Health().CircuitState)

	_, err := client.FetchAddressTransactions(context.Background(), types.ChainBTC, "1abc", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCoinGeckoClient_GetUSDPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "test-key", r.Header.Get("x-cg-demo-api-key"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":65000.5},"ethereum":{"usd":3200}}`))
	}))
	defer srv.Close()

	prices, err := NewCoinGeckoClient(testProviderConfig(srv.URL)).
		GetUSDPrices(context.Background(), types.ChainETH, types.ChainBTC, "DOGE")
	require.NoError(t, err)
	assert.Equal(t, map[types.ChainSymbol]float64{types.ChainBTC: 65000.5, types.ChainETH: 3200}, prices)
}

func TestMoralisClient_GetTokenBalances(t *testing.T) {
	const addr = "0x1111111111111111111111111111111111111111"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+addr+"/erc20", r.URL.Path)
		assert.Equal(t, "eth", r.URL.Query().Get("chain"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`[
			{"token_address":"0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48","symbol":"USDC","name":"USD Coin","decimals":6,"balance":"12500000","possible_spam":false},
			{"token_address":"0xdead","symbol":"SCAM","name":"Scam","decimals":18,"balance":"garbage","possible_spam":true}
		]`))
	}))
	defer srv.Close()

	holdings, err := NewMoralisClient(testProviderConfig(srv.URL)).GetTokenBalances(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "USDC", holdings[0].Symbol)
	assert.InDelta(t, 12.5, holdings[0].Balance, 1e-12)
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", holdings[0].TokenAddress)
}

func TestMoralisClient_InvalidAddress(t *testing.T) {
	_, err := NewMoralisClient(testProviderConfig("http://127.0.0.1:0")).GetTokenBalances(context.Background(), "not-an-address")
	require.Error(t, err)
	assert.True(t, apperrors.IsUserError(err))
}
