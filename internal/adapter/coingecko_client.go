package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/wallet-insight/internal/config"
	apperrors "github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/types"
)

const coinGeckoProvider = "coingecko"

var coinGeckoIDs = map[types.ChainSymbol]string{
	types.ChainBTC: "bitcoin",
	types.ChainETH: "ethereum",
	types.ChainLTC: "litecoin",
}

// CoinGeckoClient fetches spot USD prices from the CoinGecko simple price API
type CoinGeckoClient struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

// NewCoinGeckoClient creates a new CoinGecko API client
func NewCoinGeckoClient(cfg config.ProviderConfig) *CoinGeckoClient {
	return &CoinGeckoClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    newHTTPClient(coinGeckoProvider, cfg),
	}
}

// GetUSDPrices returns the USD price of each requested chain's native coin.
// Symbols CoinGecko does not list are omitted from the result.
func (c *CoinGeckoClient) GetUSDPrices(ctx context.Context, symbols ...types.ChainSymbol) (map[types.ChainSymbol]float64, error) {
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if id, ok := coinGeckoIDs[s]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[types.ChainSymbol]float64{}, nil
	}
	sort.Strings(ids)

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"x-cg-demo-api-key": c.apiKey}
	}

	body, err := c.http.get(ctx, c.baseURL+"/simple/price", query, headers)
	if err != nil {
		return nil, err
	}

	var data map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, apperrors.NewProviderError(coinGeckoProvider, fmt.Errorf("decode: %w", err))
	}

	prices := make(map[types.ChainSymbol]float64, len(symbols))
	for _, s := range symbols {
		entry, ok := data[coinGeckoIDs[s]]
		if ok && entry.USD > 0 {
			prices[s] = entry.USD
		}
	}
	return prices, nil
}

// Health returns request health for the CoinGecko API
func (c *CoinGeckoClient) Health() *ProviderHealth {
	return c.http.Health()
}
