package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/wallet-insight/internal/config"
	apperrors "github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/types"
)

const blockCypherProvider = "blockcypher"

// BlockCypherClient fetches explorer-shaped transaction history for BTC, LTC and ETH
type BlockCypherClient struct {
	token   string
	baseURL string
	http    *httpClient
}

// NewBlockCypherClient creates a new BlockCypher API client
func NewBlockCypherClient(cfg config.ProviderConfig) *BlockCypherClient {
	return &BlockCypherClient{
		token:   cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    newHTTPClient(blockCypherProvider, cfg),
	}
}

// coinPath maps a chain symbol to the BlockCypher coin segment
func coinPath(symbol types.ChainSymbol) (string, bool) {
	switch symbol {
	case types.ChainBTC:
		return "btc", true
	case types.ChainLTC:
		return "ltc", true
	case types.ChainETH:
		return "eth", true
	default:
		return "", false
	}
}

// FetchAddressTransactions returns the raw "txs" array of the address full endpoint.
// A missing txs field is returned as JSON null so the normalizer can report it.
func (c *BlockCypherClient) FetchAddressTransactions(ctx context.Context, symbol types.ChainSymbol, address string, limit int) (json.RawMessage, error) {
	coin, ok := coinPath(symbol)
	if !ok {
		return nil, apperrors.NewUnsupportedChainError(string(symbol))
	}

	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if c.token != "" {
		query.Set("token", c.token)
	}

	endpoint := fmt.Sprintf("%s/v1/%s/main/addrs/%s/full", c.baseURL, coin, url.PathEscape(address))
	body, err := c.http.get(ctx, endpoint, query, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Txs json.RawMessage `json:"txs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewProviderError(blockCypherProvider, fmt.Errorf("failed to parse response: %w", err))
	}
	if resp.Txs == nil {
		return json.RawMessage("null"), nil
	}
	return resp.Txs, nil
}

// Health returns request health for the BlockCypher API
func (c *BlockCypherClient) Health() *ProviderHealth {
	return c.http.Health()
}
