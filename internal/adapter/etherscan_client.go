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
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/types"
)

const etherscanProvider = "etherscan"

// EtherscanClient fetches flat account history from the Etherscan account API
type EtherscanClient struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

// etherscanEnvelope is the common Etherscan response wrapper
type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// NewEtherscanClient creates a new Etherscan API client
func NewEtherscanClient(cfg config.ProviderConfig) *EtherscanClient {
	return &EtherscanClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    newHTTPClient(etherscanProvider, cfg),
	}
}

// FetchTransactions returns the raw txlist result array for an address, newest first.
// The payload is handed to the flat normalizer untouched.
func (c *EtherscanClient) FetchTransactions(ctx context.Context, address string, limit int) (json.RawMessage, error) {
	return c.fetchList(ctx, "txlist", address, limit)
}

// FetchTokenTransfers returns ERC-20 transfers involving an address, newest first
func (c *EtherscanClient) FetchTokenTransfers(ctx context.Context, address string, limit int) ([]types.EtherscanTokenTransfer, error) {
	raw, err := c.fetchList(ctx, "tokentx", address, limit)
	if err != nil {
		return nil, err
	}

	var transfers []types.EtherscanTokenTransfer
	if err := json.Unmarshal(raw, &transfers); err != nil {
		return nil, apperrors.NewProviderError(etherscanProvider, fmt.Errorf("failed to parse token transfers: %w", err))
	}
	return transfers, nil
}

func (c *EtherscanClient) fetchList(ctx context.Context, action, address string, limit int) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, apperrors.NewProviderError(etherscanProvider, fmt.Errorf("etherscan API key not configured"))
	}

	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", action)
	query.Set("address", address)
	query.Set("startblock", "0")
	query.Set("endblock", "99999999")
	query.Set("sort", "desc")
	if limit > 0 {
		query.Set("page", "1")
		query.Set("offset", strconv.Itoa(limit))
	}
	query.Set("apikey", c.apiKey)

	body, err := c.http.get(ctx, c.baseURL, query, nil)
	if err != nil {
		return nil, err
	}

	var env etherscanEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.NewProviderError(etherscanProvider, fmt.Errorf("failed to parse response: %w", err))
	}

	if env.Status == "1" {
		return env.Result, nil
	}

	// Empty history is reported as a failure status
	if env.Message == "No transactions found" || env.Message == "No records found" ||
		strings.Contains(string(env.Result), "No record") {
		return json.RawMessage("[]"), nil
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"action":  action,
		"status":  env.Status,
		"message": env.Message,
	}).Warn("Etherscan returned an error envelope")

	if strings.Contains(strings.ToLower(string(env.Result)), "rate limit") {
		return nil, apperrors.NewProviderRateLimitError(etherscanProvider)
	}
	return nil, apperrors.NewProviderStatusError(etherscanProvider, 400, fmt.Sprintf("%s: %s", env.Message, env.Result))
}

// Health returns request health for the Etherscan API
func (c *EtherscanClient) Health() *ProviderHealth {
	return c.http.Health()
}
