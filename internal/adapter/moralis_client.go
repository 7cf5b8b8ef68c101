package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wallet-insight/internal/config"
	apperrors "github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/types"
	"github.com/wallet-insight/internal/units"
)

const moralisProvider = "moralis"

// MoralisClient fetches ERC-20 balances from the Moralis EVM API
type MoralisClient struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

// moralisToken is one entry of the erc20 balances response
type moralisToken struct {
	TokenAddress string   `json:"token_address"`
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	Decimals     int      `json:"decimals"`
	Balance      string   `json:"balance"`
	PossibleSpam bool     `json:"possible_spam"`
	USDValue     *float64 `json:"usd_value"`
}

// NewMoralisClient creates a new Moralis API client
func NewMoralisClient(cfg config.ProviderConfig) *MoralisClient {
	return &MoralisClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    newHTTPClient(moralisProvider, cfg),
	}
}

// GetTokenBalances returns the ERC-20 holdings of an Ethereum mainnet address
func (c *MoralisClient) GetTokenBalances(ctx context.Context, address string) ([]types.TokenHolding, error) {
	if c.apiKey == "" {
		return nil, apperrors.NewProviderError(moralisProvider, fmt.Errorf("moralis API key not configured"))
	}
	if !common.IsHexAddress(address) {
		return nil, apperrors.NewInvalidAddressError(address)
	}

	query := url.Values{}
	query.Set("chain", "eth")

	endpoint := fmt.Sprintf("%s/%s/erc20", c.baseURL, common.HexToAddress(address).Hex())
	body, err := c.http.get(ctx, endpoint, query, map[string]string{"X-API-Key": c.apiKey})
	if err != nil {
		return nil, err
	}

	var tokens []moralisToken
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, apperrors.NewProviderError(moralisProvider, fmt.Errorf("decode: %w", err))
	}

	holdings := make([]types.TokenHolding, 0, len(tokens))
	for _, t := range tokens {
		balance, err := units.ShiftDecimals(t.Balance, t.Decimals)
		if err != nil {
			continue
		}
		holdings = append(holdings, types.TokenHolding{
			TokenAddress: strings.ToLower(t.TokenAddress),
			Symbol:       t.Symbol,
			Name:         t.Name,
			Decimals:     t.Decimals,
			RawBalance:   t.Balance,
			Balance:      balance,
			PossibleSpam: t.PossibleSpam,
			ValueUSD:     t.USDValue,
		})
	}
	return holdings, nil
}

// Health returns request health for the Moralis API
func (c *MoralisClient) Health() *ProviderHealth {
	return c.http.Health()
}
