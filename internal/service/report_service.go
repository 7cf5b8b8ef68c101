package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wallet-insight/internal/analyzer"
	apperrors "github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/normalizer"
	"github.com/wallet-insight/internal/types"
	"github.com/wallet-insight/internal/units"
)

// ExplorerSource fetches block explorer transactions for any supported chain
type ExplorerSource interface {
	FetchAddressTransactions(ctx context.Context, symbol types.ChainSymbol, address string, limit int) (json.RawMessage, error)
}

// EtherscanSource fetches flat Ethereum transaction records and token transfers
type EtherscanSource interface {
	FetchTransactions(ctx context.Context, address string, limit int) (json.RawMessage, error)
	FetchTokenTransfers(ctx context.Context, address string, limit int) ([]types.EtherscanTokenTransfer, error)
}

// PriceSource provides spot USD prices per chain
type PriceSource interface {
	GetUSDPrices(ctx context.Context, symbols ...types.ChainSymbol) (map[types.ChainSymbol]float64, error)
}

// HoldingsSource provides ERC-20 balances of an Ethereum address
type HoldingsSource interface {
	GetTokenBalances(ctx context.Context, address string) ([]types.TokenHolding, error)
}

// ReportCache caches assembled reports
type ReportCache interface {
	GetReport(ctx context.Context, chain types.ChainSymbol, address string) (*types.WalletReport, bool, error)
	SetReport(ctx context.Context, report *types.WalletReport) error
}

// ReportStore persists report snapshots
type ReportStore interface {
	Create(ctx context.Context, report *types.WalletReport) error
	ListByAddress(ctx context.Context, chain types.ChainSymbol, address string, limit int) ([]*types.WalletReport, error)
}

// Narrator turns a report into a human readable summary
type Narrator interface {
	Narrate(ctx context.Context, report *types.WalletReport) (string, error)
}

// ReportDependencies groups the collaborators of a ReportService.
// Only Explorer is required; every other source is optional.
type ReportDependencies struct {
	Explorer  ExplorerSource
	Etherscan EtherscanSource
	Prices    PriceSource
	Holdings  HoldingsSource
	Cache     ReportCache
	Store     ReportStore
	Narrator  Narrator
}

// ReportInput identifies the wallet to report on
type ReportInput struct {
	Address   string
	Chain     string
	SkipCache bool
}

// ReportService assembles wallet reports from provider data
type ReportService struct {
	deps            ReportDependencies
	maxTransactions int
	historyLimit    int
	now             func() time.Time
}

// NewReportService creates a new report service
func NewReportService(deps ReportDependencies, maxTransactions, historyLimit int) *ReportService {
	if maxTransactions <= 0 {
		maxTransactions = 50
	}
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &ReportService{
		deps:            deps,
		maxTransactions: maxTransactions,
		historyLimit:    historyLimit,
		now:             time.Now,
	}
}

// BuildWalletReport validates the input, then normalizes and analyzes the
// wallet's transactions. Price, holdings, narrative, snapshot and cache
// failures degrade to warnings.
func (s *ReportService) BuildWalletReport(ctx context.Context, in ReportInput) (*types.WalletReport, error) {
	chain, address, err := validateInput(in.Chain, in.Address)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"chain":   string(chain),
		"address": address,
	})

	if s.deps.Cache != nil && !in.SkipCache {
		cached, found, err := s.deps.Cache.GetReport(ctx, chain, address)
		if err != nil {
			log.WithError(err).Warn("report cache lookup failed")
		} else if found {
			log.Debug("serving cached report")
			return cached, nil
		}
	}

	if s.deps.Explorer == nil {
		return nil, apperrors.NewInternalError("no explorer source configured", nil)
	}

	report := &types.WalletReport{
		ID:          uuid.New().String(),
		Address:     address,
		Chain:       chain,
		GeneratedAt: s.now().UTC(),
	}

	raw, err := s.deps.Explorer.FetchAddressTransactions(ctx, chain, address, s.maxTransactions)
	if err != nil {
		return nil, err
	}
	canonical, diags := normalizer.NormalizeExplorerTransactions(raw, chain, address)
	report.Transactions = canonical
	report.Flows = summarizeFlows(canonical)

	analyzerTxs, moreDiags, warnings := s.analyzerTransactions(ctx, chain, address, canonical)
	diags = append(diags, moreDiags...)
	report.Warnings = append(report.Warnings, warnings...)

	result := analyzer.Analyze(analyzerTxs)
	report.Behavior = result.BehaviorAnalysis
	diags = append(diags, result.Diagnostics...)

	s.attachPrice(ctx, report)
	s.attachHoldings(ctx, report)
	s.attachNarrative(ctx, report)

	logDiagnostics(log, diags)

	if s.deps.Store != nil {
		if err := s.deps.Store.Create(ctx, report); err != nil {
			log.WithError(err).Warn("failed to store report snapshot")
			report.Warnings = append(report.Warnings, "report snapshot was not stored")
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.SetReport(ctx, report); err != nil {
			log.WithError(err).Warn("failed to cache report")
		}
	}

	log.WithFields(map[string]interface{}{
		"transactions": len(report.Transactions),
		"tags":         report.Behavior.Tags,
		"warnings":     len(report.Warnings),
	}).Info("wallet report built")

	return report, nil
}

// GetReportHistory lists stored report snapshots of an address, newest first
func (s *ReportService) GetReportHistory(ctx context.Context, chainSymbol, address string, limit int) ([]*types.WalletReport, error) {
	chain, address, err := validateInput(chainSymbol, address)
	if err != nil {
		return nil, err
	}
	if s.deps.Store == nil {
		return nil, apperrors.NewInternalError("report history requires a snapshot store", nil)
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	reports, err := s.deps.Store.ListByAddress(ctx, chain, address, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list report snapshots", err)
	}
	if reports == nil {
		reports = []*types.WalletReport{}
	}
	return reports, nil
}

// analyzerTransactions prefers Etherscan flat records for ETH and falls back
// to the canonical list when they are unavailable.
func (s *ReportService) analyzerTransactions(
	ctx context.Context,
	chain types.ChainSymbol,
	address string,
	canonical []types.Transaction,
) ([]types.AnalyzerTransaction, []types.Diagnostic, []string) {
	if chain != types.ChainETH || s.deps.Etherscan == nil {
		return normalizer.CanonicalToAnalyzer(canonical), nil, nil
	}

	raw, err := s.deps.Etherscan.FetchTransactions(ctx, address, s.maxTransactions)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("etherscan transactions unavailable")
		return normalizer.CanonicalToAnalyzer(canonical), nil,
			[]string{"behavior analysis used explorer data: etherscan unavailable"}
	}

	batch, diags := normalizer.NormalizeEtherscanTransactions(raw)
	txs := make([]types.AnalyzerTransaction, 0, len(batch.Records))
	for _, rec := range batch.Records {
		tx, d := normalizer.ToAnalyzerTransaction(rec)
		txs = append(txs, tx)
		diags = append(diags, d...)
	}

	var warnings []string
	transfers, err := s.deps.Etherscan.FetchTokenTransfers(ctx, address, s.maxTransactions)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("token transfers unavailable")
		warnings = append(warnings, "token transfers unavailable")
	} else {
		diags = append(diags, normalizer.AttachTokenTransfers(txs, transfers)...)
	}

	return txs, diags, warnings
}

func (s *ReportService) attachPrice(ctx context.Context, report *types.WalletReport) {
	if s.deps.Prices == nil {
		return
	}
	prices, err := s.deps.Prices.GetUSDPrices(ctx, report.Chain)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("price lookup failed")
		report.Warnings = append(report.Warnings, "price data unavailable")
		return
	}
	if price, ok := prices[report.Chain]; ok {
		report.Flows.PriceUSD = &price
	}
}

func (s *ReportService) attachHoldings(ctx context.Context, report *types.WalletReport) {
	if s.deps.Holdings == nil || report.Chain != types.ChainETH {
		return
	}
	holdings, err := s.deps.Holdings.GetTokenBalances(ctx, report.Address)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("token holdings lookup failed")
		report.Warnings = append(report.Warnings, "token holdings unavailable")
		return
	}
	report.Holdings = holdings
}

func (s *ReportService) attachNarrative(ctx context.Context, report *types.WalletReport) {
	if s.deps.Narrator == nil {
		return
	}
	narrative, err := s.deps.Narrator.Narrate(ctx, report)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("narrative generation failed")
		report.Warnings = append(report.Warnings, "narrative unavailable")
		return
	}
	report.Narrative = narrative
}

// validateInput upper-cases the chain and checks the address shape for it
func validateInput(chainSymbol, address string) (types.ChainSymbol, string, error) {
	chain := types.ParseChainSymbol(chainSymbol)
	if !units.Supported(chain) {
		return "", "", apperrors.NewUnsupportedChainError(chainSymbol)
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return "", "", apperrors.NewInvalidParameterError("address", "address is required")
	}
	if chain == types.ChainETH && !common.IsHexAddress(address) {
		return "", "", apperrors.NewInvalidAddressError(address)
	}
	return chain, address, nil
}

// summarizeFlows totals received and sent amounts, plus fees paid by the subject
func summarizeFlows(txs []types.Transaction) types.FlowSummary {
	received, sent, fees := decimal.Zero, decimal.Zero, decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case types.TypeReceive:
			received = received.Add(decimal.NewFromFloat(tx.Amount))
		case types.TypeSend:
			sent = sent.Add(decimal.NewFromFloat(tx.Amount))
			fees = fees.Add(decimal.NewFromFloat(tx.Fees))
		case types.TypeSelf:
			fees = fees.Add(decimal.NewFromFloat(tx.Fees))
		}
	}
	return types.FlowSummary{
		TotalReceived: received.InexactFloat64(),
		TotalSent:     sent.InexactFloat64(),
		TotalFees:     fees.InexactFloat64(),
	}
}

func logDiagnostics(log *logging.Logger, diags []types.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	counts := make(map[string]int)
	for _, d := range diags {
		counts[d.Code]++
		log.WithFields(map[string]interface{}{
			"code":  d.Code,
			"field": d.Field,
			"ref":   d.Ref,
		}).Debug(d.Message)
	}
	log.WithField("diagnostics", counts).Warnf("%d data issues while building report", len(diags))
}
