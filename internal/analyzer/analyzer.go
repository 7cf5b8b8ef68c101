// Package analyzer derives behavioral metrics and descriptive tags from a wallet's
// transaction list. Analysis is a pure function of its input: all accumulators are
// scoped to a single call, so Analyze is safe for concurrent use.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-insight/internal/types"
	"github.com/wallet-insight/internal/units"
)

var dexKeywords = []string{
	"swap", "addliquidity", "removeliquidity", "uniswap", "sushiswap", "pancakeswap", "1inch", "kyber",
}

var nftKeywords = []string{
	"mint", "nft", "safetransferfrom", "opensea", "blur", "magiceden", "looksrare", "transferfrom",
}

var stablecoinSymbols = map[string]struct{}{
	"USDC": {}, "USDT": {}, "DAI": {}, "BUSD": {}, "TUSD": {}, "MIM": {},
}

const day = 24 * time.Hour

// Result is the output of a single analysis pass
type Result struct {
	types.BehaviorAnalysis
	// Diagnostics lists per-transaction contributions that were skipped
	Diagnostics []types.Diagnostic `json:"-"`
}

// Analyze computes metrics and tags for a transaction list.
// Empty input short-circuits to empty tags and zero metrics.
func Analyze(txs []types.AnalyzerTransaction) Result {
	if len(txs) == 0 {
		return Result{BehaviorAnalysis: types.BehaviorAnalysis{
			Tags:    []string{},
			Metrics: types.BehaviorMetrics{GasSpentGwei: "0"},
		}}
	}

	acc := newAccumulator()
	for i := range txs {
		acc.add(&txs[i])
	}

	metrics := acc.metrics(len(txs))
	return Result{
		BehaviorAnalysis: types.BehaviorAnalysis{
			Tags:    AssignTags(metrics),
			Metrics: metrics,
		},
		Diagnostics: acc.diags,
	}
}

type accumulator struct {
	dex        int
	nft        int
	stablecoin int
	first      *time.Time
	last       *time.Time
	contracts  map[string]struct{}
	gas        decimal.Decimal
	diags      []types.Diagnostic
}

func newAccumulator() *accumulator {
	return &accumulator{
		contracts: make(map[string]struct{}),
		gas:       decimal.Zero,
	}
}

func (a *accumulator) diag(tx *types.AnalyzerTransaction, code, field, msg string) {
	a.diags = append(a.diags, types.Diagnostic{Code: code, Field: field, Ref: tx.Hash, Message: msg})
}

func (a *accumulator) add(tx *types.AnalyzerTransaction) {
	function := strings.ToLower(strings.TrimSpace(tx.FunctionCalled))

	if containsAny(function, dexKeywords) {
		a.dex++
	}
	if containsAny(function, nftKeywords) || hasCollectible(tx.TokenTransfers) {
		a.nft++
	}
	if hasStablecoin(tx.TokenTransfers) {
		a.stablecoin++
	}

	if isContractInteraction(tx, function) {
		a.contracts[strings.ToLower(tx.ToAddress)] = struct{}{}
	}

	a.addGas(tx)
	a.addTimestamp(tx)
}

// addGas accumulates round(gasUsed) * gasPrice in exact decimal arithmetic.
// Each product is rounded to whole Gwei so the total stays an integer even
// when the price carries fractional Gwei.
func (a *accumulator) addGas(tx *types.AnalyzerTransaction) {
	if tx.GasUsed == "" && tx.GasPrice == "" {
		return
	}
	gasUsed, err := units.Parse(tx.GasUsed.String())
	if err != nil {
		a.diag(tx, types.DiagInvalidNumber, "gasUsed", fmt.Sprintf("gas not counted: %v", err))
		return
	}
	gasPrice, err := units.Parse(tx.GasPrice.String())
	if err != nil {
		a.diag(tx, types.DiagInvalidNumber, "gasPrice", fmt.Sprintf("gas not counted: %v", err))
		return
	}
	a.gas = a.gas.Add(gasUsed.Round(0).Mul(gasPrice).Round(0))
}

func (a *accumulator) addTimestamp(tx *types.AnalyzerTransaction) {
	if tx.Timestamp == "" {
		return
	}
	ts, err := ParseTimestamp(tx.Timestamp)
	if err != nil {
		a.diag(tx, types.DiagInvalidTimestamp, "timestamp", err.Error())
		return
	}
	if a.first == nil || ts.Before(*a.first) {
		t := ts
		a.first = &t
	}
	if a.last == nil || ts.After(*a.last) {
		t := ts
		a.last = &t
	}
}

func (a *accumulator) metrics(total int) types.BehaviorMetrics {
	m := types.BehaviorMetrics{
		TotalTransactions:         total,
		DexInteractionCount:       a.dex,
		NftInteractionCount:       a.nft,
		StablecoinTransferCount:   a.stablecoin,
		FirstActivityDate:         a.first,
		LastActivityDate:          a.last,
		UniqueContractsInteracted: len(a.contracts),
		GasSpentGwei:              a.gas.String(),
	}

	if a.first != nil && a.last != nil {
		m.TransactionPeriodDays = int(math.Ceil(float64(a.last.Sub(*a.first)) / float64(day)))
	}
	if m.TransactionPeriodDays == 0 && total > 0 {
		m.TransactionPeriodDays = 1
	}

	if m.TransactionPeriodDays > 0 {
		m.AvgTransactionsPerDay = math.Round(float64(total)/float64(m.TransactionPeriodDays)*100) / 100
	} else {
		m.AvgTransactionsPerDay = float64(total)
	}
	return m
}

// AssignTags evaluates the tag rules against final metrics. The Active/Regular and
// Infrequent/New-Light pairs are mutually exclusive; all other rules are additive.
func AssignTags(m types.BehaviorMetrics) []string {
	set := make(map[string]struct{})
	add := func(tag string) { set[tag] = struct{}{} }

	if m.DexInteractionCount > 0 {
		add("DEX User")
	}
	if m.NftInteractionCount > 0 {
		add("NFT User")
	}
	if m.StablecoinTransferCount > 0 {
		add("Stablecoin User")
	}

	if m.AvgTransactionsPerDay > 5 && m.TransactionPeriodDays > 1 {
		add("Active User")
	} else if m.AvgTransactionsPerDay > 1 && m.TransactionPeriodDays > 7 {
		add("Regular User")
	}

	if m.TotalTransactions < 10 && m.TransactionPeriodDays > 30 {
		add("Infrequent User / HODLer")
	} else if m.TotalTransactions >= 1 && m.TotalTransactions < 5 && m.TransactionPeriodDays < 7 {
		add("New/Light User")
	}

	if m.TransactionPeriodDays < 7 && m.TotalTransactions > 1 && m.AvgTransactionsPerDay >= 1 {
		add("Recent Activity Burst")
	}
	if m.TransactionPeriodDays > 90 && m.AvgTransactionsPerDay > 0.5 {
		add("Long-Term Active User")
	}
	if m.UniqueContractsInteracted > 10 {
		add("Exploratory User")
	}
	if m.TotalTransactions == 0 {
		add("No Transaction History")
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ParseTimestamp accepts RFC 3339 strings or Unix seconds
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	}
	return t.UTC(), nil
}

// isContractInteraction requires a distinct destination and either a known
// function label or a non-empty call payload
func isContractInteraction(tx *types.AnalyzerTransaction, function string) bool {
	to := strings.TrimSpace(tx.ToAddress)
	if to == "" || strings.EqualFold(to, strings.TrimSpace(tx.FromAddress)) {
		return false
	}
	knownFunction := function != "" && function != "n/a"
	return knownFunction || hasCallData(tx.Input)
}

func hasCallData(input string) bool {
	input = strings.TrimSpace(input)
	return input != "" && input != "0x" && input != "0"
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func hasCollectible(transfers []types.TokenTransfer) bool {
	for _, tt := range transfers {
		if strings.Contains(strings.ToLower(tt.TokenName), "collectible") {
			return true
		}
	}
	return false
}

func hasStablecoin(transfers []types.TokenTransfer) bool {
	for _, tt := range transfers {
		if _, ok := stablecoinSymbols[strings.ToUpper(strings.TrimSpace(tt.TokenSymbol))]; ok {
			return true
		}
	}
	return false
}
