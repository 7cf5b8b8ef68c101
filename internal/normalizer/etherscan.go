package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wallet-insight/internal/types"
	"github.com/wallet-insight/internal/units"
)

// knownContracts labels well-known Ethereum mainnet contracts by lower-cased address
var knownContracts = map[string]string{
	"0xdac17f958d2ee523a2206206994597c13d831ec7": "USDT",
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "USDC",
	"0x6b175474e89094c44da98b954eedeac495271d0f": "DAI",
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": "WETH",
	"0x1f9840a85d5af5bf1d1762f925bdaddc4201f984": "UNI",
	"0x514910771af9ca656af840dff83e8264ecf986ca": "LINK",
	"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": "Uniswap V2 Router",
	"0xe592427a0aece92de3edee1f18e0157c05861564": "Uniswap V3 Router",
}

// KnownContractLabel returns the label for a well-known contract address.
// Matching is exact and case-insensitive.
func KnownContractLabel(address string) (string, bool) {
	label, ok := knownContracts[strings.ToLower(strings.TrimSpace(address))]
	return label, ok
}

// EtherscanRecord is a flat Etherscan transaction enriched with a known-token
// label and an ISO-8601 rendering of its Unix timestamp.
type EtherscanRecord struct {
	types.EtherscanTransaction
	KnownToken string `json:"knownToken,omitempty"`
	// DateTime is absent when the source had no timestamp and JSON null when
	// the timestamp could not be parsed.
	DateTime json.RawMessage `json:"dateTime,omitempty"`
}

// Date returns the ISO-8601 timestamp when one was derived
func (r EtherscanRecord) Date() (string, bool) {
	var s *string
	if len(r.DateTime) == 0 || json.Unmarshal(r.DateTime, &s) != nil || s == nil {
		return "", false
	}
	return *s, true
}

// EtherscanBatch is the result of normalizing an Etherscan payload. When the
// payload was not an array, Records is nil and Raw holds the payload unchanged.
type EtherscanBatch struct {
	Records []EtherscanRecord
	Raw     json.RawMessage
}

// IsArray reports whether the source payload was an array
func (b EtherscanBatch) IsArray() bool {
	return b.Raw == nil
}

// MarshalJSON emits the records, or the untouched payload for non-array input
func (b EtherscanBatch) MarshalJSON() ([]byte, error) {
	if !b.IsArray() {
		return b.Raw, nil
	}
	if b.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b.Records)
}

// NormalizeEtherscanTransactions labels each flat record and converts its timestamp.
// A non-array payload is handed back unchanged with a diagnostic.
func NormalizeEtherscanTransactions(payload json.RawMessage) (EtherscanBatch, []types.Diagnostic) {
	elems, ok := decodeArray(payload)
	if !ok {
		raw := payload
		if raw == nil {
			raw = json.RawMessage("null")
		}
		return EtherscanBatch{Raw: raw}, []types.Diagnostic{{
			Code:    types.DiagNotAnArray,
			Message: "etherscan payload is not an array, returned unchanged",
		}}
	}

	var diags []types.Diagnostic
	records := make([]EtherscanRecord, 0, len(elems))
	for i, elem := range elems {
		var tx types.EtherscanTransaction
		if err := json.Unmarshal(elem, &tx); err != nil {
			diags = append(diags, types.Diagnostic{
				Code:    types.DiagInvalidRecord,
				Message: fmt.Sprintf("skipping element %d: %v", i, err),
			})
			continue
		}
		rec, d := NormalizeEtherscanTransaction(tx, hasTimestampField(elem))
		records = append(records, rec)
		diags = append(diags, d...)
	}
	return EtherscanBatch{Records: records}, diags
}

// NormalizeEtherscanTransaction enriches one flat record. hasTimestamp tells
// whether the source carried a timeStamp field at all.
func NormalizeEtherscanTransaction(tx types.EtherscanTransaction, hasTimestamp bool) (EtherscanRecord, []types.Diagnostic) {
	rec := EtherscanRecord{EtherscanTransaction: tx}
	if label, ok := KnownContractLabel(tx.To); ok {
		rec.KnownToken = label
	}
	if !hasTimestamp {
		return rec, nil
	}

	secs, err := strconv.ParseInt(tx.TimeStamp.String(), 10, 64)
	if err != nil {
		rec.DateTime = json.RawMessage("null")
		return rec, []types.Diagnostic{{
			Code:    types.DiagInvalidTimestamp,
			Field:   "timeStamp",
			Ref:     tx.Hash,
			Message: fmt.Sprintf("unparseable unix timestamp %q", tx.TimeStamp),
		}}
	}
	iso, _ := json.Marshal(time.Unix(secs, 0).UTC().Format(isoLayout))
	rec.DateTime = iso
	return rec, nil
}

// ToAnalyzerTransaction maps an enriched flat record to the analyzer input shape
func ToAnalyzerTransaction(rec EtherscanRecord) (types.AnalyzerTransaction, []types.Diagnostic) {
	var diags []types.Diagnostic

	value, d := units.ToStandard(rec.Value.String(), types.ChainETH)
	diags = append(diags, refDiags(d, rec.Hash, "value")...)

	gasPrice := ""
	if rec.GasPrice != "" {
		gwei, err := units.WeiToGwei(rec.GasPrice.String())
		if err != nil {
			diags = append(diags, types.Diagnostic{Code: types.DiagInvalidNumber, Field: "gasPrice", Ref: rec.Hash, Message: err.Error()})
		} else {
			gasPrice = gwei.String()
		}
	}

	function := strings.TrimSpace(rec.FunctionName)
	if function == "" {
		function = types.FunctionUnknown
	}

	timestamp := rec.TimeStamp.String()
	if iso, ok := rec.Date(); ok {
		timestamp = iso
	}

	return types.AnalyzerTransaction{
		Hash:           rec.Hash,
		FromAddress:    rec.From,
		ToAddress:      rec.To,
		Value:          strconv.FormatFloat(value, 'f', -1, 64),
		GasUsed:        rec.GasUsed,
		GasPrice:       types.NumericString(gasPrice),
		Timestamp:      timestamp,
		FunctionCalled: function,
		Input:          rec.Input,
	}, diags
}

// CanonicalToAnalyzer maps canonical transactions for chains without flat
// records (BTC, LTC). Function and gas fields are unknown for these chains.
func CanonicalToAnalyzer(txs []types.Transaction) []types.AnalyzerTransaction {
	out := make([]types.AnalyzerTransaction, 0, len(txs))
	for _, tx := range txs {
		timestamp := ""
		if tx.Date != nil {
			timestamp = *tx.Date
		}
		out = append(out, types.AnalyzerTransaction{
			Hash:           tx.ID,
			FromAddress:    tx.Sender,
			ToAddress:      tx.Receiver,
			Value:          strconv.FormatFloat(tx.Amount, 'f', -1, 64),
			Timestamp:      timestamp,
			FunctionCalled: types.FunctionUnknown,
		})
	}
	return out
}

func refDiags(diags []types.Diagnostic, ref, field string) []types.Diagnostic {
	for i := range diags {
		diags[i].Ref = ref
		diags[i].Field = field
	}
	return diags
}

// hasTimestampField reports whether a raw record carries a timeStamp key
func hasTimestampField(elem json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil {
		return false
	}
	raw, ok := fields["timeStamp"]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// AttachTokenTransfers groups token transfers by transaction hash and attaches
// them to the matching analyzer transactions. Transfers whose hash has no
// matching transaction are dropped.
func AttachTokenTransfers(txs []types.AnalyzerTransaction, transfers []types.EtherscanTokenTransfer) []types.Diagnostic {
	index := make(map[string]int, len(txs))
	for i, tx := range txs {
		index[strings.ToLower(tx.Hash)] = i
	}

	var diags []types.Diagnostic
	for _, tt := range transfers {
		i, ok := index[strings.ToLower(tt.Hash)]
		if !ok {
			continue
		}
		amount := tt.Value
		if decimals, err := strconv.Atoi(strings.TrimSpace(tt.TokenDecimal)); err == nil {
			f, err := units.ShiftDecimals(tt.Value, decimals)
			if err != nil {
				diags = append(diags, types.Diagnostic{Code: types.DiagInvalidNumber, Field: "value", Ref: tt.Hash, Message: err.Error()})
			} else {
				amount = strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
		txs[i].TokenTransfers = append(txs[i].TokenTransfers, types.TokenTransfer{
			TokenSymbol:     tt.TokenSymbol,
			TokenName:       tt.TokenName,
			Amount:          amount,
			From:            tt.From,
			To:              tt.To,
			ContractAddress: tt.ContractAddress,
		})
	}
	return diags
}
