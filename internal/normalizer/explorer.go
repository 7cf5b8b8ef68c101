// Package normalizer maps provider-specific transaction records into the canonical
// transaction shape, inferring direction relative to a subject address.
package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-insight/internal/types"
	"github.com/wallet-insight/internal/units"
)

// isoLayout matches the millisecond ISO-8601 form used across reports
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// NormalizeExplorerTransactions decodes a provider payload and normalizes every element.
// A non-array payload yields an empty list and a diagnostic.
func NormalizeExplorerTransactions(payload json.RawMessage, symbol types.ChainSymbol, address string) ([]types.Transaction, []types.Diagnostic) {
	elems, ok := decodeArray(payload)
	if !ok {
		return []types.Transaction{}, []types.Diagnostic{{
			Code:    types.DiagNotAnArray,
			Message: "explorer payload is not an array",
		}}
	}

	var diags []types.Diagnostic
	records := make([]types.ExplorerTransaction, 0, len(elems))
	for i, elem := range elems {
		var rec types.ExplorerTransaction
		if err := json.Unmarshal(elem, &rec); err != nil {
			diags = append(diags, types.Diagnostic{
				Code:    types.DiagInvalidRecord,
				Message: fmt.Sprintf("skipping element %d: %v", i, err),
			})
			continue
		}
		records = append(records, rec)
	}

	txs, more := NormalizeExplorerList(records, symbol, address)
	return txs, append(diags, more...)
}

// NormalizeExplorerList normalizes already decoded explorer records
func NormalizeExplorerList(records []types.ExplorerTransaction, symbol types.ChainSymbol, address string) ([]types.Transaction, []types.Diagnostic) {
	txs := make([]types.Transaction, 0, len(records))
	var diags []types.Diagnostic
	for _, rec := range records {
		tx, d := NormalizeExplorerTransaction(rec, symbol, address)
		txs = append(txs, tx)
		diags = append(diags, d...)
	}
	return txs, diags
}

// NormalizeExplorerTransaction maps a single explorer record to the canonical shape
func NormalizeExplorerTransaction(rec types.ExplorerTransaction, symbol types.ChainSymbol, address string) (types.Transaction, []types.Diagnostic) {
	symbol = types.ParseChainSymbol(string(symbol))
	n := &explorerNormalizer{rec: rec, symbol: symbol, subject: strings.TrimSpace(address)}

	if n.subject == "" {
		n.diag(types.DiagMissingAddress, "", "no subject address, direction not classified")
	}

	n.height = n.integer(rec.BlockHeight, "block_height")

	tx := types.Transaction{
		ID:            rec.Hash,
		Date:          n.date(),
		Currency:      symbol,
		Confirmations: n.integer(rec.Confirmations, "confirmations"),
		Status:        n.status(),
	}
	if n.height > 0 {
		height := n.height
		tx.BlockHeight = &height
	}

	if symbol == types.ChainETH {
		n.accountDirection(&tx)
		tx.Fees = n.accountFee()
	} else {
		n.utxoDirection(&tx)
		tx.Fees = n.standard(n.number(rec.Fees, "fees"))
	}

	return tx, n.diags
}

type explorerNormalizer struct {
	rec     types.ExplorerTransaction
	symbol  types.ChainSymbol
	subject string
	height  int64
	diags   []types.Diagnostic
}

func (n *explorerNormalizer) diag(code, field, msg string) {
	n.diags = append(n.diags, types.Diagnostic{Code: code, Field: field, Ref: n.rec.Hash, Message: msg})
}

func (n *explorerNormalizer) number(raw types.NumericString, field string) decimal.Decimal {
	d, diags := units.ParseField(raw, field)
	for _, dg := range diags {
		n.diag(dg.Code, dg.Field, dg.Message)
	}
	return d
}

// integer parses a count or index field. Fractional and out of range values degrade to 0.
func (n *explorerNormalizer) integer(raw types.NumericString, field string) int64 {
	d := n.number(raw, field)
	if !d.IsInteger() || d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
		n.diag(types.DiagInvalidNumber, field, fmt.Sprintf("not an integer: %q", raw.String()))
		return 0
	}
	return d.IntPart()
}

func (n *explorerNormalizer) standard(amount decimal.Decimal) float64 {
	f, diags := units.DecimalToStandard(amount, n.symbol)
	for _, dg := range diags {
		n.diag(dg.Code, "", dg.Message)
	}
	return f
}

// isSubject compares addresses case-insensitively, ignoring a 0x prefix on ETH
func (n *explorerNormalizer) isSubject(addr string) bool {
	if n.subject == "" || addr == "" {
		return false
	}
	return strings.EqualFold(trimHexPrefix(addr), trimHexPrefix(n.subject))
}

func (n *explorerNormalizer) ownsAny(addrs []string) bool {
	for _, a := range addrs {
		if n.isSubject(a) {
			return true
		}
	}
	return false
}

func (n *explorerNormalizer) status() types.TransactionStatus {
	if n.symbol == types.ChainETH && n.rec.ExecutionError != "" {
		return types.StatusFailed
	}
	if n.height > 0 {
		return types.StatusConfirmed
	}
	return types.StatusPending
}

func (n *explorerNormalizer) date() *string {
	for _, candidate := range []struct{ field, value string }{
		{"confirmed", n.rec.Confirmed},
		{"received", n.rec.Received},
	} {
		if candidate.value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, candidate.value)
		if err != nil {
			n.diag(types.DiagInvalidTimestamp, candidate.field, err.Error())
			continue
		}
		s := t.UTC().Format(isoLayout)
		return &s
	}
	return nil
}

func (n *explorerNormalizer) utxoDirection(tx *types.Transaction) {
	totalIn := decimal.Zero
	for i, in := range n.rec.Inputs {
		if n.ownsAny(in.Addresses) {
			totalIn = totalIn.Add(n.number(in.OutputValue, fmt.Sprintf("inputs[%d].output_value", i)))
		}
	}

	totalToSubject := decimal.Zero
	sentToOthers := decimal.Zero
	externalOutputs := 0
	receiver := ""
	for i, out := range n.rec.Outputs {
		value := n.number(out.Value, fmt.Sprintf("outputs[%d].value", i))
		if n.ownsAny(out.Addresses) {
			totalToSubject = totalToSubject.Add(value)
			continue
		}
		sentToOthers = sentToOthers.Add(value)
		externalOutputs++
		if receiver == "" && len(out.Addresses) > 0 {
			receiver = out.Addresses[0]
		}
	}

	switch {
	case totalIn.IsPositive():
		tx.Sender = n.subject
		if sentToOthers.IsPositive() {
			tx.Type = types.TypeSend
			tx.Amount = n.standard(sentToOthers)
			switch {
			case receiver != "":
				tx.Receiver = receiver
			case externalOutputs > 1:
				tx.Receiver = types.PartyMultipleRecipients
			default:
				tx.Receiver = types.PartyUnknown
			}
			return
		}
		tx.Type = types.TypeSelf
		tx.Amount = n.standard(totalToSubject)
		tx.Receiver = n.subject

	case totalToSubject.IsPositive():
		tx.Type = types.TypeReceive
		tx.Amount = n.standard(totalToSubject)
		tx.Receiver = n.subject
		tx.Sender = n.firstInputAddress()
		if tx.Sender == "" {
			if n.isCoinbase() {
				tx.Sender = types.PartyCoinbase
			} else {
				tx.Sender = types.PartyUnknown
			}
		}

	default:
		tx.Type = types.TypeOther
		tx.Amount = 0
		tx.Sender = orUnknown(n.firstInputAddress())
		tx.Receiver = orUnknown(n.firstOutputAddress())
	}
}

func (n *explorerNormalizer) accountDirection(tx *types.Transaction) {
	sender := ""
	if len(n.rec.Inputs) > 0 && len(n.rec.Inputs[0].Addresses) > 0 {
		sender = withHexPrefix(n.rec.Inputs[0].Addresses[0])
	}

	receiver := ""
	value := decimal.Zero
	if len(n.rec.Outputs) > 0 {
		out := n.rec.Outputs[0]
		if len(out.Addresses) > 0 {
			receiver = withHexPrefix(out.Addresses[0])
		}
		value = n.number(out.Value, "outputs[0].value")
	}

	switch {
	case n.isSubject(sender):
		tx.Type = types.TypeSend
	case n.isSubject(receiver):
		tx.Type = types.TypeReceive
	case !value.IsZero():
		tx.Type = types.TypeOther
	default:
		tx.Type = types.TypeContractInteraction
	}

	tx.Amount = n.standard(value)
	tx.Sender = orUnknown(sender)
	tx.Receiver = receiver
	if tx.Receiver == "" {
		tx.Receiver = types.PartyContractOrUnknown
	}
}

// accountFee multiplies gas used by gas price in wei before converting.
// Records without gas fields fall back to the provider's flat fee.
func (n *explorerNormalizer) accountFee() float64 {
	if n.rec.GasUsed == "" && n.rec.GasPrice == "" {
		return n.standard(n.number(n.rec.Fees, "fees"))
	}
	gasUsed := n.number(n.rec.GasUsed, "gas_used")
	gasPrice := n.number(n.rec.GasPrice, "gas_price")
	return n.standard(gasUsed.Mul(gasPrice))
}

func (n *explorerNormalizer) firstInputAddress() string {
	for _, in := range n.rec.Inputs {
		if len(in.Addresses) > 0 {
			return in.Addresses[0]
		}
	}
	return ""
}

func (n *explorerNormalizer) firstOutputAddress() string {
	for _, out := range n.rec.Outputs {
		if len(out.Addresses) > 0 {
			return out.Addresses[0]
		}
	}
	return ""
}

// isCoinbase reports a block reward: a sole input spending a null previous output
func (n *explorerNormalizer) isCoinbase() bool {
	if len(n.rec.Inputs) != 1 {
		return false
	}
	in := n.rec.Inputs[0]
	return strings.Trim(in.PrevHash, "0") == "" ||
		n.integer(in.OutputIndex, "inputs[0].output_index") < 0 ||
		in.ScriptType == "coinbase"
}

// decodeArray splits a JSON array payload into its elements. Null, objects and
// scalars are reported as not an array.
func decodeArray(payload json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, false
	}
	return elems, true
}

func orUnknown(addr string) string {
	if addr == "" {
		return types.PartyUnknown
	}
	return addr
}

func trimHexPrefix(addr string) string {
	if len(addr) >= 2 && (addr[:2] == "0x" || addr[:2] == "0X") {
		return addr[2:]
	}
	return addr
}

// withHexPrefix restores the 0x prefix some explorers strip from ETH addresses
func withHexPrefix(addr string) string {
	if addr == "" {
		return ""
	}
	return "0x" + trimHexPrefix(addr)
}
