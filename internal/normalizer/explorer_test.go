package normalizer

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-insight/internal/types"
)

const (
	btcSubject = "1SubjectAddr"
	btcOther   = "1OtherAddr"
	btcThird   = "1ThirdAddr"
	ethSubject = "0xAbC0000000000000000000000000000000000001"
	ethOther   = "0x0000000000000000000000000000000000000002"
)

func input(value string, addrs ...string) types.ExplorerInput {
	return types.ExplorerInput{
		PrevHash:    "aa11",
		OutputValue: types.NumericString(value),
		Addresses:   addrs,
	}
}

func output(value string, addrs ...string) types.ExplorerOutput {
	return types.ExplorerOutput{Value: types.NumericString(value), Addresses: addrs}
}

func TestNormalizeExplorerTransaction_UTXO(t *testing.T) {
	tests := []struct {
		name         string
		rec          types.ExplorerTransaction
		wantType     types.TransactionType
		wantAmount   float64
		wantSender   string
		wantReceiver string
	}{
		{
			name: "send with change",
			rec: types.ExplorerTransaction{
				Inputs:  []types.ExplorerInput{input("100000000", btcSubject)},
				Outputs: []types.ExplorerOutput{output("20000000", btcOther), output("79990000", btcSubject)},
			},
			wantType:     types.TypeSend,
			wantAmount:   0.2,
			wantSender:   btcSubject,
			wantReceiver: btcOther,
		},
		{
			name: "self transfer",
			rec: types.ExplorerTransaction{
				Inputs:  []types.ExplorerInput{input("50000000", btcSubject)},
				Outputs: []types.ExplorerOutput{output("49990000", btcSubject)},
			},
			wantType:     types.TypeSelf,
			wantAmount:   0.4999,
			wantSender:   btcSubject,
			wantReceiver: btcSubject,
		},
		{
			name: "receive",
			rec: types.ExplorerTransaction{
				Inputs:  []types.ExplorerInput{input("300000000", btcOther)},
				Outputs: []types.ExplorerOutput{output("150000000", btcSubject), output("149000000", btcOther)},
			},
			wantType:     types.TypeReceive,
			wantAmount:   1.5,
			wantSender:   btcOther,
			wantReceiver: btcSubject,
		},
		{
			name: "coinbase reward",
			rec: types.ExplorerTransaction{
				Inputs: []types.ExplorerInput{{
					PrevHash:    "0000000000000000000000000000000000000000000000000000000000000000",
					OutputIndex: "-1",
					ScriptType:  "empty",
				}},
				Outputs: []types.ExplorerOutput{output("625000000", btcSubject)},
			},
			wantType:     types.TypeReceive,
			wantAmount:   6.25,
			wantSender:   types.PartyCoinbase,
			wantReceiver: btcSubject,
		},
		{
			name: "unrelated",
			rec: types.ExplorerTransaction{
				Inputs:  []types.ExplorerInput{input("1000", btcOther)},
				Outputs: []types.ExplorerOutput{output("900", btcThird)},
			},
			wantType:     types.TypeOther,
			wantAmount:   0,
			wantSender:   btcOther,
			wantReceiver: btcThird,
		},
		{
			name: "send to outputs without addresses",
			rec: types.ExplorerTransaction{
				Inputs:  []types.ExplorerInput{input("1000", btcSubject)},
				Outputs: []types.ExplorerOutput{output("400"), output("500")},
			},
			wantType:     types.TypeSend,
			wantAmount:   0.000009,
			wantSender:   btcSubject,
			wantReceiver: types.PartyMultipleRecipients,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rec.Hash = "tx-" + tt.name
			tt.rec.Fees = "10000"
			got, diags := NormalizeExplorerTransaction(tt.rec, types.ChainBTC, btcSubject)
			assert.Empty(t, diags)
			assert.Equal(t, tt.wantType, got.Type)
			assert.InDelta(t, tt.wantAmount, got.Amount, 1e-12)
			assert.Equal(t, tt.wantSender, got.Sender)
			assert.Equal(t, tt.wantReceiver, got.Receiver)
			assert.InDelta(t, 0.0001, got.Fees, 1e-12)
			assert.Equal(t, types.ChainBTC, got.Currency)
		})
	}
}

func TestNormalizeExplorerTransaction_StatusAndDate(t *testing.T) {
	rec := types.ExplorerTransaction{
		Hash:          "abc",
		BlockHeight:   "800000",
		Confirmations: "12",
		Confirmed:     "2024-03-01T10:00:00Z",
		Received:      "2024-03-01T09:58:00Z",
		Outputs:       []types.ExplorerOutput{output("1", btcSubject)},
	}
	got, diags := NormalizeExplorerTransaction(rec, "ltc", btcSubject)
	assert.Empty(t, diags)
	assert.Equal(t, types.StatusConfirmed, got.Status)
	require.NotNil(t, got.Date)
	assert.Equal(t, "2024-03-01T10:00:00.000Z", *got.Date)
	require.NotNil(t, got.BlockHeight)
	assert.Equal(t, int64(800000), *got.BlockHeight)
	assert.Equal(t, types.ChainLTC, got.Currency)

	rec.BlockHeight = "-1"
	rec.Confirmed = ""
	got, _ = NormalizeExplorerTransaction(rec, types.ChainLTC, btcSubject)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Nil(t, got.BlockHeight)
	require.NotNil(t, got.Date)
	assert.Equal(t, "2024-03-01T09:58:00.000Z", *got.Date)

	rec.Received = ""
	got, _ = NormalizeExplorerTransaction(rec, types.ChainLTC, btcSubject)
	assert.Nil(t, got.Date)
}

func TestNormalizeExplorerTransaction_Account(t *testing.T) {
	base := func(from, to, value string) types.ExplorerTransaction {
		return types.ExplorerTransaction{
			Hash:        "0xhash",
			BlockHeight: "19000000",
			GasUsed:     "21000",
			GasPrice:    "20000000000",
			Inputs:      []types.ExplorerInput{{Addresses: []string{from}}},
			Outputs:     []types.ExplorerOutput{{Value: types.NumericString(value), Addresses: []string{to}}},
		}
	}

	t.Run("send matches without prefix and case", func(t *testing.T) {
		rec := base("abc0000000000000000000000000000000000001", "0000000000000000000000000000000000000002", "1000000000000000000")
		got, diags := NormalizeExplorerTransaction(rec, types.ChainETH, ethSubject)
		assert.Empty(t, diags)
		assert.Equal(t, types.TypeSend, got.Type)
		assert.InDelta(t, 1.0, got.Amount, 1e-12)
		assert.Equal(t, "0xabc0000000000000000000000000000000000001", got.Sender)
		assert.Equal(t, ethOther, got.Receiver)
		// 21000 * 20 gwei
		assert.InDelta(t, 0.00042, got.Fees, 1e-15)
	})

	t.Run("receive", func(t *testing.T) {
		rec := base(ethOther, ethSubject, "500000000000000000")
		got, _ := NormalizeExplorerTransaction(rec, types.ChainETH, ethSubject)
		assert.Equal(t, types.TypeReceive, got.Type)
		assert.InDelta(t, 0.5, got.Amount, 1e-12)
	})

	t.Run("other with value", func(t *testing.T) {
		rec := base(ethOther, "0x0000000000000000000000000000000000000003", "1")
		got, _ := NormalizeExplorerTransaction(rec, types.ChainETH, ethSubject)
		assert.Equal(t, types.TypeOther, got.Type)
	})

	t.Run("zero value unrelated is contract interaction", func(t *testing.T) {
		rec := base(ethOther, "0x0000000000000000000000000000000000000003", "0")
		got, _ := NormalizeExplorerTransaction(rec, types.ChainETH, ethSubject)
		assert.Equal(t, types.TypeContractInteraction, got.Type)
	})

	t.Run("missing receiver", func(t *testing.T) {
		rec := base(ethSubject, "", "0")
		rec.Outputs[0].Addresses = nil
		got, _ := NormalizeExplorerTransaction(rec, types.ChainETH, ethSubject)
		assert.Equal(t, types.TypeSend, got.Type)
		assert.Equal(t, types.PartyContractOrUnknown, got.Receiver)
	})

	t.Run("execution error marks failed", func(t *testing.T) {
		rec := base(ethSubject, ethOther, "0")
		rec.ExecutionError = "Reverted"
		got, _ := NormalizeExplorerTransaction(rec, types.ChainETH, ethSubject)
		assert.Equal(t, types.StatusFailed, got.Status)
	})

	t.Run("flat fee without gas fields", func(t *testing.T) {
		rec := base(ethSubject, ethOther, "0")
		rec.GasUsed, rec.GasPrice = "", ""
		rec.Fees = "1000000000000000"
		got, _ := NormalizeExplorerTransaction(rec, types.ChainETH, ethSubject)
		assert.InDelta(t, 0.001, got.Fees, 1e-15)
	})
}

func TestNormalizeExplorerTransaction_Degraded(t *testing.T) {
	t.Run("missing address", func(t *testing.T) {
		rec := types.ExplorerTransaction{
			Hash:    "h",
			Inputs:  []types.ExplorerInput{input("100", btcOther)},
			Outputs: []types.ExplorerOutput{output("90", btcThird)},
		}
		got, diags := NormalizeExplorerTransaction(rec, types.ChainBTC, "")
		assert.Equal(t, types.TypeOther, got.Type)
		require.NotEmpty(t, diags)
		assert.Equal(t, types.DiagMissingAddress, diags[0].Code)
	})

	t.Run("malformed numeric field", func(t *testing.T) {
		rec := types.ExplorerTransaction{
			Hash:    "h",
			Fees:    "lots",
			Outputs: []types.ExplorerOutput{output("100000000", btcSubject)},
		}
		got, diags := NormalizeExplorerTransaction(rec, types.ChainBTC, btcSubject)
		assert.Equal(t, float64(0), got.Fees)
		assert.InDelta(t, 1.0, got.Amount, 1e-12)
		require.Len(t, diags, 1)
		assert.Equal(t, types.DiagInvalidNumber, diags[0].Code)
		assert.Equal(t, "fees", diags[0].Field)
		assert.Equal(t, "h", diags[0].Ref)
	})

	t.Run("unsupported currency", func(t *testing.T) {
		rec := types.ExplorerTransaction{Hash: "h", Outputs: []types.ExplorerOutput{output("42", btcSubject)}}
		got, diags := NormalizeExplorerTransaction(rec, "DOGE", btcSubject)
		assert.Equal(t, float64(42), got.Amount)
		require.NotEmpty(t, diags)
		assert.Equal(t, types.DiagUnsupportedCurrency, diags[0].Code)
	})
}

func TestNormalizeExplorerTransactions(t *testing.T) {
	payload := json.RawMessage(`[
		{"hash":"a","block_height":1,"fees":500,"inputs":[{"output_value":1000,"addresses":["1SubjectAddr"]}],"outputs":[{"value":500,"addresses":["1OtherAddr"]}]},
		"garbage",
		{"hash":"b","block_height":2,"fees":"0","outputs":[{"value":"700","addresses":["1SubjectAddr"]}]}
	]`)

	txs, diags := NormalizeExplorerTransactions(payload, types.ChainBTC, btcSubject)
	require.Len(t, txs, 2)
	assert.Equal(t, "a", txs[0].ID)
	assert.Equal(t, types.TypeSend, txs[0].Type)
	assert.Equal(t, "b", txs[1].ID)
	assert.Equal(t, types.TypeReceive, txs[1].Type)
	require.Len(t, diags, 1)
	assert.Equal(t, types.DiagInvalidRecord, diags[0].Code)
}

func TestNormalizeExplorerTransactions_LenientIntegers(t *testing.T) {
	payload := json.RawMessage(`[
		{"hash":"a","block_height":100,"confirmations":"12","fees":"1000","outputs":[{"value":"700","addresses":["1SubjectAddr"]}]},
		{"hash":"b","block_height":1.5,"confirmations":"many","fees":"1000","outputs":[{"value":"700","addresses":["1SubjectAddr"]}]}
	]`)

	txs, diags := NormalizeExplorerTransactions(payload, types.ChainBTC, btcSubject)
	require.Len(t, txs, 2)

	assert.Equal(t, int64(12), txs[0].Confirmations)
	require.NotNil(t, txs[0].BlockHeight)
	assert.Equal(t, int64(100), *txs[0].BlockHeight)
	assert.Equal(t, types.StatusConfirmed, txs[0].Status)

	assert.Equal(t, int64(0), txs[1].Confirmations)
	assert.Nil(t, txs[1].BlockHeight)
	assert.Equal(t, types.StatusPending, txs[1].Status)
	assert.Equal(t, types.TypeReceive, txs[1].Type)

	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, types.DiagInvalidNumber, d.Code)
		assert.Equal(t, "b", d.Ref)
	}
	assert.Equal(t, "block_height", diags[0].Field)
	assert.Equal(t, "confirmations", diags[1].Field)
}

func TestNormalizeExplorerTransactions_NotAnArray(t *testing.T) {
	for _, payload := range []string{`{"error":"rate limited"}`, `null`, ``, `"txs"`} {
		txs, diags := NormalizeExplorerTransactions(json.RawMessage(payload), types.ChainBTC, btcSubject)
		assert.NotNil(t, txs, payload)
		assert.Empty(t, txs, payload)
		require.Len(t, diags, 1, payload)
		assert.Equal(t, types.DiagNotAnArray, diags[0].Code)
	}
}

func TestUTXODirectionIsExclusive(t *testing.T) {
	properties := gopter.NewProperties(nil)

	addrs := []string{btcSubject, btcOther, btcThird}
	addrGen := gen.IntRange(0, len(addrs)-1).Map(func(i int) string { return addrs[i] })
	properties.Property("every record gets exactly one known direction", prop.ForAll(
		func(inAddr, outAddr string, inValue, outValue int64) bool {
			rec := types.ExplorerTransaction{
				Hash:    "p",
				Inputs:  []types.ExplorerInput{input(itoa(inValue), inAddr)},
				Outputs: []types.ExplorerOutput{output(itoa(outValue), outAddr)},
			}
			got, _ := NormalizeExplorerTransaction(rec, types.ChainBTC, btcSubject)
			switch got.Type {
			case types.TypeSend:
				return inAddr == btcSubject && outAddr != btcSubject && outValue > 0
			case types.TypeSelf:
				return inAddr == btcSubject && (outAddr == btcSubject || outValue == 0)
			case types.TypeReceive:
				return inAddr != btcSubject && outAddr == btcSubject && outValue > 0
			case types.TypeOther:
				return got.Amount == 0
			}
			return false
		},
		addrGen, addrGen,
		gen.Int64Range(1, 1_000_000_000), gen.Int64Range(0, 1_000_000_000),
	))

	properties.TestingRun(t)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
