// Package types provides common type definitions for the wallet insight system.
package types

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ChainSymbol is the uppercase three-letter symbol of a supported chain
type ChainSymbol string

const (
	// ChainBTC represents Bitcoin
	ChainBTC ChainSymbol = "BTC"
	// ChainETH represents Ethereum mainnet
	ChainETH ChainSymbol = "ETH"
	// ChainLTC represents Litecoin
	ChainLTC ChainSymbol = "LTC"
)

// ParseChainSymbol upper-cases a user supplied chain symbol
func ParseChainSymbol(s string) ChainSymbol {
	return ChainSymbol(strings.ToUpper(strings.TrimSpace(s)))
}

// IsUTXO reports whether the chain uses the UTXO ledger model
func (c ChainSymbol) IsUTXO() bool {
	return c == ChainBTC || c == ChainLTC
}

// TransactionType is the direction of a transaction relative to the subject address
type TransactionType string

const (
	TypeSend                TransactionType = "send"
	TypeReceive             TransactionType = "receive"
	TypeSelf                TransactionType = "self"
	TypeOther               TransactionType = "other"
	TypeContractInteraction TransactionType = "contract_interaction"
)

// TransactionStatus represents transaction confirmation state
type TransactionStatus string

const (
	// StatusPending represents a transaction without a block
	StatusPending TransactionStatus = "pending"
	// StatusConfirmed represents a transaction included in a block
	StatusConfirmed TransactionStatus = "confirmed"
	// StatusFailed represents a transaction whose execution reverted (ETH only)
	StatusFailed TransactionStatus = "failed"
)

// Sentinel counterparty values used when an address cannot be resolved
const (
	PartyCoinbase           = "Coinbase"
	PartyUnknown            = "Unknown"
	PartyMultipleRecipients = "Multiple Recipients"
	PartyContractOrUnknown  = "Contract Interaction or Unknown"
	FunctionUnknown         = "N/A"
)

// Transaction is the canonical, provider independent transaction record
type Transaction struct {
	ID            string            `json:"id"`
	Date          *string           `json:"date"`
	Currency      ChainSymbol       `json:"currency"`
	Confirmations int64             `json:"confirmations"`
	BlockHeight   *int64            `json:"blockHeight"`
	Status        TransactionStatus `json:"status"`
	Fees          float64           `json:"fees"`
	Amount        float64           `json:"amount"`
	Type          TransactionType   `json:"type"`
	Sender        string            `json:"sender"`
	Receiver      string            `json:"receiver"`
}

// TokenTransfer is a token movement attached to an analyzer transaction
type TokenTransfer struct {
	TokenSymbol     string `json:"tokenSymbol"`
	TokenName       string `json:"tokenName"`
	Amount          string `json:"amount"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
}

// AnalyzerTransaction is the enriched transaction shape consumed by the behavioral analyzer.
// Value is in standard units and GasPrice in Gwei.
type AnalyzerTransaction struct {
	Hash           string          `json:"hash"`
	FromAddress    string          `json:"fromAddress"`
	ToAddress      string          `json:"toAddress"`
	Value          string          `json:"value"`
	GasUsed        NumericString   `json:"gasUsed"`
	GasPrice       NumericString   `json:"gasPrice"`
	Timestamp      string          `json:"timestamp"`
	FunctionCalled string          `json:"functionCalled"`
	Input          string          `json:"input,omitempty"`
	TokenTransfers []TokenTransfer `json:"tokenTransfers,omitempty"`
}

// BehaviorMetrics are the aggregate metrics derived from a transaction list
type BehaviorMetrics struct {
	TotalTransactions         int        `json:"totalTransactions"`
	DexInteractionCount       int        `json:"dexInteractionCount"`
	NftInteractionCount       int        `json:"nftInteractionCount"`
	StablecoinTransferCount   int        `json:"stablecoinTransferCount"`
	FirstActivityDate         *time.Time `json:"firstActivityDate"`
	LastActivityDate          *time.Time `json:"lastActivityDate"`
	UniqueContractsInteracted int        `json:"uniqueContractsInteracted"`
	TransactionPeriodDays     int        `json:"transactionPeriodDays"`
	AvgTransactionsPerDay     float64    `json:"avgTransactionsPerDay"`
	GasSpentGwei              string     `json:"gasSpentGwei"` // integer Gwei, decimal string
}

// BehaviorAnalysis holds behavioral tags and the metrics they were derived from
type BehaviorAnalysis struct {
	Tags    []string        `json:"tags"`
	Metrics BehaviorMetrics `json:"metrics"`
}

// Diagnostic describes a recoverable data problem found while normalizing or analyzing
type Diagnostic struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Ref     string `json:"ref,omitempty"` // transaction hash when known
	Message string `json:"message"`
}

// Diagnostic codes
const (
	DiagUnsupportedCurrency = "unsupported_currency"
	DiagInvalidNumber       = "invalid_number"
	DiagMissingAddress      = "missing_address"
	DiagNotAnArray          = "not_an_array"
	DiagInvalidRecord       = "invalid_record"
	DiagInvalidTimestamp    = "invalid_timestamp"
)

// NumericString holds a provider numeric field verbatim. It accepts JSON numbers,
// strings and null so that a malformed value never fails decoding of the whole record.
type NumericString string

// UnmarshalJSON implements json.Unmarshaler
func (n *NumericString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumericString(strings.TrimSpace(s))
		return nil
	}
	*n = NumericString(data)
	return nil
}

// String returns the raw value
func (n NumericString) String() string {
	return string(n)
}

// ExplorerTransaction is a transaction from a block explorer "address full" endpoint.
// The same shape covers UTXO chains (BTC, LTC) and the account model (ETH).
type ExplorerTransaction struct {
	Hash           string           `json:"hash"`
	BlockHeight    NumericString    `json:"block_height"`
	Confirmations  NumericString    `json:"confirmations"`
	Confirmed      string           `json:"confirmed,omitempty"`
	Received       string           `json:"received,omitempty"`
	Fees           NumericString    `json:"fees"`
	GasUsed        NumericString    `json:"gas_used,omitempty"`
	GasPrice       NumericString    `json:"gas_price,omitempty"`
	ExecutionError string           `json:"execution_error,omitempty"`
	Inputs         []ExplorerInput  `json:"inputs"`
	Outputs        []ExplorerOutput `json:"outputs"`
}

// ExplorerInput is one input of an explorer transaction
type ExplorerInput struct {
	PrevHash    string        `json:"prev_hash,omitempty"`
	OutputIndex NumericString `json:"output_index"`
	OutputValue NumericString `json:"output_value"`
	Addresses   []string      `json:"addresses"`
	ScriptType  string        `json:"script_type,omitempty"`
}

// ExplorerOutput is one output of an explorer transaction
type ExplorerOutput struct {
	Value      NumericString `json:"value"`
	Addresses  []string      `json:"addresses"`
	ScriptType string        `json:"script_type,omitempty"`
}

// EtherscanTransaction represents a normal transaction from the Etherscan txlist API.
// Numeric fields accept both JSON strings and numbers.
type EtherscanTransaction struct {
	Hash            string        `json:"hash"`
	BlockNumber     NumericString `json:"blockNumber"`
	TimeStamp       NumericString `json:"timeStamp,omitempty"`
	From            string        `json:"from"`
	To              string        `json:"to"`
	Value           NumericString `json:"value"`
	Gas             NumericString `json:"gas"`
	GasPrice        NumericString `json:"gasPrice"`
	GasUsed         NumericString `json:"gasUsed"`
	IsError         NumericString `json:"isError"`
	TxReceiptStatus NumericString `json:"txreceipt_status"`
	Input           string        `json:"input"`
	MethodID        string        `json:"methodId"`
	FunctionName    string        `json:"functionName"`
	ContractAddress string        `json:"contractAddress"`
	Confirmations   NumericString `json:"confirmations"`
}

// EtherscanTokenTransfer represents an ERC-20 transfer from the Etherscan tokentx API
type EtherscanTokenTransfer struct {
	Hash            string `json:"hash"`
	TimeStamp       string `json:"timeStamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// TokenHolding represents an ERC-20 balance held by an address
type TokenHolding struct {
	TokenAddress string   `json:"tokenAddress"`
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	Decimals     int      `json:"decimals"`
	RawBalance   string   `json:"rawBalance"`
	Balance      float64  `json:"balance"`
	PossibleSpam bool     `json:"possibleSpam"`
	ValueUSD     *float64 `json:"valueUsd,omitempty"`
}

// FlowSummary aggregates canonical transaction amounts in standard units
type FlowSummary struct {
	TotalReceived float64  `json:"totalReceived"`
	TotalSent     float64  `json:"totalSent"`
	TotalFees     float64  `json:"totalFees"`
	PriceUSD      *float64 `json:"priceUsd,omitempty"`
}

// WalletReport is the merged view of a wallet handed to narrative generation
type WalletReport struct {
	ID           string           `json:"id"`
	Address      string           `json:"address"`
	Chain        ChainSymbol      `json:"chain"`
	GeneratedAt  time.Time        `json:"generatedAt"`
	Transactions []Transaction    `json:"transactions"`
	Behavior     BehaviorAnalysis `json:"behavior"`
	Flows        FlowSummary      `json:"flows"`
	Holdings     []TokenHolding   `json:"holdings,omitempty"`
	Narrative    string           `json:"narrative,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
