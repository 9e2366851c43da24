package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Transaction groups the liquidity and trade records of one transaction hash
type Transaction struct {
	ID          string   `json:"id"` // Lowercase transaction hash
	BlockNumber uint64   `json:"blockNumber"`
	Timestamp   int64    `json:"timestamp"`
	Mints       []string `json:"mints"`
	Burns       []string `json:"burns"`
	Swaps       []string `json:"swaps"`
}

// NewTransaction returns a transaction with empty record lists
func NewTransaction(id string, blockNumber uint64, timestamp int64) *Transaction {
	return &Transaction{
		ID:          id,
		BlockNumber: blockNumber,
		Timestamp:   timestamp,
		Mints:       []string{},
		Burns:       []string{},
		Swaps:       []string{},
	}
}

// RecordID returns the deterministic id of the next record appended to a list of length n
func RecordID(txID string, n int) string {
	return fmt.Sprintf("%s-%d", txID, n)
}

// LastMint returns the id of the most recent mint, if any
func (t *Transaction) LastMint() (string, bool) {
	if len(t.Mints) == 0 {
		return "", false
	}
	return t.Mints[len(t.Mints)-1], true
}

// LastBurn returns the id of the most recent burn, if any
func (t *Transaction) LastBurn() (string, bool) {
	if len(t.Burns) == 0 {
		return "", false
	}
	return t.Burns[len(t.Burns)-1], true
}

// Mint is a liquidity addition. It stays pending until Sender is set.
type Mint struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Pair        string          `json:"pair"`
	Timestamp   int64           `json:"timestamp"`
	To          string          `json:"to"`
	Liquidity   decimal.Decimal `json:"liquidity"`
	Sender      *string         `json:"sender,omitempty"`

	Amount0         decimal.NullDecimal `json:"amount0"`
	Amount1         decimal.NullDecimal `json:"amount1"`
	AmountUSD       decimal.NullDecimal `json:"amountUSD"`
	AmountSecondary decimal.NullDecimal `json:"amountSecondary"`
	LogIndex        *uint               `json:"logIndex,omitempty"`
}

// IsComplete reports whether the Mint event has finalized this record
func (m *Mint) IsComplete() bool {
	return m.Sender != nil
}

// Burn is a liquidity removal. NeedsComplete marks a record opened by a
// direct LP send to the pair that still waits for its zero-address burn leg.
type Burn struct {
	ID            string          `json:"id"`
	Transaction   string          `json:"transaction"`
	Pair          string          `json:"pair"`
	Timestamp     int64           `json:"timestamp"`
	Liquidity     decimal.Decimal `json:"liquidity"`
	Sender        *string         `json:"sender,omitempty"`
	To            *string         `json:"to,omitempty"`
	NeedsComplete bool            `json:"needsComplete"`

	Amount0         decimal.NullDecimal `json:"amount0"`
	Amount1         decimal.NullDecimal `json:"amount1"`
	AmountUSD       decimal.NullDecimal `json:"amountUSD"`
	AmountSecondary decimal.NullDecimal `json:"amountSecondary"`
	LogIndex        *uint               `json:"logIndex,omitempty"`

	FeeTo        *string             `json:"feeTo,omitempty"`
	FeeLiquidity decimal.NullDecimal `json:"feeLiquidity"`
}

// Swap is an immutable trade record
type Swap struct {
	ID              string          `json:"id"`
	Transaction     string          `json:"transaction"`
	Pair            string          `json:"pair"`
	Timestamp       int64           `json:"timestamp"`
	Sender          string          `json:"sender"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Amount0In       decimal.Decimal `json:"amount0In"`
	Amount1In       decimal.Decimal `json:"amount1In"`
	Amount0Out      decimal.Decimal `json:"amount0Out"`
	Amount1Out      decimal.Decimal `json:"amount1Out"`
	AmountUSD       decimal.Decimal `json:"amountUSD"`
	AmountSecondary decimal.Decimal `json:"amountSecondary"`
	LogIndex        uint            `json:"logIndex"`
}
