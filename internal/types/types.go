// Package types provides the decoded pair and factory events consumed by the analytics engine.
package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies a decoded on-chain event
type EventKind string

const (
	// KindTransfer is an ERC-20 Transfer of the pair's LP token
	KindTransfer EventKind = "transfer"
	// KindSync is a pair reserve update
	KindSync EventKind = "sync"
	// KindMint is a pair liquidity addition
	KindMint EventKind = "mint"
	// KindBurn is a pair liquidity removal
	KindBurn EventKind = "burn"
	// KindSwap is a pair trade
	KindSwap EventKind = "swap"
	// KindPairCreated is a factory pair registration
	KindPairCreated EventKind = "pair_created"
)

// ZeroAddress is the mint source / burn sink of LP tokens
var ZeroAddress = common.Address{}

// EventContext is the ambient transaction context every event carries
type EventContext struct {
	Address     common.Address `json:"address"` // Emitting contract (pair or factory)
	TxHash      common.Hash    `json:"txHash"`
	TxFrom      common.Address `json:"txFrom"` // Originating external account
	LogIndex    uint           `json:"logIndex"`
	BlockNumber uint64         `json:"blockNumber"`
	Timestamp   int64          `json:"timestamp"` // Block timestamp, unix seconds
}

// Cursor returns the canonical position of the event in the chain
func (c EventContext) Cursor() Cursor {
	return Cursor{BlockNumber: c.BlockNumber, LogIndex: c.LogIndex}
}

// TxID returns the lowercase transaction hash used as the Transaction entity id
func (c EventContext) TxID() string {
	return strings.ToLower(c.TxHash.Hex())
}

// PairID returns the lowercase emitting address used as the Pair entity id
func (c EventContext) PairID() string {
	return AddressID(c.Address)
}

// Event is implemented by every decoded event
type Event interface {
	Kind() EventKind
	Context() EventContext
}

// Transfer is Transfer(from, to, value) on a pair's LP token
type Transfer struct {
	EventContext
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

// Sync is Sync(reserve0, reserve1)
type Sync struct {
	EventContext
	Reserve0 *big.Int `json:"reserve0"`
	Reserve1 *big.Int `json:"reserve1"`
}

// Mint is Mint(sender, amount0, amount1)
type Mint struct {
	EventContext
	Sender  common.Address `json:"sender"`
	Amount0 *big.Int       `json:"amount0"`
	Amount1 *big.Int       `json:"amount1"`
}

// Burn is Burn(sender, amount0, amount1, to)
type Burn struct {
	EventContext
	Sender  common.Address `json:"sender"`
	Amount0 *big.Int       `json:"amount0"`
	Amount1 *big.Int       `json:"amount1"`
	To      common.Address `json:"to"`
}

// Swap is Swap(sender, amount0In, amount1In, amount0Out, amount1Out, to)
type Swap struct {
	EventContext
	Sender     common.Address `json:"sender"`
	Amount0In  *big.Int       `json:"amount0In"`
	Amount1In  *big.Int       `json:"amount1In"`
	Amount0Out *big.Int       `json:"amount0Out"`
	Amount1Out *big.Int       `json:"amount1Out"`
	To         common.Address `json:"to"`
}

// PairCreated is PairCreated(token0, token1, pair, index) emitted by the factory
type PairCreated struct {
	EventContext
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
	Pair   common.Address `json:"pair"`
	Index  *big.Int       `json:"index"`
}

func (e *Transfer) Kind() EventKind    { return KindTransfer }
func (e *Sync) Kind() EventKind        { return KindSync }
func (e *Mint) Kind() EventKind        { return KindMint }
func (e *Burn) Kind() EventKind        { return KindBurn }
func (e *Swap) Kind() EventKind        { return KindSwap }
func (e *PairCreated) Kind() EventKind { return KindPairCreated }

func (e *Transfer) Context() EventContext    { return e.EventContext }
func (e *Sync) Context() EventContext        { return e.EventContext }
func (e *Mint) Context() EventContext        { return e.EventContext }
func (e *Burn) Context() EventContext        { return e.EventContext }
func (e *Swap) Context() EventContext        { return e.EventContext }
func (e *PairCreated) Context() EventContext { return e.EventContext }

// Cursor orders events canonically (block number, then block-level log index)
type Cursor struct {
	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint   `json:"logIndex"`
}

// Before reports whether c sorts strictly before other
func (c Cursor) Before(other Cursor) bool {
	if c.BlockNumber != other.BlockNumber {
		return c.BlockNumber < other.BlockNumber
	}
	return c.LogIndex < other.LogIndex
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d", c.BlockNumber, c.LogIndex)
}

// AddressID returns the entity id form of an address (lowercase 0x-prefixed hex)
func AddressID(addr common.Address) string {
	return strings.ToLower(addr.Hex())
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
