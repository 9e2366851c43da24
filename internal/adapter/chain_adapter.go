// Package adapter reads pair and factory logs from an EVM chain and serves the
// contract calls the analytics engine needs (getPair, balanceOf, token metadata).
package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthClient is the subset of the RPC client the adapter uses
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ EthClient = (*ethclient.Client)(nil)

// Common error types for the chain adapter

var (
	// ErrProviderUnavailable indicates every RPC endpoint is unavailable
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrProviderRateLimit indicates every RPC endpoint is rate limited
	ErrProviderRateLimit = fmt.Errorf("provider rate limit exceeded")

	// ErrBlockNotFound indicates the requested block was not found
	ErrBlockNotFound = fmt.Errorf("block not found")

	// ErrInvalidBlockRange indicates an invalid block range was specified
	ErrInvalidBlockRange = fmt.Errorf("invalid block range")

	// ErrMalformedLog indicates a log whose topics or data do not match its event signature
	ErrMalformedLog = fmt.Errorf("malformed log")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Op      string // Operation that failed (e.g., "FetchLogs", "BalanceOf")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s]: %v (details: %+v)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s]: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// IsRevert reports whether err is a contract execution revert rather than a transport failure
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

type callBlockKey struct{}

// WithCallBlock pins contract calls made under ctx to the state at the given block
func WithCallBlock(ctx context.Context, block uint64) context.Context {
	return context.WithValue(ctx, callBlockKey{}, block)
}

// callBlockFromContext returns the pinned block, or nil for the latest state
func callBlockFromContext(ctx context.Context) *big.Int {
	if block, ok := ctx.Value(callBlockKey{}).(uint64); ok {
		return new(big.Int).SetUint64(block)
	}
	return nil
}
