package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/amm-analytics/internal/circuitbreaker"
	"github.com/amm-analytics/internal/logging"
	"github.com/amm-analytics/internal/service"
	"github.com/amm-analytics/internal/types"
)

// DefaultLogAddressBatch caps the addresses of a single eth_getLogs request
const DefaultLogAddressBatch = 500

// unknownMetadata is recorded when a token returns neither a string nor a bytes32 name or symbol
const unknownMetadata = "unknown"

// ChainClient serves log fetching and the engine's contract calls over an RPC pool.
// Every request waits on the rate limiter and runs inside the circuit breaker; a
// rate-limited request fails over to the next endpoint of the pool.
type ChainClient struct {
	pool         *RPCPool
	factory      common.Address
	limiter      *rate.Limiter
	breaker      *circuitbreaker.CircuitBreaker
	staticTokens map[common.Address]service.TokenMetadata
	logBatch     int

	mu      sync.Mutex
	chainID *big.Int
}

// ChainClientConfig holds configuration for creating a ChainClient
type ChainClientConfig struct {
	// Pool is the RPC endpoint pool. Required.
	Pool *RPCPool

	// Factory is the pair factory queried by getPair
	Factory common.Address

	// RateLimit is requests per second across the pool. 0 disables limiting.
	RateLimit float64
	Burst     int

	// Breaker defaults to a breaker that ignores contract reverts
	Breaker *circuitbreaker.CircuitBreaker

	// StaticTokens override on-chain metadata
	StaticTokens map[common.Address]service.TokenMetadata

	// LogAddressBatch defaults to DefaultLogAddressBatch
	LogAddressBatch int
}

// NewChainClient creates a chain client
func NewChainClient(cfg *ChainClientConfig) (*ChainClient, error) {
	if cfg == nil || cfg.Pool == nil {
		return nil, fmt.Errorf("RPC pool is required")
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breakerCfg := circuitbreaker.DefaultConfig("rpc")
		breakerCfg.IsFailure = func(err error) bool {
			return !IsRevert(err) && !errors.Is(err, context.Canceled)
		}
		breaker = circuitbreaker.NewCircuitBreaker(breakerCfg)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	logBatch := cfg.LogAddressBatch
	if logBatch <= 0 {
		logBatch = DefaultLogAddressBatch
	}

	return &ChainClient{
		pool:         cfg.Pool,
		factory:      cfg.Factory,
		limiter:      limiter,
		breaker:      breaker,
		staticTokens: cfg.StaticTokens,
		logBatch:     logBatch,
	}, nil
}

// Breaker exposes the circuit breaker for health reporting
func (c *ChainClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// do runs fn against the current endpoint, failing over while endpoints report rate limiting
func (c *ChainClient) do(ctx context.Context, fn func(EthClient) error) error {
	var err error
	for attempt := 0; attempt < c.pool.EndpointCount(); attempt++ {
		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return werr
			}
		}

		client := c.pool.Client()
		err = c.breaker.Execute(ctx, func() error { return fn(client) })
		if err == nil || !IsRateLimitError(err) {
			return err
		}
		if ferr := c.pool.OnRateLimited(ctx); ferr != nil {
			return errors.Join(err, ferr)
		}
	}
	return err
}

// BlockNumber returns the chain head. It is called once per poll, so it also
// moves the pool back to the primary endpoint after a failover cooldown.
func (c *ChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	c.pool.TryResetToPrimary(ctx)

	var head uint64
	err := c.do(ctx, func(client EthClient) error {
		var err error
		head, err = client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, NewAdapterError("BlockNumber", err, nil)
	}
	return head, nil
}

// FetchLogs returns the logs with one of topics emitted by addresses in [from, to].
// Large address sets are split across several requests.
func (c *ChainClient) FetchLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]ethtypes.Log, error) {
	if from > to {
		return nil, NewAdapterError("FetchLogs", ErrInvalidBlockRange, map[string]interface{}{
			"from": from,
			"to":   to,
		})
	}
	if len(addresses) == 0 {
		return nil, nil
	}

	var logs []ethtypes.Log
	for start := 0; start < len(addresses); start += c.logBatch {
		end := min(start+c.logBatch, len(addresses))
		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: addresses[start:end],
			Topics:    [][]common.Hash{topics},
		}

		var batch []ethtypes.Log
		err := c.do(ctx, func(client EthClient) error {
			var err error
			batch, err = client.FilterLogs(ctx, query)
			return err
		})
		if err != nil {
			return nil, NewAdapterError("FetchLogs", err, map[string]interface{}{
				"from":      from,
				"to":        to,
				"addresses": end - start,
			})
		}
		logs = append(logs, batch...)
	}
	return logs, nil
}

// BlockContext fetches the timestamp and transaction senders of a block
func (c *ChainClient) BlockContext(ctx context.Context, number uint64) (*BlockContext, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	var block *ethtypes.Block
	err = c.do(ctx, func(client EthClient) error {
		var err error
		block, err = client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return nil, NewAdapterError("BlockContext", err, map[string]interface{}{"block": number})
	}
	if block == nil {
		return nil, NewAdapterError("BlockContext", ErrBlockNotFound, map[string]interface{}{"block": number})
	}

	signer := ethtypes.LatestSignerForChainID(chainID)
	senders := make(map[common.Hash]common.Address, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		from, err := ethtypes.Sender(signer, tx)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
				"block": number,
				"tx":    tx.Hash().Hex(),
			}).Warn("Could not recover transaction sender")
			continue
		}
		senders[tx.Hash()] = from
	}

	return &BlockContext{
		Number:    number,
		Timestamp: int64(block.Time()), // #nosec G115 - block timestamps fit in int64
		Senders:   senders,
	}, nil
}

// ChainID returns the chain id, cached after the first successful read
func (c *ChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}

	var id *big.Int
	err := c.do(ctx, func(client EthClient) error {
		var err error
		id, err = client.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, NewAdapterError("ChainID", err, nil)
	}
	c.chainID = id
	return id, nil
}

// TryGetPair asks the factory for the pair of two tokens.
// Any failure, including a revert, reports no pair.
func (c *ChainClient) TryGetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, bool) {
	values, err := c.callView(ctx, c.factory, factoryABI.Pack, factoryABI.Unpack, "getPair", tokenA, tokenB)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"tokenA": types.AddressID(tokenA),
			"tokenB": types.AddressID(tokenB),
		}).Debug("getPair failed")
		return common.Address{}, false
	}
	pair, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, false
	}
	return pair, true
}

// BalanceOf reads an LP token balance
func (c *ChainClient) BalanceOf(ctx context.Context, lpToken, account common.Address) (*big.Int, error) {
	values, err := c.callView(ctx, lpToken, erc20ABI.Pack, erc20ABI.Unpack, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, NewAdapterError("BalanceOf", fmt.Errorf("unexpected output %T", values[0]), nil)
	}
	return balance, nil
}

// TokenMetadata reads symbol, name and decimals. Static definitions win; a name or
// symbol that cannot be read is recorded as "unknown", while unreadable decimals fail.
func (c *ChainClient) TokenMetadata(ctx context.Context, token common.Address) (service.TokenMetadata, error) {
	if meta, ok := c.staticTokens[token]; ok {
		return meta, nil
	}

	values, err := c.callView(ctx, token, erc20ABI.Pack, erc20ABI.Unpack, "decimals")
	if err != nil {
		return service.TokenMetadata{}, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return service.TokenMetadata{}, NewAdapterError("TokenMetadata", fmt.Errorf("unexpected decimals %T", values[0]), nil)
	}

	return service.TokenMetadata{
		Symbol:   c.readText(ctx, token, "symbol"),
		Name:     c.readText(ctx, token, "name"),
		Decimals: int(decimals),
	}, nil
}

// readText reads a string-returning view, falling back to its bytes32 variant
func (c *ChainClient) readText(ctx context.Context, token common.Address, method string) string {
	if values, err := c.callView(ctx, token, erc20ABI.Pack, erc20ABI.Unpack, method); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	if values, err := c.callView(ctx, token, erc20Bytes32ABI.Pack, erc20Bytes32ABI.Unpack, method); err == nil {
		if raw, ok := values[0].([32]byte); ok {
			if s := string(bytes.TrimRight(raw[:], "\x00")); s != "" {
				return s
			}
		}
	}
	return unknownMetadata
}

type packFunc func(name string, args ...interface{}) ([]byte, error)
type unpackFunc func(name string, data []byte) ([]interface{}, error)

// callView packs a view call, runs it at the block pinned in ctx and unpacks one or more outputs
func (c *ChainClient) callView(ctx context.Context, to common.Address, pack packFunc, unpack unpackFunc, method string, args ...interface{}) ([]interface{}, error) {
	data, err := pack(method, args...)
	if err != nil {
		return nil, NewAdapterError(method, err, nil)
	}

	var out []byte
	err = c.do(ctx, func(client EthClient) error {
		var err error
		out, err = client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, callBlockFromContext(ctx))
		return err
	})
	if err != nil {
		return nil, NewAdapterError(method, err, map[string]interface{}{"contract": types.AddressID(to)})
	}

	values, err := unpack(method, out)
	if err != nil {
		return nil, NewAdapterError(method, err, map[string]interface{}{"contract": types.AddressID(to)})
	}
	if len(values) == 0 {
		return nil, NewAdapterError(method, fmt.Errorf("empty output"), nil)
	}
	return values, nil
}

// ParseStaticTokens parses address:symbol:name:decimals definitions
func ParseStaticTokens(defs []string) (map[common.Address]service.TokenMetadata, error) {
	tokens := make(map[common.Address]service.TokenMetadata, len(defs))
	for _, def := range defs {
		parts := strings.Split(def, ":")
		if len(parts) != 4 || !common.IsHexAddress(parts[0]) {
			return nil, fmt.Errorf("invalid static token definition %q", def)
		}
		decimals, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, fmt.Errorf("invalid decimals in static token definition %q: %w", def, err)
		}
		tokens[common.HexToAddress(parts[0])] = service.TokenMetadata{
			Symbol:   parts[1],
			Name:     parts[2],
			Decimals: decimals,
		}
	}
	return tokens, nil
}
