package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/amm-analytics/internal/logging"
)

// Dialer connects to one RPC endpoint
type Dialer func(ctx context.Context, url string) (EthClient, error)

// DialEthClient dials an endpoint with go-ethereum's client
func DialEthClient(ctx context.Context, url string) (EthClient, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RPCPool manages multiple RPC endpoints with failover on rate limiting (429).
// It sticks to the current endpoint until it is rate limited, then moves to the next.
type RPCPool struct {
	endpoints    []string
	clients      []EthClient
	dial         Dialer
	currentIndex int
	mu           sync.RWMutex
	cooldowns    map[int]time.Time // When each endpoint was last rate limited
	cooldownTime time.Duration
	now          func() time.Time
}

// RPCPoolConfig holds configuration for creating an RPC pool
type RPCPoolConfig struct {
	Endpoints []string

	// CooldownTime is how long a rate-limited endpoint is skipped. Default: 60s.
	CooldownTime time.Duration

	// Dial defaults to DialEthClient
	Dial Dialer
}

// NewRPCPool connects to the first endpoint; the others are dialed on failover
func NewRPCPool(ctx context.Context, cfg *RPCPoolConfig) (*RPCPool, error) {
	if cfg == nil || len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	cooldownTime := cfg.CooldownTime
	if cooldownTime == 0 {
		cooldownTime = 60 * time.Second
	}
	dial := cfg.Dial
	if dial == nil {
		dial = DialEthClient
	}

	pool := &RPCPool{
		endpoints:    cfg.Endpoints,
		clients:      make([]EthClient, len(cfg.Endpoints)),
		dial:         dial,
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldownTime,
		now:          time.Now,
	}

	client, err := dial(ctx, cfg.Endpoints[0])
	if err != nil {
		return nil, NewAdapterError("NewRPCPool", err, map[string]interface{}{"endpoint": 0})
	}
	pool.clients[0] = client

	logging.FromContext(ctx).WithField("endpoints", len(cfg.Endpoints)).Info("RPC pool initialized")
	return pool, nil
}

// SplitEndpoints splits a comma separated URL list, dropping blanks
func SplitEndpoints(urls string) []string {
	var endpoints []string
	for _, ep := range strings.Split(urls, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints
}

// Client returns the current active client
func (p *RPCPool) Client() EthClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[p.currentIndex]
}

// CurrentIndex returns the current endpoint index
func (p *RPCPool) CurrentIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentIndex
}

// EndpointCount returns the number of endpoints in the pool
func (p *RPCPool) EndpointCount() int {
	return len(p.endpoints)
}

// OnRateLimited marks the current endpoint as rate limited and switches to the
// next endpoint out of cooldown. It fails when every endpoint is cooling down.
func (p *RPCPool) OnRateLimited(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := logging.FromContext(ctx)
	p.cooldowns[p.currentIndex] = p.now()
	startIndex := p.currentIndex

	for i := 1; i < len(p.endpoints); i++ {
		next := (startIndex + i) % len(p.endpoints)

		if limitedAt, exists := p.cooldowns[next]; exists {
			if p.now().Sub(limitedAt) < p.cooldownTime {
				continue
			}
			delete(p.cooldowns, next)
		}

		if err := p.switchToEndpoint(ctx, next); err != nil {
			logger.WithError(err).WithField("endpoint", next).Warn("Failed to switch RPC endpoint")
			continue
		}

		logger.WithFields(map[string]interface{}{
			"from": startIndex,
			"to":   next,
		}).Info("Switched RPC endpoint after rate limit")
		return nil
	}

	return fmt.Errorf("all %d RPC endpoints: %w", len(p.endpoints), ErrProviderRateLimit)
}

// switchToEndpoint must be called with the lock held
func (p *RPCPool) switchToEndpoint(ctx context.Context, index int) error {
	if p.clients[index] == nil {
		client, err := p.dial(ctx, p.endpoints[index])
		if err != nil {
			return fmt.Errorf("failed to connect to endpoint %d: %w", index, err)
		}
		p.clients[index] = client
	}
	p.currentIndex = index
	return nil
}

// TryResetToPrimary switches back to endpoint 0 once its cooldown has expired
func (p *RPCPool) TryResetToPrimary(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIndex == 0 {
		return true
	}
	if limitedAt, exists := p.cooldowns[0]; exists {
		if p.now().Sub(limitedAt) < p.cooldownTime {
			return false
		}
		delete(p.cooldowns, 0)
	}
	if err := p.switchToEndpoint(ctx, 0); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to reset to primary RPC endpoint")
		return false
	}
	return true
}

// IsRateLimitError checks if an error indicates rate limiting (429)
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "throttl")
}

// Close closes every connected client that supports closing
func (p *RPCPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, client := range p.clients {
		if closer, ok := client.(interface{ Close() }); ok {
			closer.Close()
		}
		p.clients[i] = nil
	}
}
