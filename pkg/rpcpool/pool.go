// Package rpcpool provides a slot-aware RPC endpoint pool for cloning.
//
// Accounts cloned from endpoints at different slots may be mutually
// inconsistent. The pool compares each endpoint's slot to the highest slot
// reported by a set of reference endpoints and serves only endpoints within
// a configurable threshold of it.
//
// Usage:
//
//	pool, err := rpcpool.New(rpcpool.Config{
//	    References: []string{"https://rpc.mainnet.x1.xyz"},
//	    Endpoints:  []string{"https://my-rpc-1.example.com", "https://my-rpc-2.example.com"},
//	})
//	if err := pool.Refresh(ctx); err != nil {
//	    return err
//	}
//	cloner, err := rpcfetch.NewCloner(pool, rpcfetch.DefaultConfig())
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortiblox/stratus-harness/pkg/rpcfetch"
)

// Pool errors.
var (
	ErrNoHealthyEndpoints = errors.New("no healthy endpoints available")
	ErrPoolClosed         = errors.New("pool is closed")
	ErrInvalidConfig      = errors.New("invalid pool configuration")
)

// Default configuration values.
const (
	DefaultSlotThreshold     = uint64(50)
	DefaultHealthCheckPeriod = 30 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
	DefaultMaxFailures       = 3
)

// Config holds the configuration for a Pool.
type Config struct {
	// References are trusted endpoints used as the slot source of truth.
	// Defaults to Endpoints.
	References []string

	// Endpoints are the endpoints requests are served from.
	Endpoints []string

	// SlotThreshold is how many slots an endpoint may trail the reference
	// slot and still be served.
	SlotThreshold uint64

	// RequestTimeout bounds each getSlot probe.
	RequestTimeout time.Duration

	// MaxFailures is the number of consecutive failed requests after which
	// an endpoint stops being served until the next successful probe.
	MaxFailures int

	// Commitment is the commitment level for slot probes.
	Commitment string

	Logger zerolog.Logger
}

// DefaultConfig returns a configuration for endpoints.
func DefaultConfig(endpoints ...string) Config {
	return Config{
		Endpoints:      endpoints,
		SlotThreshold:  DefaultSlotThreshold,
		RequestTimeout: DefaultRequestTimeout,
		MaxFailures:    DefaultMaxFailures,
		Commitment:     "confirmed",
		Logger:         zerolog.Nop(),
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("%w: no endpoints", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxFailures <= 0 {
		return fmt.Errorf("%w: max failures must be positive", ErrInvalidConfig)
	}
	return nil
}

// endpointState is the health state of one endpoint.
type endpointState struct {
	url       string
	client    *rpcfetch.RPCClient
	healthy   atomic.Bool
	lastSlot  atomic.Uint64
	lastCheck atomic.Int64 // Unix nano timestamp
	failCount atomic.Int32
	latency   atomic.Int64
}

// Pool serves endpoints that are close to the reference slot.
//
// Endpoints start healthy; Refresh or the Start loop probes them.
type Pool struct {
	config     Config
	endpoints  []*endpointState
	references []*endpointState
	nextIndex  atomic.Uint64
	refSlot    atomic.Uint64

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool

	logger zerolog.Logger
}

// New creates a pool from config.
func New(config Config) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(config.References) == 0 {
		config.References = config.Endpoints
	}

	p := &Pool{
		config: config,
		logger: config.Logger.With().Str("component", "rpcpool").Logger(),
	}
	byURL := make(map[string]*endpointState)
	state := func(url string) *endpointState {
		if ep, ok := byURL[url]; ok {
			return ep
		}
		ep := &endpointState{
			url:    url,
			client: rpcfetch.NewRPCClient(rpcfetch.NewSimplePool([]string{url}), config.RequestTimeout),
		}
		ep.healthy.Store(true)
		byURL[url] = ep
		return ep
	}
	for _, url := range config.Endpoints {
		p.endpoints = append(p.endpoints, state(url))
	}
	for _, url := range config.References {
		p.references = append(p.references, state(url))
	}
	return p, nil
}

// GetEndpoint returns a healthy endpoint using round-robin selection.
func (p *Pool) GetEndpoint(ctx context.Context) (*rpcfetch.Endpoint, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var healthy []*endpointState
	for _, ep := range p.endpoints {
		if ep.healthy.Load() {
			healthy = append(healthy, ep)
		}
	}
	if len(healthy) == 0 {
		return nil, ErrNoHealthyEndpoints
	}

	ep := healthy[p.nextIndex.Add(1)%uint64(len(healthy))]
	return &rpcfetch.Endpoint{
		URL:         ep.url,
		Healthy:     true,
		LastSuccess: time.Unix(0, ep.lastCheck.Load()),
		Latency:     time.Duration(ep.latency.Load()),
	}, nil
}

// MarkUnhealthy records a failed request. The endpoint stops being served
// after MaxFailures consecutive failures.
func (p *Pool) MarkUnhealthy(url string, err error) {
	for _, ep := range p.endpoints {
		if ep.url != url {
			continue
		}
		if int(ep.failCount.Add(1)) >= p.config.MaxFailures && ep.healthy.Swap(false) {
			p.logger.Warn().Err(err).Str("endpoint", url).Msg("endpoint marked unhealthy")
		}
	}
}

// MarkHealthy records a successful request.
func (p *Pool) MarkHealthy(url string, latency time.Duration) {
	for _, ep := range p.endpoints {
		if ep.url == url {
			ep.failCount.Store(0)
			ep.latency.Store(int64(latency))
		}
	}
}

// HealthyCount returns the number of currently healthy endpoints.
func (p *Pool) HealthyCount() int {
	count := 0
	for _, ep := range p.endpoints {
		if ep.healthy.Load() {
			count++
		}
	}
	return count
}

// ReferenceSlot returns the reference slot seen by the last probe.
func (p *Pool) ReferenceSlot() uint64 {
	return p.refSlot.Load()
}

// Refresh probes every endpoint once and updates its health against the
// reference slot. Health states are kept if no reference answers.
func (p *Pool) Refresh(ctx context.Context) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	refSlot, err := p.fetchReferenceSlot(ctx)
	if err != nil {
		return err
	}
	p.refSlot.Store(refSlot)

	var wg sync.WaitGroup
	for _, ep := range p.endpoints {
		wg.Add(1)
		go func(ep *endpointState) {
			defer wg.Done()
			p.checkEndpoint(ctx, ep, refSlot)
		}(ep)
	}
	wg.Wait()

	p.logger.Debug().
		Uint64("reference_slot", refSlot).
		Int("healthy", p.HealthyCount()).
		Int("total", len(p.endpoints)).
		Msg("endpoints probed")
	return nil
}

// Start runs Refresh every period until Stop is called or ctx ends.
func (p *Pool) Start(ctx context.Context, period time.Duration) {
	if p.started.Swap(true) {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
					p.logger.Warn().Err(err).Msg("endpoint probe failed")
				}
			}
		}
	}()
}

// Stop stops the probe loop and releases the pool's clients.
func (p *Pool) Stop() {
	if p.closed.Swap(true) {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	seen := make(map[*endpointState]bool)
	for _, ep := range append(p.endpoints, p.references...) {
		if !seen[ep] {
			seen[ep] = true
			ep.client.Close()
		}
	}
}

// checkEndpoint probes one endpoint.
func (p *Pool) checkEndpoint(ctx context.Context, ep *endpointState, refSlot uint64) {
	start := time.Now()
	slot, err := ep.client.GetSlot(ctx, p.config.Commitment)
	ep.lastCheck.Store(time.Now().UnixNano())

	if err != nil {
		if int(ep.failCount.Add(1)) >= p.config.MaxFailures && ep.healthy.Swap(false) {
			p.logger.Warn().Err(err).Str("endpoint", ep.url).Msg("endpoint marked unhealthy")
		}
		return
	}

	ep.failCount.Store(0)
	ep.lastSlot.Store(slot)
	ep.latency.Store(int64(time.Since(start)))

	var behind uint64
	if refSlot > slot {
		behind = refSlot - slot
	}

	healthy := behind <= p.config.SlotThreshold
	if wasHealthy := ep.healthy.Swap(healthy); wasHealthy != healthy {
		p.logger.Info().
			Str("endpoint", ep.url).
			Bool("healthy", healthy).
			Uint64("slot", slot).
			Uint64("behind", behind).
			Msg("endpoint health changed")
	}
}

// fetchReferenceSlot returns the highest slot among the references.
func (p *Pool) fetchReferenceSlot(ctx context.Context) (uint64, error) {
	type result struct {
		slot uint64
		err  error
	}

	results := make(chan result, len(p.references))
	for _, ref := range p.references {
		go func(ref *endpointState) {
			slot, err := ref.client.GetSlot(ctx, p.config.Commitment)
			results <- result{slot: slot, err: err}
		}(ref)
	}

	var (
		maxSlot      uint64
		successCount int
		lastErr      error
	)
	for range p.references {
		r := <-results
		if r.err != nil {
			lastErr = r.err
			continue
		}
		successCount++
		maxSlot = max(maxSlot, r.slot)
	}

	if successCount == 0 {
		return 0, fmt.Errorf("fetch reference slot: %w", lastErr)
	}
	return maxSlot, nil
}

// EndpointStatus returns the status of all endpoints in the pool.
func (p *Pool) EndpointStatus() []EndpointInfo {
	infos := make([]EndpointInfo, len(p.endpoints))
	for i, ep := range p.endpoints {
		infos[i] = EndpointInfo{
			URL:       ep.url,
			Healthy:   ep.healthy.Load(),
			Slot:      ep.lastSlot.Load(),
			LastCheck: time.Unix(0, ep.lastCheck.Load()),
			FailCount: int(ep.failCount.Load()),
		}
	}
	return infos
}

// EndpointInfo contains status information about an endpoint.
type EndpointInfo struct {
	URL       string
	Healthy   bool
	Slot      uint64
	LastCheck time.Time
	FailCount int
}

var _ rpcfetch.Pool = (*Pool)(nil)
