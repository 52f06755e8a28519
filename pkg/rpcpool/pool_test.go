package rpcpool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slotServer answers getSlot with a settable slot.
type slotServer struct {
	*httptest.Server
	slot  atomic.Uint64
	fail  atomic.Bool
	calls atomic.Int32
}

func newSlotServer(t *testing.T, slot uint64) *slotServer {
	s := &slotServer{}
	s.slot.Store(slot)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if s.fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			ID int64 `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": s.slot.Load()})
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func TestConfigValidate(t *testing.T) {
	_, err := New(DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultConfig("http://localhost")
	cfg.RequestTimeout = 0
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig("http://localhost")
	cfg.MaxFailures = 0
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRefreshExcludesLaggingEndpoints(t *testing.T) {
	ref := newSlotServer(t, 1_000)
	fresh := newSlotServer(t, 990)
	stale := newSlotServer(t, 900)

	cfg := DefaultConfig(fresh.URL, stale.URL)
	cfg.References = []string{ref.URL}
	cfg.SlotThreshold = 20
	p := newTestPool(t, cfg)
	assert.Equal(t, 2, p.HealthyCount(), "endpoints start healthy")

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, uint64(1_000), p.ReferenceSlot())
	assert.Equal(t, 1, p.HealthyCount())

	for i := 0; i < 4; i++ {
		ep, err := p.GetEndpoint(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fresh.URL, ep.URL)
	}

	stale.slot.Store(995)
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 2, p.HealthyCount())

	status := p.EndpointStatus()
	require.Len(t, status, 2)
	assert.Equal(t, uint64(995), status[1].Slot)
}

func TestReferenceUsesHighestSlot(t *testing.T) {
	low := newSlotServer(t, 100)
	high := newSlotServer(t, 500)
	down := newSlotServer(t, 0)
	down.fail.Store(true)

	cfg := DefaultConfig(low.URL)
	cfg.References = []string{low.URL, high.URL, down.URL}
	cfg.SlotThreshold = 10
	p := newTestPool(t, cfg)

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, uint64(500), p.ReferenceSlot())
	_, err := p.GetEndpoint(context.Background())
	assert.ErrorIs(t, err, ErrNoHealthyEndpoints)

	cfg.References = []string{down.URL}
	onlyDown := newTestPool(t, cfg)
	assert.Error(t, onlyDown.Refresh(context.Background()))
	assert.Equal(t, 1, onlyDown.HealthyCount(), "health kept without a reference slot")
}

func TestMarkUnhealthyAfterMaxFailures(t *testing.T) {
	cfg := DefaultConfig("http://a", "http://b")
	cfg.MaxFailures = 2
	p := newTestPool(t, cfg)

	p.MarkUnhealthy("http://a", errors.New("reset"))
	assert.Equal(t, 2, p.HealthyCount())
	p.MarkHealthy("http://a", time.Millisecond)
	p.MarkUnhealthy("http://a", errors.New("reset"))
	assert.Equal(t, 2, p.HealthyCount(), "success resets the failure count")
	p.MarkUnhealthy("http://a", errors.New("reset"))
	assert.Equal(t, 1, p.HealthyCount())

	ep, err := p.GetEndpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://b", ep.URL)
}

func TestStartAndStop(t *testing.T) {
	ref := newSlotServer(t, 10)
	p, err := New(DefaultConfig(ref.URL))
	require.NoError(t, err)

	p.Start(context.Background(), 5*time.Millisecond)
	assert.Eventually(t, func() bool { return ref.calls.Load() >= 4 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	_, err = p.GetEndpoint(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.ErrorIs(t, p.Refresh(context.Background()), ErrPoolClosed)
}
