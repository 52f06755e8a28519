package rpcfetch

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
)

// fakeCluster serves getMultipleAccounts from an in-memory account set.
type fakeCluster struct {
	mu       sync.Mutex
	accounts map[string]accounts.Account
	calls    atomic.Int32

	// failFirst makes the first n requests return HTTP 500.
	failFirst int32

	// rpcErr, when set, is returned for every request.
	rpcErr *RPCError
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{accounts: make(map[string]accounts.Account)}
}

func (f *fakeCluster) put(addr types.Pubkey, acc accounts.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[addr.String()] = acc
}

func (f *fakeCluster) serve(t *testing.T) *httptest.Server {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.calls.Add(1)
		if n <= f.failFirst {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}

		var req struct {
			ID     int64             `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch {
		case f.rpcErr != nil:
			resp["error"] = map[string]any{"code": f.rpcErr.Code, "message": f.rpcErr.Message}
		case req.Method == "getSlot":
			resp["result"] = 1234
		case req.Method == "getMultipleAccounts":
			var keys []string
			var opts struct {
				Encoding string `json:"encoding"`
			}
			_ = json.Unmarshal(req.Params[0], &keys)
			_ = json.Unmarshal(req.Params[1], &opts)

			f.mu.Lock()
			value := make([]any, len(keys))
			for i, key := range keys {
				acc, ok := f.accounts[key]
				if !ok {
					continue
				}
				data := acc.Data
				if opts.Encoding == EncodingBase64Zstd {
					data = enc.EncodeAll(data, nil)
				}
				value[i] = map[string]any{
					"data":       []string{base64.StdEncoding.EncodeToString(data), opts.Encoding},
					"executable": acc.Executable,
					"lamports":   acc.Lamports,
					"owner":      acc.Owner.String(),
					"rentEpoch":  acc.RentEpoch,
					"space":      len(acc.Data),
				}
			}
			f.mu.Unlock()
			resp["result"] = map[string]any{"context": map[string]any{"slot": 99}, "value": value}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 4 * time.Millisecond
	return cfg
}

func newTestCloner(t *testing.T, url string, cfg Config) *Cloner {
	t.Helper()
	c, err := NewCloner(NewSimplePool([]string{url}), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSimplePool(t *testing.T) {
	urls := []string{"http://localhost:8899", "http://localhost:8900"}
	pool := NewSimplePool(urls)
	ctx := context.Background()

	for _, want := range []string{urls[0], urls[1], urls[0]} {
		ep, err := pool.GetEndpoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, ep.URL)
	}

	pool.MarkUnhealthy(urls[0], errors.New("down"))
	assert.Equal(t, 1, pool.HealthyCount())
	for i := 0; i < 3; i++ {
		ep, err := pool.GetEndpoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, urls[1], ep.URL)
	}

	pool.MarkUnhealthy(urls[1], errors.New("down"))
	ep, err := pool.GetEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, urls[0], ep.URL, "falls back to the first endpoint")

	pool.MarkHealthy(urls[0], time.Millisecond)
	assert.Equal(t, 1, pool.HealthyCount())

	_, err = NewSimplePool(nil).GetEndpoint(ctx)
	assert.ErrorIs(t, err, ErrNoEndpoints)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = pool.GetEndpoint(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"commitment", func(c *Config) { c.Commitment = "max" }},
		{"timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"retries", func(c *Config) { c.MaxRetries = -1 }},
		{"delays", func(c *Config) { c.MaxRetryDelay = c.RetryDelay / 2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := NewCloner(NewSimplePool([]string{"http://localhost"}), cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := NewCloner(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClone(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "base64", true: "zstd"}[compress], func(t *testing.T) {
			cluster := newFakeCluster()
			mint := types.NewUniquePubkey()
			wallet := types.NewUniquePubkey()
			absent := types.NewUniquePubkey()
			mintAcc := accounts.Account{Lamports: 1_461_600, Data: make([]byte, 82), Owner: types.TokenProgramAddr, RentEpoch: ^uint64(0)}
			mintAcc.Data[44] = 6
			walletAcc := accounts.Account{Lamports: 5_000, Owner: types.SystemProgramAddr}
			cluster.put(mint, mintAcc)
			cluster.put(wallet, walletAcc)
			srv := cluster.serve(t)

			cfg := testConfig()
			cfg.Compress = compress
			cloner := newTestCloner(t, srv.URL, cfg)

			snap, missing, err := cloner.Clone(context.Background(), []types.Pubkey{mint, absent, wallet, mint})
			require.NoError(t, err)
			assert.Equal(t, []types.Pubkey{absent}, missing)
			assert.Equal(t, 2, snap.Len())

			got, ok := snap.Get(mint)
			require.True(t, ok)
			assert.True(t, mintAcc.Equal(got))
			got, ok = snap.Get(wallet)
			require.True(t, ok)
			assert.True(t, walletAcc.Equal(got))
			assert.Equal(t, int32(1), cluster.calls.Load())
		})
	}
}

func TestCloneBatches(t *testing.T) {
	cluster := newFakeCluster()
	addrs := make([]types.Pubkey, MaxAccountsPerRequest+20)
	for i := range addrs {
		addrs[i] = types.NewUniquePubkey()
		cluster.put(addrs[i], accounts.Account{Lamports: uint64(i + 1), Owner: types.SystemProgramAddr})
	}
	srv := cluster.serve(t)
	cloner := newTestCloner(t, srv.URL, testConfig())

	snap, missing, err := cloner.Clone(context.Background(), addrs)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Equal(t, len(addrs), snap.Len())
	assert.Equal(t, int32(2), cluster.calls.Load())
}

func TestCloneFollowsProgramData(t *testing.T) {
	cluster := newFakeCluster()
	program := types.NewUniquePubkey()
	programData := types.NewUniquePubkey()

	data := make([]byte, 36)
	binary.LittleEndian.PutUint32(data, upgradeableProgramTag)
	copy(data[4:], programData[:])
	cluster.put(program, accounts.Account{Lamports: 1, Data: data, Owner: types.BPFLoaderUpgradeableAddr, Executable: true})
	cluster.put(programData, accounts.Account{Lamports: 2, Data: []byte{3, 0, 0, 0}, Owner: types.BPFLoaderUpgradeableAddr})
	srv := cluster.serve(t)

	cloner := newTestCloner(t, srv.URL, testConfig())
	snap, missing, err := cloner.Clone(context.Background(), []types.Pubkey{program})
	require.NoError(t, err)
	assert.Empty(t, missing)
	_, ok := snap.Get(programData)
	assert.True(t, ok)
	assert.Equal(t, int32(2), cluster.calls.Load())

	cfg := testConfig()
	cfg.FollowProgramData = false
	plain := newTestCloner(t, srv.URL, cfg)
	snap, _, err = plain.Clone(context.Background(), []types.Pubkey{program})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestCloneRetries(t *testing.T) {
	cluster := newFakeCluster()
	addr := types.NewUniquePubkey()
	cluster.put(addr, accounts.Account{Lamports: 1, Owner: types.SystemProgramAddr})
	cluster.failFirst = 2
	srv := cluster.serve(t)

	cloner := newTestCloner(t, srv.URL, testConfig())
	snap, _, err := cloner.Clone(context.Background(), []types.Pubkey{addr})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, int32(3), cluster.calls.Load())

	exhausted := newFakeCluster()
	exhausted.failFirst = 100
	srv = exhausted.serve(t)
	cfg := testConfig()
	cfg.MaxRetries = 1
	cloner = newTestCloner(t, srv.URL, cfg)
	_, _, err = cloner.Clone(context.Background(), []types.Pubkey{addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.Equal(t, int32(2), exhausted.calls.Load())
}

func TestCloneRPCErrorNotRetried(t *testing.T) {
	cluster := newFakeCluster()
	cluster.rpcErr = &RPCError{Code: -32602, Message: "invalid params"}
	srv := cluster.serve(t)

	cloner := newTestCloner(t, srv.URL, testConfig())
	_, _, err := cloner.Clone(context.Background(), []types.Pubkey{types.NewUniquePubkey()})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Equal(t, int32(1), cluster.calls.Load())
}

func TestGetSlot(t *testing.T) {
	srv := newFakeCluster().serve(t)
	client := NewRPCClient(NewSimplePool([]string{srv.URL}), time.Second)
	defer client.Close()

	slot, err := client.GetSlot(context.Background(), "finalized")
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), slot)

	_, _, err = client.GetMultipleAccounts(context.Background(), make([]types.Pubkey, MaxAccountsPerRequest+1), "confirmed", EncodingBase64)
	assert.ErrorIs(t, err, ErrTooManyAccounts)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(&RPCError{Code: -32602}))
	assert.True(t, IsRetryable(&RPCError{Code: -32005}))
	assert.False(t, IsRetryable(ErrUnsupportedEncoding))
	assert.True(t, IsRetryable(errors.New("connection reset")))
}

func TestConvertAccount(t *testing.T) {
	client := NewRPCClient(NewSimplePool(nil), time.Second)
	defer client.Close()

	_, err := client.convertAccount(&accountInfo{Owner: types.SystemProgramAddr.String(), Data: []string{"", "jsonParsed"}})
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)

	_, err = client.convertAccount(&accountInfo{Owner: "bad", Data: []string{"", EncodingBase64}})
	assert.Error(t, err)

	acc, err := client.convertAccount(&accountInfo{
		Owner:    types.SystemProgramAddr.String(),
		Lamports: 7,
		Data:     []string{base64.StdEncoding.EncodeToString([]byte{1, 2}), EncodingBase64},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, acc.Data)
	assert.Equal(t, uint64(7), acc.Lamports)
}
