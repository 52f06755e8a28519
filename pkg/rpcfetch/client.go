package rpcfetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
)

// MaxAccountsPerRequest is the getMultipleAccounts address limit.
const MaxAccountsPerRequest = 100

// Account data encodings.
const (
	EncodingBase64     = "base64"
	EncodingBase64Zstd = "base64+zstd"
)

// RPCClient handles JSON-RPC requests to Solana endpoints.
type RPCClient struct {
	httpClient *http.Client
	pool       Pool
	nextID     atomic.Int64
	decoder    *zstd.Decoder
}

// NewRPCClient creates a new RPC client with the given pool.
func NewRPCClient(pool Pool, timeout time.Duration) *RPCClient {
	// A nil reader with no options cannot fail.
	dec, _ := zstd.NewReader(nil)
	return &RPCClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pool:    pool,
		decoder: dec,
	}
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// call makes a JSON-RPC call to an endpoint from the pool.
func (c *RPCClient) call(ctx context.Context, method string, params []any, result any) error {
	endpoint, err := c.pool.GetEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}

	start := time.Now()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.pool.MarkUnhealthy(endpoint.URL, fmt.Errorf("status %d", resp.StatusCode))
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		// RPC errors are not endpoint health issues
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	c.pool.MarkHealthy(endpoint.URL, time.Since(start))
	return nil
}

// GetSlot fetches the current slot from the cluster.
func (c *RPCClient) GetSlot(ctx context.Context, commitment string) (uint64, error) {
	params := []any{
		map[string]any{
			"commitment": commitment,
		},
	}

	var slot uint64
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// Close releases the decompressor.
func (c *RPCClient) Close() {
	c.decoder.Close()
}

// multipleAccountsResponse is the getMultipleAccounts result.
type multipleAccountsResponse struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []*accountInfo `json:"value"`
}

// accountInfo is one account in an RPC response.
type accountInfo struct {
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// GetMultipleAccounts fetches up to MaxAccountsPerRequest accounts. The
// returned slice is parallel to addrs; a nil entry means no account exists
// at that address. The slot is the one the cluster served the read at.
func (c *RPCClient) GetMultipleAccounts(ctx context.Context, addrs []types.Pubkey, commitment, encoding string) ([]*accounts.Account, uint64, error) {
	if len(addrs) > MaxAccountsPerRequest {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrTooManyAccounts, len(addrs), MaxAccountsPerRequest)
	}

	keys := make([]string, len(addrs))
	for i, addr := range addrs {
		keys[i] = addr.String()
	}
	params := []any{
		keys,
		map[string]any{
			"commitment": commitment,
			"encoding":   encoding,
		},
	}

	var resp multipleAccountsResponse
	if err := c.call(ctx, "getMultipleAccounts", params, &resp); err != nil {
		return nil, 0, err
	}
	if len(resp.Value) != len(addrs) {
		return nil, 0, fmt.Errorf("getMultipleAccounts returned %d accounts for %d addresses", len(resp.Value), len(addrs))
	}

	out := make([]*accounts.Account, len(addrs))
	for i, info := range resp.Value {
		if info == nil {
			continue
		}
		acc, err := c.convertAccount(info)
		if err != nil {
			return nil, 0, fmt.Errorf("account %s: %w", addrs[i], err)
		}
		out[i] = &acc
	}
	return out, resp.Context.Slot, nil
}

// convertAccount decodes an RPC account into the store representation.
func (c *RPCClient) convertAccount(info *accountInfo) (accounts.Account, error) {
	owner, err := types.PubkeyFromBase58(info.Owner)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("owner: %w", err)
	}
	if len(info.Data) != 2 {
		return accounts.Account{}, fmt.Errorf("%w: data has %d parts", ErrUnsupportedEncoding, len(info.Data))
	}

	raw, err := base64.StdEncoding.DecodeString(info.Data[0])
	if err != nil {
		return accounts.Account{}, fmt.Errorf("decode data: %w", err)
	}

	switch info.Data[1] {
	case EncodingBase64:
	case EncodingBase64Zstd:
		raw, err = c.decoder.DecodeAll(raw, nil)
		if err != nil {
			return accounts.Account{}, fmt.Errorf("decompress data: %w", err)
		}
	default:
		return accounts.Account{}, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, info.Data[1])
	}

	if len(raw) > accounts.MaxAccountDataSize {
		return accounts.Account{}, fmt.Errorf("%w: data is %d bytes", accounts.ErrInvalidData, len(raw))
	}

	return accounts.Account{
		Lamports:   info.Lamports,
		Data:       raw,
		Owner:      owner,
		Executable: info.Executable,
		RentEpoch:  info.RentEpoch,
	}, nil
}
