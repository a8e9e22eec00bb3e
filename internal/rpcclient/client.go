// Package rpcclient provides a JSON-RPC 2.0 client for a remote ledger.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/bundle"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/coin"
	"github.com/Klingon-tech/klingnet-rlwallet/pkg/types"
)

// DefaultTimeout bounds a single call.
const DefaultTimeout = 10 * time.Second

// Client is a JSON-RPC 2.0 HTTP client. It implements ledger.Ledger.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

var _ ledger.Ledger = (*Client)(nil)

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, DefaultTimeout)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext is Call bound to ctx.
func (c *Client) CallContext(ctx context.Context, method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if rpcResp.ID != req.ID {
		return fmt.Errorf("response id %d, want %d", rpcResp.ID, req.ID)
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// Tip returns the ledger's last block. ok is false before the first block.
func (c *Client) Tip(ctx context.Context) (height uint64, header types.Hash, ok bool, err error) {
	var res TipResult
	if err := c.CallContext(ctx, MethodGetTip, nil, &res); err != nil {
		return 0, types.Hash{}, false, err
	}
	return res.Height, res.Header, !res.Empty, nil
}

// BlockRange implements ledger.DiffSource.
func (c *Client) BlockRange(ctx context.Context, from *types.Hash) ([]ledger.Block, error) {
	var blocks []ledger.Block
	err := c.CallContext(ctx, MethodGetBlockRange, BlockRangeParam{From: from}, &blocks)
	if code(err) == CodeNotFound {
		return nil, fmt.Errorf("%w: %w", ledger.ErrUnknownHeader, err)
	}
	return blocks, err
}

// Resolve implements ledger.Resolver.
func (c *Client) Resolve(ctx context.Context, id types.Hash) (coin.Coin, error) {
	var res coin.Coin
	err := c.CallContext(ctx, MethodHashPreimage, HashParam{Hash: id}, &res)
	if code(err) == CodeNotFound {
		return coin.Coin{}, fmt.Errorf("%w: %w", ledger.ErrUnknownCoin, err)
	}
	return res, err
}

// Push implements ledger.Sink. A rejection becomes a *ledger.RejectedError.
func (c *Client) Push(ctx context.Context, b *bundle.SpendBundle) error {
	var res PushTxResult
	err := c.CallContext(ctx, MethodPushTx, PushTxParam{Bundle: b}, &res)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == CodeRejected {
			return &ledger.RejectedError{Reason: rpcErr.Message}
		}
		return err
	}
	if res.Name != b.Name() {
		return fmt.Errorf("ledger accepted %s, sent %s", res.Name, b.Name())
	}
	return nil
}

func code(err error) int {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}
