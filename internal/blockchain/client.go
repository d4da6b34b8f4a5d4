package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultRPCTimeout   = 10 * time.Second
	maxResponseBodySize = 2 << 20
	requestID           = 1
)

// ErrEmptyResult is returned when the node answers without a usable result
var ErrEmptyResult = errors.New("empty result")

// RPCError is a JSON-RPC error object returned by the node
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Client queries account balances over JSON-RPC with endpoint failover
type Client struct {
	failoverClient *FailoverClient
	httpClient     *http.Client
}

// NewClient creates a new blockchain client. The timeout bounds every request.
func NewClient(rpcURLs []string, timeout time.Duration) (*Client, error) {
	failoverClient, err := NewFailoverClient(rpcURLs, nil)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}

	return &Client{
		failoverClient: failoverClient,
		httpClient:     &http.Client{Timeout: timeout},
	}, nil
}

// Close releases idle HTTP connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Primary returns the first configured endpoint
func (c *Client) Primary() string {
	return c.failoverClient.URLs()[0]
}

// EndpointsHealth reports the health state of every endpoint
func (c *Client) EndpointsHealth() map[string]bool {
	return c.failoverClient.EndpointsHealth()
}

// GetBalance issues one eth_getBalance call for address at the latest block.
//
// A response without a result, or with a JSON-RPC error object, yields an error
// wrapping ErrEmptyResult. Transport failures mark the endpoint unhealthy so the
// next call fails over; the call itself is never retried.
func (c *Client) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	url := c.failoverClient.GetEndpoint()

	resp, err := c.call(ctx, url, "eth_getBalance", address.Hex(), "latest")
	if err != nil {
		c.failoverClient.MarkUnhealthy(url, err)
		return nil, err
	}
	c.failoverClient.MarkHealthy(url)

	if resp.Error != nil && len(resp.Result) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEmptyResult, resp.Error)
	}

	switch strings.TrimSpace(string(resp.Result)) {
	case "", "null", `""`:
		return nil, ErrEmptyResult
	}

	var quantity string
	if err := json.Unmarshal(resp.Result, &quantity); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", resp.Result, err)
	}

	wei, err := ParseQuantity(quantity)
	if err != nil {
		return nil, err
	}
	return wei, nil
}

func (c *Client) call(ctx context.Context, url, method string, params ...any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      requestID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// Nodes behind proxies sometimes answer JSON-RPC errors with a non-2xx
	// status, so the body is decoded before the status is looked at.
	var out rpcResponse
	if err := json.Unmarshal(b, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("rpc http %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(b)), 200))
		}
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}

	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
