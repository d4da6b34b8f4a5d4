package blockchain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = common.HexToAddress("0x1efD4DB8b7bFe247C75323dAE62B95f24b1cBAAf")

// fakeNode answers every JSON-RPC request with the given raw body
func fakeNode(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, urls ...string) *Client {
	t.Helper()
	c, err := NewClient(urls, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGetBalanceRequestShape(t *testing.T) {
	type captured struct {
		method      string
		contentType string
		body        map[string]any
	}
	requests := make(chan captured, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{method: r.Method, contentType: r.Header.Get("Content-Type")}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&c.body))
		requests <- c
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      c.body["id"],
			"result":  "0xde0b6b3a7640000",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	wei, err := client.GetBalance(context.Background(), testAddress)
	require.NoError(t, err)

	c := <-requests
	got := c.body
	assert.Equal(t, "1000000000000000000", wei.String())
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "application/json", c.contentType)
	assert.Equal(t, "2.0", got["jsonrpc"])
	assert.Equal(t, "eth_getBalance", got["method"])
	assert.Equal(t, float64(1), got["id"])
	assert.Equal(t, []any{testAddress.Hex(), "latest"}, got["params"])
}

func TestGetBalanceResults(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      string
		wantEmpty bool
		wantErr   string
	}{
		{
			name: "one wei",
			body: `{"jsonrpc":"2.0","id":1,"result":"0x1"}`,
			want: "1",
		},
		{
			name: "zero balance is a result",
			body: `{"jsonrpc":"2.0","id":1,"result":"0x0"}`,
			want: "0",
		},
		{
			name:      "null result",
			body:      `{"jsonrpc":"2.0","id":1,"result":null}`,
			wantEmpty: true,
		},
		{
			name:      "missing result",
			body:      `{"jsonrpc":"2.0","id":1}`,
			wantEmpty: true,
		},
		{
			name:      "empty string result",
			body:      `{"jsonrpc":"2.0","id":1,"result":""}`,
			wantEmpty: true,
		},
		{
			name:      "json-rpc error object",
			body:      `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid argument 0"}}`,
			wantEmpty: true,
			wantErr:   "rpc error -32602: invalid argument 0",
		},
		{
			name:      "error object with non-2xx status",
			status:    http.StatusTooManyRequests,
			body:      `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"rate limited"}}`,
			wantEmpty: true,
			wantErr:   "rate limited",
		},
		{
			name:    "malformed hex",
			body:    `{"jsonrpc":"2.0","id":1,"result":"0xzz"}`,
			wantErr: "invalid hex quantity",
		},
		{
			name:    "numeric result",
			body:    `{"jsonrpc":"2.0","id":1,"result":12}`,
			wantErr: "decode result",
		},
		{
			name:    "non-json body",
			body:    `<html>bad gateway</html>`,
			status:  http.StatusBadGateway,
			wantErr: "rpc http 502",
		},
		{
			name:    "non-json body with 200",
			body:    `not json`,
			wantErr: "decode rpc response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tt.status
			if status == 0 {
				status = http.StatusOK
			}
			srv := fakeNode(t, status, tt.body)
			client := newTestClient(t, srv.URL)

			wei, err := client.GetBalance(context.Background(), testAddress)

			if tt.want != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, wei.String())
				return
			}

			require.Error(t, err)
			assert.Nil(t, wei)
			assert.Equal(t, tt.wantEmpty, errors.Is(err, ErrEmptyResult))
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetBalanceRPCErrorIsInspectable(t *testing.T) {
	srv := fakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"header not found"}}`)
	client := newTestClient(t, srv.URL)

	_, err := client.GetBalance(context.Background(), testAddress)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "header not found", rpcErr.Message)
	// The node answered, so the endpoint stays healthy
	assert.True(t, client.EndpointsHealth()[srv.URL])
}

func TestGetBalanceConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url)
	_, err := client.GetBalance(context.Background(), testAddress)

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyResult))
	assert.NotEmpty(t, err.Error())
	assert.False(t, client.EndpointsHealth()[url])
}

func TestGetBalanceTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.GetBalance(ctx, testAddress)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGetBalanceFailsOverOnNextCall(t *testing.T) {
	broken := fakeNode(t, http.StatusBadGateway, `upstream down`)
	healthy := fakeNode(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x2a"}`)

	client := newTestClient(t, broken.URL, healthy.URL)

	// No retry inside a call: the first call reports the failure
	_, err := client.GetBalance(context.Background(), testAddress)
	require.Error(t, err)

	wei, err := client.GetBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "42", wei.String())

	health := client.EndpointsHealth()
	assert.False(t, health[broken.URL])
	assert.True(t, health[healthy.URL])
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(nil, time.Second)
	assert.Error(t, err)
}

func TestClientPrimary(t *testing.T) {
	client := newTestClient(t, "https://rpc1.example.com", "https://rpc2.example.com")
	assert.Equal(t, "https://rpc1.example.com", client.Primary())
}
