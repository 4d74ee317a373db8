package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-mm-agent/internal/solana"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(url string) *Client {
	return NewClient(Options{BaseURL: url, Timeout: 2 * time.Second})
}

func TestClient_Quote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v1/quote", r.URL.Path)
		assert.Equal(t, "MintIn", r.URL.Query().Get("inputMint"))
		assert.Equal(t, "100000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "50", r.URL.Query().Get("slippageBps"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"inputMint":  "MintIn",
			"inAmount":   "100000000",
			"outputMint": "MintOut",
			"outAmount":  "2500000",
			"routePlan":  []interface{}{map[string]interface{}{"percent": 100}},
		})
	}))
	defer server.Close()

	q, err := newTestClient(server.URL).Quote(context.Background(), QuoteRequest{
		InputMint: "MintIn", OutputMint: "MintOut", Amount: 100_000_000, SlippageBps: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "2500000", q.OutAmount)
	assert.Contains(t, string(q.Raw), "routePlan")
}

func TestClient_QuoteNoRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"outAmount": "0"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Quote(context.Background(), QuoteRequest{InputMint: "a", OutputMint: "b", Amount: 1})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestClient_QuoteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Could not find any route"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Quote(context.Background(), QuoteRequest{InputMint: "a", OutputMint: "b", Amount: 1})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "quote", apiErr.Endpoint)
}

func TestClient_BuildSwapEchoesQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/v1/swap", r.URL.Path)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `{"outAmount":"5","custom":true}`, string(body["quoteResponse"]))
		assert.JSONEq(t, `"Owner111"`, string(body["userPublicKey"]))
		writeJSON(w, http.StatusOK, map[string]interface{}{"swapTransaction": "AQID", "lastValidBlockHeight": 10})
	}))
	defer server.Close()

	quote := &Quote{OutAmount: "5", Raw: json.RawMessage(`{"outAmount":"5","custom":true}`)}
	tx, err := newTestClient(server.URL).BuildSwap(context.Background(), quote, "Owner111", SwapOptions{WrapAndUnwrapSOL: true})
	require.NoError(t, err)
	assert.Equal(t, "AQID", tx)
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "boom"})
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, BreakerFailures: 2, BreakerTimeout: time.Minute})
	req := QuoteRequest{InputMint: "a", OutputMint: "b", Amount: 1}

	for i := 0; i < 2; i++ {
		_, err := client.Quote(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.BreakerState())

	_, err := client.Quote(context.Background(), req)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach the server")
}

// unsignedTx builds a one-signer legacy transaction for key.
func unsignedTx(key solana.PublicKey) string {
	var msg bytes.Buffer
	msg.Write([]byte{1, 0, 0, 1})
	msg.Write(key[:])
	msg.Write(make([]byte, 32))
	msg.WriteByte(0)

	tx := append([]byte{1}, make([]byte, 64)...)
	tx = append(tx, msg.Bytes()...)
	return base64.StdEncoding.EncodeToString(tx)
}

func TestClient_ExecuteSwap(t *testing.T) {
	kp, err := solana.NewKeypairFromSeed(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ultra/v1/order":
			assert.Equal(t, kp.Address(), r.URL.Query().Get("taker"))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"requestId":   "req-1",
				"transaction": unsignedTx(kp.PublicKey()),
				"inAmount":    "1000",
				"outAmount":   "2000",
			})
		case "/ultra/v1/execute":
			var body executeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "req-1", body.RequestID)
			assert.NotEqual(t, unsignedTx(kp.PublicKey()), body.SignedTransaction)
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"status":             StatusSuccess,
				"signature":          "sigXYZ",
				"inputAmountResult":  "1000",
				"outputAmountResult": "1990",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).ExecuteSwap(context.Background(), OneCallRequest{
		InputMint: "a", OutputMint: "b", Amount: 1000, SlippageBps: 100,
	}, kp)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "sigXYZ", res.Signature)
	assert.Equal(t, "1990", res.OutAmount)
}

func TestClient_OrderWithoutTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"requestId": "r", "errorMessage": "Insufficient funds"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Order(context.Background(), OneCallRequest{InputMint: "a", OutputMint: "b", Amount: 1}, "taker")
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.ErrorContains(t, err, "Insufficient funds")
}

func TestClient_ExecuteSwapOrderFailure(t *testing.T) {
	kp, err := solana.NewKeypairFromSeed(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"requestId": "r"})
	}))
	defer server.Close()

	_, err = newTestClient(server.URL).ExecuteSwap(context.Background(), OneCallRequest{InputMint: "a", OutputMint: "b", Amount: 1}, kp)
	assert.ErrorIs(t, err, ErrOrderFailed)
	assert.ErrorIs(t, err, ErrNoRoute)
}
