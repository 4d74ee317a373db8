// Package jupiter is a client for the Jupiter swap aggregator.
package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"solana-mm-agent/internal/observability"
	"solana-mm-agent/internal/solana"
)

// Errors returned by the one-call flow, by stage.
var (
	ErrNoRoute       = errors.New("no route")
	ErrOrderFailed   = errors.New("order failed")
	ErrExecuteFailed = errors.New("execute failed")
)

// Breaker defaults
const (
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 60 * time.Second
	DefaultTimeout         = 15 * time.Second
)

// Options configure Client.
type Options struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables the limiter
	Burst             int
	BreakerFailures   uint32 // consecutive failures before the breaker opens
	BreakerTimeout    time.Duration
}

// Client calls the quote, swap, order and execute endpoints. Every call
// passes a shared rate limiter and circuit breaker.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = DefaultBreakerTimeout
	}

	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.APIKey != "" {
		httpClient.SetHeader("x-api-key", opts.APIKey)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "aggregator",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			observability.SetBreakerState(name, breakerStateValue(to))
		},
	})

	return &Client{http: httpClient, limiter: limiter, breaker: breaker}
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// do runs fn behind the limiter and breaker.
func (c *Client) do(ctx context.Context, endpoint string, fn func() (*resty.Response, error)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode(), Body: resp.String()}
		}
		return nil, nil
	})
	observability.RecordAggregatorCall(endpoint, time.Since(start).Seconds(), err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	return err
}

// Quote returns the best route for req.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var resp *resty.Response
	err := c.do(ctx, "quote", func() (*resty.Response, error) {
		var err error
		resp, err = c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"inputMint":   req.InputMint,
				"outputMint":  req.OutputMint,
				"amount":      strconv.FormatUint(req.Amount, 10),
				"slippageBps": strconv.Itoa(req.SlippageBps),
			}).
			Get("/swap/v1/quote")
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	var q Quote
	if err := json.Unmarshal(resp.Body(), &q); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if q.OutAmount == "" || q.OutAmount == "0" {
		return nil, fmt.Errorf("quote %s->%s: %w", req.InputMint, req.OutputMint, ErrNoRoute)
	}
	q.Raw = append(json.RawMessage(nil), resp.Body()...)
	return &q, nil
}

// BuildSwap returns the unsigned base64 transaction for quote.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string, opts SwapOptions) (string, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return "", fmt.Errorf("build swap: quote has no raw response")
	}

	var out swapResponse
	err := c.do(ctx, "swap", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(swapRequest{
				QuoteResponse:             quote.Raw,
				UserPublicKey:             userPublicKey,
				WrapAndUnwrapSol:          opts.WrapAndUnwrapSOL,
				DynamicComputeUnitLimit:   opts.DynamicComputeUnitLimit,
				PrioritizationFeeLamports: opts.PrioritizationFeeLamports,
			}).
			SetResult(&out).
			Post("/swap/v1/swap")
	})
	if err != nil {
		return "", fmt.Errorf("build swap: %w", err)
	}
	if out.SwapTransaction == "" {
		return "", fmt.Errorf("build swap: empty transaction")
	}
	return out.SwapTransaction, nil
}

// Order requests an unsigned transaction for the one-call flow.
func (c *Client) Order(ctx context.Context, req OneCallRequest, taker string) (*Order, error) {
	var out Order
	err := c.do(ctx, "order", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"inputMint":   req.InputMint,
				"outputMint":  req.OutputMint,
				"amount":      strconv.FormatUint(req.Amount, 10),
				"slippageBps": strconv.Itoa(req.SlippageBps),
				"taker":       taker,
			}).
			SetResult(&out).
			Get("/ultra/v1/order")
	})
	if err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}
	if out.Transaction == "" {
		msg := out.ErrorMsg
		if msg == "" {
			msg = "empty transaction"
		}
		return nil, fmt.Errorf("order: %s: %w", msg, ErrNoRoute)
	}
	return &out, nil
}

// Execute submits a signed order transaction and waits for the settlement report.
func (c *Client) Execute(ctx context.Context, signedTx, requestID string) (*ExecuteResult, error) {
	var out ExecuteResult
	err := c.do(ctx, "execute", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(executeRequest{SignedTransaction: signedTx, RequestID: requestID}).
			SetResult(&out).
			Post("/ultra/v1/execute")
	})
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	return &out, nil
}

// ExecuteSwap runs the one-call flow: order, sign locally, execute.
// Stage failures wrap ErrOrderFailed or ErrExecuteFailed; a Failed status is
// reported in the result, not as an error.
func (c *Client) ExecuteSwap(ctx context.Context, req OneCallRequest, signer *solana.Keypair) (*OneCallResult, error) {
	order, err := c.Order(ctx, req, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrderFailed, err)
	}

	signed, _, err := solana.SignTransaction(order.Transaction, signer)
	if err != nil {
		return nil, fmt.Errorf("sign order transaction: %w", err)
	}

	res, err := c.Execute(ctx, signed, order.RequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecuteFailed, err)
	}

	return &OneCallResult{
		Status:    res.Status,
		Signature: res.Signature,
		InAmount:  res.InputAmountResult,
		OutAmount: res.OutputAmountResult,
		Error:     res.Error,
	}, nil
}

// BreakerState returns the breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}
