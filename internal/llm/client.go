// Package llm implements the HTTP client the Entity Extractor uses to call
// a Messages-style completion API (Anthropic's wire format). It wraps the
// call in a circuit breaker, exponential-backoff retries for transient
// failures, and a token-bucket rate limiter so steady-state throughput
// stays under the provider's per-minute budget.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/mchavez/cryptonews-core/internal/apperr"
	"github.com/mchavez/cryptonews-core/internal/masking"
)

// Config configures a Client. Zero values fall back to the defaults noted
// per field.
type Config struct {
	APIKey  string
	BaseURL string // default https://api.anthropic.com
	Model   string

	RequestTimeout time.Duration // default 30s, per spec §5

	TokensPerMinute int     // provider TPM limit before the safety factor
	SafetyFactor    float64 // e.g. 0.8 keeps steady state under 80% of TPM

	MaxRetries     int           // default 5
	RetryBaseDelay time.Duration // default 1s
	RetryMaxDelay  time.Duration // default 60s

	CircuitBreakerTrips uint32        // consecutive failures before opening, default 5
	CircuitBreakerReset time.Duration // default 30s
}

// Response is the parsed result of one completion call.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client is a rate-limited, circuit-broken HTTP client for one model.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// New constructs a Client. The token bucket refills continuously at
// TokensPerMinute*SafetyFactor/60 tokens/sec, with a burst equal to one
// minute's budget so a single large batch can spend its whole allowance.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 1 * time.Second
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 60 * time.Second
	}
	if cfg.CircuitBreakerTrips == 0 {
		cfg.CircuitBreakerTrips = 5
	}
	if cfg.CircuitBreakerReset == 0 {
		cfg.CircuitBreakerReset = 30 * time.Second
	}
	if cfg.SafetyFactor == 0 {
		cfg.SafetyFactor = 0.8
	}

	budget := float64(cfg.TokensPerMinute) * cfg.SafetyFactor
	if budget <= 0 {
		budget = 20000
	}

	breakerSettings := gobreaker.Settings{
		Name:        "llm-" + cfg.Model,
		MaxRequests: 2,
		Interval:    0,
		Timeout:     cfg.CircuitBreakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CircuitBreakerTrips
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(budget/60.0), int(budget)),
		breaker: gobreaker.NewCircuitBreaker(breakerSettings),
	}
}

// EstimateTokens is a rough token estimator (chars/4) used to reserve rate
// limiter capacity before a call's exact usage is known. Crude but
// conservative enough to keep the limiter from under-counting.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n < 1 {
		n = 1
	}
	return n
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Status     int
	RetryAfter time.Duration
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("llm: http %d: %s", e.Status, e.Body)
}

// Complete sends a single-turn completion request, blocking on the rate
// limiter until enough budget is available, then retrying transient
// failures with exponential backoff behind the circuit breaker.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (*Response, error) {
	estimate := EstimateTokens(prompt) + maxTokens
	if err := c.limiter.WaitN(ctx, estimate); err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "llm.Complete.rateLimit", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.completeWithRetry(ctx, prompt, maxTokens)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperr.New(apperr.KindTransientExternal, "llm.Complete", err)
		}
		return nil, err
	}
	return result.(*Response), nil
}

func (c *Client) completeWithRetry(ctx context.Context, prompt string, maxTokens int) (*Response, error) {
	var resp *Response

	operation := func() error {
		r, err := c.complete(ctx, prompt, maxTokens)
		if err != nil {
			var rlErr *rateLimitError
			if errors.As(err, &rlErr) {
				select {
				case <-time.After(rlErr.retryAfter):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
				return err // retry after sleeping exactly Retry-After, per spec §7
			}
			var ae *apiError
			if errors.As(err, &ae) && ae.Status >= 400 && ae.Status < 500 && ae.Status != 429 {
				return backoff.Permanent(err) // not transient; don't retry client errors
			}
			return err
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBaseDelay
	b.MaxInterval = c.cfg.RetryMaxDelay
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.3 // jitter
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "llm.Complete", err)
	}
	return resp, nil
}

type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("llm: rate limited, retry after %s", e.retryAfter)
}

func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (*Response, error) {
	reqBody := messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperr.New(apperr.KindValidationFailure, "llm.complete.marshal", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "llm.complete.do", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientExternal, "llm.complete.read", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		return nil, &rateLimitError{retryAfter: retryAfter}
	}
	// mask the provider's raw error body before it ever reaches an err.Error()
	// string some caller logs; providers sometimes echo request content
	// (including stray secrets pasted into article text) back in error
	// diagnostics.
	if httpResp.StatusCode >= 500 {
		return nil, &apiError{Status: httpResp.StatusCode, Body: masking.Mask(string(body))}
	}
	if httpResp.StatusCode >= 400 {
		return nil, &apiError{Status: httpResp.StatusCode, Body: masking.Mask(string(body))}
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.New(apperr.KindValidationFailure, "llm.complete.unmarshal", err)
	}

	var text string
	for _, c := range parsed.Content {
		text += c.Text
	}

	return &Response{
		Text:         text,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 5 * time.Second
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	return 5 * time.Second
}
