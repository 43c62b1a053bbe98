// Package backend implements the streaming client for the assistant's chat
// server. One request carries a full recorded utterance; the reply streams
// back in chunks over SSE or a websocket and is published on the event bus
// as a single terminal event.
//
// Delivery guarantees: every call publishes [event.APIRequestStarted] once,
// then exactly one of [event.APIResponseReceived] or [event.APIRequestFailed]
// — unless the call is cancelled, in which case nothing further is published
// for it. Transient failures are retried with exponential backoff up to the
// configured attempt budget; errors the server will repeat identically
// (bad request, auth) fail on the first attempt. A circuit breaker in front
// of the transport keeps a down server from being hammered.
package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/vigil/internal/event"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/resilience"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Default client parameters.
const (
	defaultMaxAttempts    = 3
	defaultRequestTimeout = 30 * time.Second
)

// Transport streams one chat request and returns the assembled reply.
type Transport interface {
	// Stream performs the request, honouring ctx for cancellation.
	Stream(ctx context.Context, req *chatRequest) (*Reply, error)

	// Name identifies the transport in logs and metrics.
	Name() string
}

// Config holds the client's connection and retry parameters.
type Config struct {
	// BaseURL is the server root, e.g. "https://assistant.example.com/api".
	BaseURL string

	// Fingerprint identifies this device to the server, sent as the
	// X-Fingerprint header on every request.
	Fingerprint string

	// Transport selects the streaming mechanism: "sse" (default) or
	// "websocket".
	Transport string

	// MaxAttempts is the total attempt budget per call, first try
	// included. Default: 3.
	MaxAttempts int

	// Backoff is the delay schedule between attempts.
	Backoff resilience.Backoff

	// RequestTimeout bounds a single attempt. Default: 30s.
	RequestTimeout time.Duration

	// HTTPClient overrides the HTTP client, mainly for tests. Defaults to
	// a fresh client without its own timeout (attempts are bounded by
	// RequestTimeout).
	HTTPClient *http.Client
}

// Validate checks the configuration for structural errors.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base_url must be set"))
	}
	if c.Fingerprint == "" {
		errs = append(errs, fmt.Errorf("fingerprint must be set"))
	}
	switch c.Transport {
	case "", "sse", "websocket":
	default:
		errs = append(errs, fmt.Errorf("transport must be \"sse\" or \"websocket\", got %q", c.Transport))
	}
	return errors.Join(errs...)
}

// Request is one utterance to send.
type Request struct {
	SessionID  string
	PCM        []byte
	SampleRate int
	Channels   int
}

// inflight tracks the currently running call so that Cancel can abort it and
// suppress its terminal event.
type inflight struct {
	cancel    context.CancelFunc
	cancelled bool
}

// Client sends recorded utterances to the chat server and publishes the
// outcome on the event bus. Safe for concurrent use, though the session
// machine drives at most one call at a time.
type Client struct {
	cfg       Config
	transport Transport
	breaker   *resilience.CircuitBreaker
	metrics   *observe.Metrics
	publish   func(event.Event)
	http      *http.Client

	mu      sync.Mutex
	current *inflight
}

// NewClient creates a Client publishing outcomes via publish.
func NewClient(cfg Config, metrics *observe.Metrics, publish func(event.Event)) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backend: config: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	c := &Client{
		cfg:     cfg,
		metrics: metrics,
		publish: publish,
		http:    httpClient,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "chat-backend",
		}),
	}
	switch cfg.Transport {
	case "websocket":
		c.transport = &wsTransport{client: httpClient, baseURL: cfg.BaseURL, fingerprint: cfg.Fingerprint}
	default:
		c.transport = &sseTransport{client: httpClient, baseURL: cfg.BaseURL, fingerprint: cfg.Fingerprint}
	}
	return c, nil
}

// Breaker exposes the circuit breaker for health checks.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// CreateSession asks the server for a fresh conversation session and returns
// its identifier.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	url := c.cfg.BaseURL + "/chat/create"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("backend: build session request: %w", err)
	}
	req.Header.Set("X-Fingerprint", c.cfg.Fingerprint)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend: create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", readStatusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("backend: read session response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("backend: decode session response: %w", err)
	}
	var data sessionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("backend: decode session data: %w", err)
	}
	if data.SessionID == "" {
		return "", fmt.Errorf("backend: session response missing session_id")
	}
	return data.SessionID, nil
}

// Send dispatches req in the background. [event.APIRequestStarted] is
// published before Send returns; the terminal event follows from the worker
// goroutine. An already-running call is cancelled first.
func (c *Client) Send(ctx context.Context, req Request) {
	callCtx, cancel := context.WithCancel(ctx)
	call := &inflight{cancel: cancel}

	c.mu.Lock()
	if prev := c.current; prev != nil {
		prev.cancelled = true
		prev.cancel()
	}
	c.current = call
	c.mu.Unlock()

	c.publish(event.APIRequestStarted{})
	go c.run(callCtx, call, req)
}

// Cancel aborts the in-flight call, if any. The aborted call publishes no
// further events.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancelled = true
		c.current.cancel()
		c.current = nil
		slog.Info("backend: in-flight request cancelled")
	}
}

// run executes the attempt loop for one call.
func (c *Client) run(ctx context.Context, call *inflight, req Request) {
	defer call.cancel()

	ctx, span := observe.StartSpan(ctx, "backend.chat_stream",
		trace.WithAttributes(
			attribute.String("transport", c.transport.Name()),
			attribute.String("session_id", req.SessionID),
		))
	defer span.End()

	wire := &chatRequest{
		SessionID:  req.SessionID,
		AudioData:  base64.StdEncoding.EncodeToString(req.PCM),
		SampleRate: req.SampleRate,
		Channels:   req.Channels,
		Format:     pcmFormat,
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.metrics.RecordBackendRetry(ctx, c.transport.Name())
			if err := c.cfg.Backoff.Wait(ctx, attempt-1); err != nil {
				return // cancelled between attempts
			}
		}

		reply, err := c.attempt(ctx, wire)
		if err == nil {
			c.terminal(call, event.APIResponseReceived{
				Text:      reply.Text,
				MessageID: reply.MessageID,
			})
			return
		}
		if ctx.Err() != nil {
			return // cancelled mid-attempt, stay silent
		}
		lastErr = err

		if errors.Is(err, resilience.ErrCircuitOpen) || !retryable(err) {
			break
		}
		slog.Warn("backend: attempt failed",
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"err", err,
		)
	}

	slog.Error("backend: request failed", "err", lastErr)
	c.terminal(call, event.APIRequestFailed{Message: lastErr.Error()})
}

// attempt runs one transport call under the breaker and per-attempt timeout.
func (c *Client) attempt(ctx context.Context, wire *chatRequest) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	var reply *Reply
	err := c.breaker.Execute(func() error {
		var streamErr error
		reply, streamErr = c.transport.Stream(ctx, wire)
		return streamErr
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordBackendAttempt(ctx, c.transport.Name(), status)
	c.metrics.ObserveBackendLatency(ctx, c.transport.Name(), time.Since(start))
	return reply, err
}

// terminal publishes the call's outcome unless the call was cancelled.
func (c *Client) terminal(call *inflight, ev event.Event) {
	c.mu.Lock()
	if call.cancelled {
		c.mu.Unlock()
		return
	}
	if c.current == call {
		c.current = nil
	}
	c.mu.Unlock()
	c.publish(ev)
}
