package recker

import (
	"context"
	"net/http"
	"time"
)

// Client is a high-level HTTP client with fluent request building,
// OpenTelemetry instrumentation, and retry support.
//
// Create a Client using New():
//
//	client := recker.New(
//	    recker.WithBaseURL("https://api.example.com"),
//	    recker.WithServiceName("payment-service"),
//	)
//
//	resp, err := client.Request("CreatePayment").
//	    Path("/payments").
//	    Body(payment).
//	    Post(ctx)
type Client struct {
	// httpClient is the underlying HTTP client with transport chain.
	httpClient *http.Client

	// config holds all client configuration.
	config *internalConfig

	// baseURL is the base URL for all requests.
	baseURL string

	// defaultHeaders are applied to all requests.
	defaultHeaders http.Header

	// debug enables request/response logging.
	debug bool

	// generateCurl enables cURL command generation.
	generateCurl bool

	// enableTrace enables timing trace info collection.
	enableTrace bool
}

// HTTP returns the underlying *http.Client for advanced use cases.
//
// Use this when you need to:
//   - Pass the client to third-party libraries expecting *http.Client
//   - Access transport-level settings
//   - Make requests without the fluent builder
//
// Example:
//
//	rawClient := client.HTTP()
//	resp, err := rawClient.Do(req)
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// Request creates a new RequestBuilder for the given operation name.
//
// The operation name is used for:
//   - OpenTelemetry span naming (e.g., "HTTP POST CreatePayment")
//   - Debug logging identification
//   - Metrics labeling
//
// Example:
//
//	resp, err := client.Request("CreateUser").
//	    Path("/users").
//	    Body(user).
//	    Post(ctx)
func (c *Client) Request(operationName string) *RequestBuilder {
	return &RequestBuilder{
		client:        c,
		operationName: operationName,
		headers:       make(http.Header),
		pathParams:    make(map[string]string),
	}
}

// New creates a Client with production-ready defaults and OpenTelemetry instrumentation.
//
// The client includes:
//   - Connection pooling and timeouts
//   - OpenTelemetry tracing and metrics
//   - Retry with exponential backoff
//   - Fluent request builder via Request()
//
// Example - Basic usage:
//
//	client := recker.New(
//	    recker.WithBaseURL("https://api.example.com"),
//	    recker.WithServiceName("my-service"),
//	)
//
//	resp, err := client.Request("GetUsers").Get(ctx, "/users")
//
// Example - With retry configuration:
//
//	client := recker.New(
//	    recker.WithBaseURL("https://api.example.com"),
//	    recker.WithRetryConfig(recker.AggressiveRetryConfig()),
//	)
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	if cfg.AgentManager == nil {
		cfg.AgentManager = NewAgentManager(cfg.Concurrency, cfg.httpConfig)
	}
	if cfg.PoolMetrics == nil {
		cfg.PoolMetrics = newPoolMetrics(cfg.Meter)
	}

	var base http.RoundTripper = newAgentDispatchTransport(cfg.AgentManager)
	if len(cfg.HARConfig.Entries) > 0 || cfg.HARConfig.Strict {
		base = newHARTransport(base, cfg.HARConfig)
	}
	if cfg.MockTransport != nil {
		base = cfg.MockTransport
	}
	if cfg.ChaosConfig != (ChaosConfig{}) {
		base = newChaosTransport(base, cfg.ChaosConfig)
	}
	base = newTimeoutTransport(base)
	base = newRedirectTransport(base)
	base = newAltSvcTransport(base, cfg.AltSvc, cfg.Hooks.http3)

	instrumented := cfg.buildPipeline(base)

	httpClient := &http.Client{
		Transport: instrumented,
		Timeout:   cfg.httpConfig.Timeout,
		// recker performs its own redirect handling inside redirectTransport
		// (spec §4.2 item 2), beneath the middleware pipeline; net/http must
		// never auto-follow on our behalf.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		httpClient:     httpClient,
		config:         cfg,
		baseURL:        cfg.BaseURL,
		defaultHeaders: cfg.DefaultHeaders,
		debug:          cfg.Debug,
		generateCurl:   cfg.GenerateCurl,
		enableTrace:    cfg.EnableTrace,
	}
}

// Use registers a Middleware spliced at the "user-added" position in the
// fixed pipeline ordering (spec §4.1). Must be called before any requests
// are dispatched through c — it recomposes the pipeline (see rebuild) and
// replaces the client's transport in place.
func (c *Client) Use(m Middleware) *Client {
	c.config.UserMiddlewares = append(c.config.UserMiddlewares, m)
	c.rebuild()
	return c
}

// BeforeRequest registers a hook invoked before every request is sent.
func (c *Client) BeforeRequest(h BeforeRequestHook) *Client {
	c.config.Hooks.beforeRequest = append(c.config.Hooks.beforeRequest, h)
	c.rebuild()
	return c
}

// AfterResponse registers a hook invoked after every response is received.
func (c *Client) AfterResponse(h AfterResponseHook) *Client {
	c.config.Hooks.afterResponse = append(c.config.Hooks.afterResponse, h)
	c.rebuild()
	return c
}

// OnError registers a hook invoked when a request fails; it may supply a
// fallback response.
func (c *Client) OnError(h OnErrorHook) *Client {
	c.config.Hooks.onError = append(c.config.Hooks.onError, h)
	c.rebuild()
	return c
}

// OnRetry registers a hook invoked on every retry decision made by the
// retry plugin.
func (c *Client) OnRetry(h OnRetryHook) *Client {
	c.config.Hooks.onRetry = append(c.config.Hooks.onRetry, h)
	c.rebuild()
	return c
}

// OnURLResolved registers a hook invoked once a request's final URL has
// been resolved, after path parameter substitution and query assembly.
func (c *Client) OnURLResolved(h OnURLResolvedHook) *Client {
	c.config.Hooks.onURLResolved = append(c.config.Hooks.onURLResolved, h)
	c.rebuild()
	return c
}

// OnHTTP3 registers a hook observing HTTP/3 discovery events from the
// Alt-Svc plugin (spec §4.14).
func (c *Client) OnHTTP3(h Http3Hook) *Client {
	c.config.Hooks.http3 = append(c.config.Hooks.http3, h)
	c.rebuild()
	return c
}

// rebuild recomposes the pipeline after a Use/BeforeRequest/AfterResponse/
// OnError mutation. Called rarely (client setup time), never per-request.
func (c *Client) rebuild() {
	var base http.RoundTripper = newAgentDispatchTransport(c.config.AgentManager)
	if len(c.config.HARConfig.Entries) > 0 || c.config.HARConfig.Strict {
		base = newHARTransport(base, c.config.HARConfig)
	}
	if c.config.MockTransport != nil {
		base = c.config.MockTransport
	}
	if c.config.ChaosConfig != (ChaosConfig{}) {
		base = newChaosTransport(base, c.config.ChaosConfig)
	}
	base = newTimeoutTransport(base)
	base = newRedirectTransport(base)
	base = newAltSvcTransport(base, c.config.AltSvc, c.config.Hooks.http3)
	c.httpClient.Transport = c.config.buildPipeline(base)
}

// NewTransport creates an instrumented http.RoundTripper that can be used
// with a custom http.Client.
//
// This is useful when you need more control over the http.Client configuration
// but still want OpenTelemetry instrumentation.
//
// Example:
//
//	transport := recker.NewTransport(http.DefaultTransport,
//	    recker.WithServiceName("my-service"),
//	)
//	client := &http.Client{
//	    Transport: transport,
//	    Timeout:   30 * time.Second,
//	}
func NewTransport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := newConfig(opts...)
	return newOtelTransport(base, cfg)
}

// NewWithTransport creates a Client using a custom base transport
// with OpenTelemetry instrumentation wrapped around it.
//
// The provided transport will be wrapped with tracing and metrics.
// Use this when you need precise control over the underlying transport
// but want to add observability.
//
// Example:
//
//	transport := &http.Transport{
//	    MaxIdleConnsPerHost: 50,
//	    DisableCompression:  true,
//	}
//	client := recker.NewWithTransport(transport,
//	    recker.WithBaseURL("https://api.example.com"),
//	    recker.WithServiceName("my-service"),
//	)
func NewWithTransport(base http.RoundTripper, opts ...Option) *Client {
	cfg := newConfig(opts...)

	httpClient := &http.Client{
		Transport: newOtelTransport(base, cfg),
		Timeout:   cfg.httpConfig.Timeout,
	}

	return &Client{
		httpClient:     httpClient,
		config:         cfg,
		baseURL:        cfg.BaseURL,
		defaultHeaders: cfg.DefaultHeaders,
		debug:          cfg.Debug,
		generateCurl:   cfg.GenerateCurl,
		enableTrace:    cfg.EnableTrace,
	}
}

// WrapClient wraps an existing http.Client's transport with OpenTelemetry instrumentation.
//
// This modifies the client in-place and returns a new Client wrapper.
// If the client has no transport, http.DefaultTransport is used.
//
// Example:
//
//	httpClient := &http.Client{Timeout: 30 * time.Second}
//	client := recker.WrapClient(httpClient,
//	    recker.WithServiceName("my-service"),
//	)
func WrapClient(httpClient *http.Client, opts ...Option) *Client {
	cfg := newConfig(opts...)

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	httpClient.Transport = newOtelTransport(base, cfg)

	return &Client{
		httpClient:     httpClient,
		config:         cfg,
		baseURL:        cfg.BaseURL,
		defaultHeaders: cfg.DefaultHeaders,
		debug:          cfg.Debug,
		generateCurl:   cfg.GenerateCurl,
		enableTrace:    cfg.EnableTrace,
	}
}

// Batch runs a GET against every path in paths with bounded concurrency
// (spec §4.5), independent of — and in addition to — the client's global
// RequestPool.
func (c *Client) Batch(ctx context.Context, paths []string, opts ...BatchOption) *BatchResult {
	items := make([]BatchItem, len(paths))
	for i, p := range paths {
		items[i] = BatchItem{Path: p}
	}
	return c.Multi(ctx, items, opts...)
}

// Multi runs a heterogeneous set of BatchItems with bounded concurrency
// (spec §4.5), each dispatched through the full middleware pipeline.
func (c *Client) Multi(ctx context.Context, items []BatchItem, opts ...BatchOption) *BatchResult {
	var bo BatchOptions
	for _, opt := range opts {
		opt(&bo)
	}

	runner := newRequestRunner(bo, c.config.Concurrency.Runner)
	method := bo.Method
	if method == "" {
		method = http.MethodGet
	}

	results, stats := runner.run(ctx, items, func(ctx context.Context, _ int, item BatchItem) (*Response, error) {
		rb := c.Request(item.Path)
		for _, o := range item.Opts {
			o(rb)
		}
		return rb.execute(ctx, method)
	})

	return &BatchResult{Results: results, Stats: stats}
}

// BatchOption configures a Batch/Multi call.
type BatchOption func(*BatchOptions)

// WithBatchConcurrency bounds how many items run at once.
func WithBatchConcurrency(n int) BatchOption {
	return func(o *BatchOptions) { o.Concurrency = n }
}

// WithBatchRetries sets the per-item retry count and fixed delay.
func WithBatchRetries(retries int, delay time.Duration) BatchOption {
	return func(o *BatchOptions) { o.Retries = retries; o.RetryDelay = delay }
}

// WithBatchMethod sets the HTTP method applied to every item.
func WithBatchMethod(method string) BatchOption {
	return func(o *BatchOptions) { o.Method = method }
}
