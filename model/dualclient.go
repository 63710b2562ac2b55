package model

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"goa.design/pulse/rmap"

	"github.com/agentrt/runtime/agenterrors"
	"github.com/agentrt/runtime/telemetry"
)

// EndpointConfig describes one configured LLM endpoint (SPEC_FULL.md §6).
type EndpointConfig struct {
	URL        string
	Name       string
	Timeout    time.Duration
	MaxRetries int
	Priority   int
	APIKey     string
}

// Mode selects how the dual-endpoint pool favors endpoints.
type Mode string

const (
	ModeActiveActive     Mode = "active-active"
	ModePrimarySecondary Mode = "primary-secondary"
)

// endpoint bundles a configured endpoint with its wrapped Client and
// per-endpoint rate limiter.
type endpoint struct {
	cfg     EndpointConfig
	client  Client
	limiter *adaptiveRateLimiter
}

// DualClient implements the LLM Client contract of SPEC_FULL.md §4.1: N≥1
// endpoints with independent health, best-endpoint selection with
// round-robin tie-breaking, retrying failover with exponential backoff, and
// periodic health probing.
type DualClient struct {
	endpoints []*endpoint
	health    EndpointHealthStore
	mode      Mode

	rrCounter uint64

	probeInterval time.Duration
	probeStop     chan struct{}
	probeOnce     sync.Once

	clusterMap    *rmap.Map
	clusterPrefix string

	log telemetry.Logger
	met telemetry.Metrics
}

// Option configures a DualClient at construction.
type Option func(*DualClient)

// WithHealthStore overrides the default in-memory EndpointHealthStore.
func WithHealthStore(store EndpointHealthStore) Option {
	return func(c *DualClient) { c.health = store }
}

// WithMode sets the selection policy (default active-active).
func WithMode(mode Mode) Option {
	return func(c *DualClient) { c.mode = mode }
}

// WithProbeInterval overrides the default 30s health probe cadence.
func WithProbeInterval(d time.Duration) Option {
	return func(c *DualClient) { c.probeInterval = d }
}

// WithClusterRateLimiting coordinates each endpoint's adaptive token budget
// across processes through a Pulse replicated map (SPEC_FULL.md §2.2),
// instead of every process discovering its own ceiling independently. keys
// are namespaced "<keyPrefix>:<endpoint name>". m may be nil, in which case
// this is a no-op and each endpoint keeps a process-local limiter.
func WithClusterRateLimiting(m *rmap.Map, keyPrefix string) Option {
	return func(c *DualClient) {
		c.clusterMap = m
		c.clusterPrefix = keyPrefix
	}
}

// WithTelemetry wires structured logging and metrics (SPEC_FULL.md §4.1
// "Logging contract").
func WithTelemetry(h telemetry.Handles) Option {
	return func(c *DualClient) {
		c.log = h.Logger
		c.met = h.Metrics
	}
}

// NewDualClient constructs a dual-endpoint client from one or more endpoint
// configurations. Endpoints are wrapped with an adaptive per-endpoint rate
// limiter and an OpenAI-compatible chat-completions client.
func NewDualClient(configs []EndpointConfig, opts ...Option) (*DualClient, error) {
	if len(configs) == 0 {
		return nil, &agenterrors.ValidationError{Field: "endpoints", Message: "at least one endpoint is required"}
	}
	c := &DualClient{
		health:        NewMemoryHealthStore(),
		mode:          ModeActiveActive,
		probeInterval: 30 * time.Second,
		log:           telemetry.NewNoopLogger(),
		met:           telemetry.NewNoopMetrics(),
	}
	for _, o := range opts {
		o(c)
	}
	for _, cfg := range configs {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		var limiter *adaptiveRateLimiter
		if c.clusterMap != nil {
			limiter = newClusterRateLimiter(c.clusterMap, c.clusterPrefix+":"+cfg.Name, 60000, 60000)
		} else {
			limiter = newAdaptiveRateLimiter(60000, 60000)
		}
		ep := &endpoint{
			cfg:     cfg,
			client:  newOpenAIEndpointClient(cfg.URL, cfg.APIKey, "", httpTimeout{httpClient: &http.Client{Timeout: timeout}}),
			limiter: limiter,
		}
		c.endpoints = append(c.endpoints, ep)
	}
	return c, nil
}

// StartHealthProbing launches the periodic endpoint probe loop described in
// SPEC_FULL.md §4.1 point 4. Probing stops when ctx is cancelled or Close is
// called.
func (c *DualClient) StartHealthProbing(ctx context.Context, probe func(ctx context.Context, url string) error) {
	c.probeOnce.Do(func() {
		c.probeStop = make(chan struct{})
		go c.probeLoop(ctx, probe)
	})
}

// Close stops the health-probe loop.
func (c *DualClient) Close() {
	if c.probeStop != nil {
		select {
		case <-c.probeStop:
		default:
			close(c.probeStop)
		}
	}
}

func (c *DualClient) probeLoop(ctx context.Context, probe func(ctx context.Context, url string) error) {
	ticker := time.NewTicker(c.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.probeStop:
			return
		case <-ticker.C:
			for _, ep := range c.endpoints {
				err := probe(ctx, ep.cfg.URL)
				if err == nil {
					_, _ = c.health.RecordSuccess(ctx, ep.cfg.URL, 0)
				} else {
					_, _ = c.health.RecordFailure(ctx, ep.cfg.URL)
				}
			}
		}
	}
}

// scoredEndpoint pairs an endpoint with its current health for selection.
type scoredEndpoint struct {
	ep     *endpoint
	health EndpointHealth
}

// rank orders endpoints best-first: healthy before degraded before
// unhealthy, then by configured priority, then the stable input order
// (round-robin is layered on top via rrCounter in selectOrder).
func (c *DualClient) rank(ctx context.Context) []scoredEndpoint {
	scored := make([]scoredEndpoint, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		h, _ := c.health.Get(ctx, ep.cfg.URL)
		scored = append(scored, scoredEndpoint{ep: ep, health: h})
	}
	statusRank := map[HealthStatus]int{HealthHealthy: 0, HealthDegraded: 1, HealthUnhealthy: 2}
	sort.SliceStable(scored, func(i, j int) bool {
		if statusRank[scored[i].health.Status] != statusRank[scored[j].health.Status] {
			return statusRank[scored[i].health.Status] < statusRank[scored[j].health.Status]
		}
		return scored[i].ep.cfg.Priority < scored[j].ep.cfg.Priority
	})
	return scored
}

// selectOrder returns the attempt order for one call: the healthiest
// endpoints first. In active-active mode, ties among equally healthy
// endpoints are broken by round-robin so load spreads across them. In
// primary-secondary mode, the configured primary (lowest Priority, first in
// rank order) is pinned for every call as long as it ranks healthiest;
// rotation never kicks in, so failover happens only on an actual health-
// status change, never on load spreading.
func (c *DualClient) selectOrder(ctx context.Context) []*endpoint {
	scored := c.rank(ctx)
	if len(scored) == 0 {
		return nil
	}
	if c.mode == ModePrimarySecondary {
		ordered := make([]*endpoint, len(scored))
		for i, s := range scored {
			ordered[i] = s.ep
		}
		return ordered
	}
	// Round-robin rotation among the leading run of equally-ranked
	// endpoints (ties on status and priority).
	lead := 1
	for lead < len(scored) &&
		scored[lead].health.Status == scored[0].health.Status &&
		scored[lead].ep.cfg.Priority == scored[0].ep.cfg.Priority {
		lead++
	}
	rotation := int(atomic.AddUint64(&c.rrCounter, 1)-1) % lead
	ordered := make([]*endpoint, 0, len(scored))
	for i := 0; i < lead; i++ {
		ordered = append(ordered, scored[(i+rotation)%lead].ep)
	}
	for i := lead; i < len(scored); i++ {
		ordered = append(ordered, scored[i].ep)
	}
	return ordered
}

var backoffSchedule = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}

// maxAttempts is the default total-attempt budget for one ChatCompletion
// call when the selected endpoint's EndpointConfig.MaxRetries is unset.
const maxAttempts = 4

// ChatCompletion implements chat_completion(messages, temperature,
// max_tokens) -> string.
func (c *DualClient) ChatCompletion(ctx context.Context, req *Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	requestID := uuid.NewString()
	c.logRequest(ctx, requestID, req)
	result, err := c.withFailover(ctx, func(ctx context.Context, ep *endpoint) (string, error) {
		return ep.client.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	c.logResponse(ctx, requestID, result)
	return result, nil
}

// ChatCompletionStream implements chat_completion_stream(messages, ...) ->
// sequence of chunks. Only the initially-selected endpoint is used for
// streaming; a mid-stream failure surfaces as an error rather than
// transparently resuming on another endpoint, since partial output cannot
// be safely replayed.
func (c *DualClient) ChatCompletionStream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	order := c.selectOrder(ctx)
	if len(order) == 0 {
		return nil, &agenterrors.LLMUnavailable{}
	}
	ep := order[0]
	tokens := estimateTokens(req.Messages)
	if err := ep.limiter.wait(ctx, tokens); err != nil {
		return nil, err
	}
	ch, err := ep.client.Stream(ctx, req)
	if err != nil {
		_, _ = c.health.RecordFailure(ctx, ep.cfg.URL)
		return nil, err
	}
	return ch, nil
}

func validateRequest(req *Request) error {
	if req == nil || len(req.Messages) == 0 {
		return &agenterrors.ValidationError{Field: "messages", Message: "message list is missing or empty"}
	}
	return nil
}

// withFailover attempts op against the ranked endpoint order, applying
// exponential backoff between attempts and recording health transitions,
// per SPEC_FULL.md §4.1 points 2-5. The total attempt budget is the selected
// endpoint's configured MaxRetries when set, else maxAttempts; either way it
// is widened to cover every endpoint in order at least once.
func (c *DualClient) withFailover(ctx context.Context, op func(context.Context, *endpoint) (string, error)) (string, error) {
	order := c.selectOrder(ctx)
	if len(order) == 0 {
		return "", &agenterrors.LLMUnavailable{}
	}
	var lastErr error
	attempts := maxAttempts
	if budget := order[0].cfg.MaxRetries; budget > 0 {
		attempts = budget
	}
	if len(order) > attempts {
		attempts = len(order)
	}
	for attempt := 0; attempt < attempts; attempt++ {
		ep := order[attempt%len(order)]
		if attempt > 0 {
			backoff := backoffSchedule[int(math.Min(float64(attempt-1), float64(len(backoffSchedule)-1)))]
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", &agenterrors.CancelledError{Scope: "llm_request"}
			}
		}
		start := time.Now()
		out, err := op(ctx, ep)
		if err == nil {
			_, _ = c.health.RecordSuccess(ctx, ep.cfg.URL, time.Since(start))
			ep.limiter.observeSuccess()
			c.met.IncCounter("llm.request.success", 1, "endpoint", ep.cfg.Name)
			return out, nil
		}
		lastErr = err
		_, _ = c.health.RecordFailure(ctx, ep.cfg.URL)
		ep.limiter.observeRateLimited()
		c.met.IncCounter("llm.request.failure", 1, "endpoint", ep.cfg.Name)
		c.log.Warn(ctx, "llm endpoint call failed", "endpoint", ep.cfg.Name, "attempt", attempt, "error", err)
	}
	return "", &agenterrors.LLMUnavailable{Endpoints: endpointNames(c.endpoints), LastErr: lastErr}
}

func endpointNames(eps []*endpoint) []string {
	out := make([]string, len(eps))
	for i, e := range eps {
		out[i] = e.cfg.Name
	}
	return out
}

func (c *DualClient) logRequest(ctx context.Context, requestID string, req *Request) {
	for _, m := range req.Messages {
		content := m.Content
		if len(content) > 500 {
			content = content[:500]
		}
		c.log.Info(ctx, "llm request message", "request_id", requestID, "role", string(m.Role), "content_preview", content)
	}
}

func (c *DualClient) logResponse(ctx context.Context, requestID, response string) {
	preview := response
	if len(preview) > 500 {
		preview = preview[:500]
	}
	c.log.Info(ctx, "llm response", "request_id", requestID, "content_preview", preview)
}

// DefaultProbe issues a lightweight GET against the endpoint's /models path,
// suitable as the probe func passed to StartHealthProbing.
func DefaultProbe(client *http.Client) func(ctx context.Context, url string) error {
	return func(ctx context.Context, url string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/models", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("endpoint probe returned status %d", resp.StatusCode)
		}
		return nil
	}
}
