package model

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"goa.design/pulse/rmap"
)

// adaptiveRateLimiter applies an AIMD-style token bucket per endpoint: it
// estimates the token cost of a request, blocks the caller until capacity is
// available, backs off on a rate-limited response, and probes back up on
// success. Grounded on the teacher's AdaptiveRateLimiter
// (features/model/middleware/ratelimit.go); simplified to one endpoint per
// instance since the Client below already owns per-endpoint selection.
type adaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64

	cluster    clusterMap
	clusterKey string
}

// clusterMap is the subset of *rmap.Map used for cross-process coordination
// of the shared token budget when several orchestrator processes front the
// same two endpoints.
type clusterMap interface {
	Get(key string) (string, bool)
	SetIfNotExists(ctx context.Context, key, value string) (bool, error)
	TestAndSet(ctx context.Context, key, test, value string) (string, error)
}

type rmapClusterMap struct{ m *rmap.Map }

func (c *rmapClusterMap) Get(key string) (string, bool) { return c.m.Get(key) }
func (c *rmapClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	return c.m.SetIfNotExists(ctx, key, value)
}
func (c *rmapClusterMap) TestAndSet(ctx context.Context, key, test, value string) (string, error) {
	return c.m.TestAndSet(ctx, key, test, value)
}

// newAdaptiveRateLimiter constructs a process-local limiter with the given
// tokens-per-minute budget and ceiling.
func newAdaptiveRateLimiter(initialTPM, maxTPM float64) *adaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &adaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// newClusterRateLimiter wires the limiter to a Pulse replicated map so a
// shared token-per-minute budget is coordinated across processes. m may be
// nil, in which case the limiter behaves exactly like
// newAdaptiveRateLimiter.
func newClusterRateLimiter(m *rmap.Map, key string, initialTPM, maxTPM float64) *adaptiveRateLimiter {
	l := newAdaptiveRateLimiter(initialTPM, maxTPM)
	if m == nil || key == "" {
		return l
	}
	l.cluster = &rmapClusterMap{m: m}
	l.clusterKey = key
	return l
}

func (l *adaptiveRateLimiter) wait(ctx context.Context, estimatedTokens int) error {
	return l.limiter.WaitN(ctx, estimatedTokens)
}

func (l *adaptiveRateLimiter) observeSuccess() {
	l.mu.Lock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.apply(newTPM)
	l.mu.Unlock()
	l.syncCluster(func(cur float64) float64 {
		next := cur + l.recoveryRate
		if next > l.maxTPM {
			next = l.maxTPM
		}
		return next
	})
}

func (l *adaptiveRateLimiter) observeRateLimited() {
	l.mu.Lock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.apply(newTPM)
	l.mu.Unlock()
	l.syncCluster(func(cur float64) float64 {
		next := cur * 0.5
		if next < l.minTPM {
			next = l.minTPM
		}
		return next
	})
}

// apply must be called with l.mu held.
func (l *adaptiveRateLimiter) apply(newTPM float64) {
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *adaptiveRateLimiter) syncCluster(next func(cur float64) float64) {
	if l.cluster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for attempt := 0; attempt < 3; attempt++ {
		curStr, ok := l.cluster.Get(l.clusterKey)
		if !ok {
			_, _ = l.cluster.SetIfNotExists(ctx, l.clusterKey, strconv.Itoa(int(l.currentTPM)))
			return
		}
		cur, err := strconv.ParseFloat(curStr, 64)
		if err != nil {
			return
		}
		nextStr := strconv.Itoa(int(next(cur)))
		prev, err := l.cluster.TestAndSet(ctx, l.clusterKey, curStr, nextStr)
		if err != nil || prev == curStr {
			return
		}
	}
}

// estimateTokens applies the spec's 4-chars-per-token heuristic
// (SPEC_FULL.md §3, Conversation History) plus the teacher's fixed overhead
// buffer for system prompts and provider framing.
func estimateTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	if chars <= 0 {
		return 500
	}
	tokens := chars / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
