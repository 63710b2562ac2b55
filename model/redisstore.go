package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHealthStore is an optional EndpointHealthStore backend so several
// orchestrator processes sharing the same pair of LLM endpoints converge on
// one health view instead of each discovering failures independently,
// grounded on the teacher's cluster-coordination pattern for the adaptive
// rate limiter (goa.design/pulse/rmap there; a plain Redis hash here, since
// endpoint health is a simple last-writer-wins record rather than a
// replicated counter that needs rmap's CAS primitives).
type RedisHealthStore struct {
	client *redis.Client
	prefix string
}

// NewRedisHealthStore wraps an existing *redis.Client. Keys are stored under
// "<prefix>:<url>".
func NewRedisHealthStore(client *redis.Client, prefix string) *RedisHealthStore {
	if prefix == "" {
		prefix = "agentrt:endpoint_health"
	}
	return &RedisHealthStore{client: client, prefix: prefix}
}

func (s *RedisHealthStore) key(url string) string { return s.prefix + ":" + url }

func (s *RedisHealthStore) Get(ctx context.Context, url string) (EndpointHealth, bool) {
	raw, err := s.client.Get(ctx, s.key(url)).Bytes()
	if err != nil {
		return EndpointHealth{URL: url, Status: HealthHealthy}, false
	}
	var h EndpointHealth
	if err := json.Unmarshal(raw, &h); err != nil {
		return EndpointHealth{URL: url, Status: HealthHealthy}, false
	}
	return h, true
}

func (s *RedisHealthStore) RecordSuccess(ctx context.Context, url string, latency time.Duration) (EndpointHealth, error) {
	h, _ := s.Get(ctx, url)
	h.URL = url
	h.Status = HealthHealthy
	h.ConsecutiveFailures = 0
	if h.AvgResponseMs == 0 {
		h.AvgResponseMs = float64(latency.Milliseconds())
	} else {
		h.AvgResponseMs = h.AvgResponseMs*0.8 + float64(latency.Milliseconds())*0.2
	}
	h.LastCheck = time.Now()
	return h, s.put(ctx, h)
}

func (s *RedisHealthStore) RecordFailure(ctx context.Context, url string) (EndpointHealth, error) {
	h, _ := s.Get(ctx, url)
	h.URL = url
	h.ConsecutiveFailures++
	switch {
	case h.ConsecutiveFailures >= 3:
		h.Status = HealthUnhealthy
	case h.Status != HealthUnhealthy:
		h.Status = HealthDegraded
	}
	h.LastCheck = time.Now()
	return h, s.put(ctx, h)
}

func (s *RedisHealthStore) put(ctx context.Context, h EndpointHealth) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(h.URL), raw, 24*time.Hour).Err()
}

// All scans every key under the configured prefix. Intended for
// observability/debugging, not the hot path.
func (s *RedisHealthStore) All(ctx context.Context) ([]EndpointHealth, error) {
	var out []EndpointHealth
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var h EndpointHealth
		if err := json.Unmarshal(raw, &h); err == nil {
			out = append(out, h)
		}
	}
	return out, iter.Err()
}
