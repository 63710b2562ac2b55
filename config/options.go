package config

import (
	"time"

	"github.com/agentrt/runtime/model"
)

// EndpointConfigs converts the llm.endpoints section into model.EndpointConfig
// values for model.NewDualClient, per SPEC_FULL.md §6's conversion contract
// ("the Runtime facade converts the loaded config into the functional
// options each component actually takes").
func (c Config) EndpointConfigs() []model.EndpointConfig {
	out := make([]model.EndpointConfig, 0, len(c.LLM.Endpoints))
	for _, e := range c.LLM.Endpoints {
		timeout := time.Duration(e.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		maxRetries := e.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 4
		}
		out = append(out, model.EndpointConfig{
			URL: e.URL, Name: e.Name, Timeout: timeout, MaxRetries: maxRetries,
			Priority: e.Priority, APIKey: e.APIKey,
		})
	}
	return out
}

// DualClientMode maps the llm.mode string onto model.Mode, defaulting to
// active-active on any unrecognized value.
func (c Config) DualClientMode() model.Mode {
	if c.LLM.Mode == "primary-secondary" {
		return model.ModePrimarySecondary
	}
	return model.ModeActiveActive
}

// EffectiveRecursionLimit applies the "recursion_limit_effective =
// max(configured, max_iterations * 6)" rule (SPEC_FULL.md §9).
func (c Config) EffectiveRecursionLimit() int {
	min := c.Workflows.MaxIterations * 6
	if c.Workflows.RecursionLimit < min {
		return min
	}
	return c.Workflows.RecursionLimit
}
