package workflow

import (
	"context"
	"fmt"

	"github.com/agentrt/runtime/router"
	"github.com/agentrt/runtime/tools"
)

// ActionSpec describes one action recognized by a domain, for prompt
// construction (SPEC_FULL.md §4.3 "execute... lists the available actions
// and their parameter schemas").
type ActionSpec struct {
	Name        string
	Description string
	Parameters  []string
}

// Domain implements one workflow domain's action enumeration and dispatch
// table. Per the "Dynamic action dispatch" design note, each domain's
// actions are a closed Go enum (see coding.go, research.go, dataanalysis.go,
// general.go); Dispatch rejects anything outside that enum. The prompt's
// action listing (ActionSpecs) and the Dispatch switch are written
// separately, both over the same typed action constants.
type Domain interface {
	Name() router.Domain
	SystemPrompt() string
	ActionSpecs() []ActionSpec
	// IsComplete reports whether action is the domain's COMPLETE action.
	IsComplete(action string) bool
	// Dispatch executes action via gw, after the caller has already run it
	// through the Safety Checker. Returns an error if action is not one of
	// ActionSpecs() (the "unknown action" case SPEC_FULL.md §4.3 requires
	// be absent from the dispatch table).
	Dispatch(ctx context.Context, gw tools.Gateway, action string, params map[string]any) (tools.Result, error)
}

// ErrUnknownAction reports an action outside this domain's enumeration.
type ErrUnknownAction struct {
	Domain router.Domain
	Action string
}

func (e *ErrUnknownAction) Error() string {
	return fmt.Sprintf("action %q is not recognized by the %s workflow", e.Action, e.Domain)
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolParam(params map[string]any, key string) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
