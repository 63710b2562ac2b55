package subagent

import (
	"context"
	"fmt"

	"github.com/agentrt/runtime/router"
	"github.com/agentrt/runtime/tools"
	"github.com/agentrt/runtime/workflow"
)

// restrictedDomain adapts one Spec into a workflow.Domain whose Dispatch
// rejects any action outside the spec's curated allowlist — the mechanism
// behind "code_reader cannot write files" (SPEC_FULL.md §4.5).
type restrictedDomain struct {
	spec Spec
}

func newRestrictedDomain(spec Spec) workflow.Domain { return restrictedDomain{spec: spec} }

func (d restrictedDomain) Name() router.Domain { return router.Domain(d.spec.Type) }

func (d restrictedDomain) SystemPrompt() string { return d.spec.SystemPrompt }

func (d restrictedDomain) ActionSpecs() []workflow.ActionSpec {
	specs := make([]workflow.ActionSpec, 0, len(d.spec.ActionAllowlist))
	for _, action := range d.spec.ActionAllowlist {
		specs = append(specs, actionSpecFor(action))
	}
	return specs
}

func (d restrictedDomain) IsComplete(action string) bool { return action == actionComplete }

func (d restrictedDomain) Dispatch(ctx context.Context, gw tools.Gateway, action string, params map[string]any) (tools.Result, error) {
	if !d.allowed(action) {
		return tools.Result{}, fmt.Errorf("subagent %s: action %q is outside its tool allowlist", d.spec.Type, action)
	}
	switch action {
	case actionReadFile:
		return gw.ReadFile(ctx, stringParam(params, "path"))
	case actionWriteFile:
		return gw.WriteFile(ctx, stringParam(params, "path"), stringParam(params, "content"))
	case actionListDir:
		return gw.ListDirectory(ctx, stringParam(params, "path"), boolParam(params, "recursive"))
	case actionSearch:
		return gw.Search(ctx, stringParam(params, "pattern"), stringParam(params, "glob"))
	case actionRunCommand:
		return gw.RunCommand(ctx, stringParam(params, "cmd"), stringParam(params, "cwd"), intParam(params, "timeout"))
	default:
		return tools.Result{}, fmt.Errorf("subagent %s: unrecognized action %q", d.spec.Type, action)
	}
}

func (d restrictedDomain) allowed(action string) bool {
	for _, a := range d.spec.ActionAllowlist {
		if a == action {
			return true
		}
	}
	return false
}

func actionSpecFor(action string) workflow.ActionSpec {
	switch action {
	case actionReadFile:
		return workflow.ActionSpec{Name: action, Description: "Read a file's contents", Parameters: []string{"path"}}
	case actionWriteFile:
		return workflow.ActionSpec{Name: action, Description: "Write content to a file", Parameters: []string{"path", "content"}}
	case actionListDir:
		return workflow.ActionSpec{Name: action, Description: "List a directory's entries", Parameters: []string{"path", "recursive"}}
	case actionSearch:
		return workflow.ActionSpec{Name: action, Description: "Search by pattern", Parameters: []string{"pattern", "glob"}}
	case actionRunCommand:
		return workflow.ActionSpec{Name: action, Description: "Run a shell command", Parameters: []string{"cmd", "cwd", "timeout"}}
	default:
		return workflow.ActionSpec{Name: action, Description: "Terminate the loop with a summary", Parameters: []string{"summary"}}
	}
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
