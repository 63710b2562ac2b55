// Package safety implements a tools.SafetyChecker: a command
// allowlist/denylist, a protected-files/patterns set, and a dangerous-shell-
// pattern set, gating every tool invocation before the Gateway ever runs it
// (SPEC_FULL.md §6/§7). Grounded on the teacher's policy/basic engine.go
// allow/block-set idiom (features/policy/basic/engine.go), adapted from
// per-tool tag filtering to this spec's command/path-based rules.
package safety

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/agentrt/runtime/config"
)

// Checker implements tools.SafetyChecker.
type Checker struct {
	commandAllow     map[string]struct{}
	commandBlock     map[string]struct{}
	protectedFiles   map[string]struct{}
	protectedPatterns []string
	dangerousPatterns []string
}

// defaultDangerousPatterns mirrors common destructive-shell idioms; operators
// extend it via config.Safety.CommandDenylist rather than editing code.
var defaultDangerousPatterns = []string{
	"rm -rf /", ":(){:|:&};:", "mkfs", "dd if=", "> /dev/sda", "chmod -R 777 /",
}

// New constructs a Checker from the safety configuration section.
func New(cfg config.Safety) *Checker {
	return &Checker{
		commandAllow:      toSet(cfg.CommandAllowlist),
		commandBlock:      toSet(cfg.CommandDenylist),
		protectedFiles:    toSet(cfg.ProtectedFiles),
		protectedPatterns: cfg.ProtectedPatterns,
		dangerousPatterns: append(append([]string{}, defaultDangerousPatterns...), cfg.CommandDenylist...),
	}
}

// Validate implements tools.SafetyChecker. toolName is the domain action
// name (e.g. "RUN_COMMAND", "WRITE_FILE"); parameters carries its arguments.
func (c *Checker) Validate(_ context.Context, toolName string, parameters map[string]any, workspace string) (bool, string) {
	switch toolName {
	case "RUN_COMMAND", "RUN_TESTS", "RUN_ANALYSIS":
		return c.validateCommand(stringParam(parameters, "cmd"))
	case "WRITE_FILE", "WRITE_REPORT":
		return c.validatePath(stringParam(parameters, "path"), workspace)
	case "READ_FILE", "LOAD_FILE":
		return c.validatePath(stringParam(parameters, "path"), workspace)
	default:
		return true, ""
	}
}

func (c *Checker) validateCommand(cmd string) (bool, string) {
	if strings.TrimSpace(cmd) == "" {
		return false, "empty command"
	}
	if len(c.commandBlock) > 0 {
		if _, blocked := c.commandBlock[binaryOf(cmd)]; blocked {
			return false, "command is on the denylist: " + binaryOf(cmd)
		}
	}
	lower := strings.ToLower(cmd)
	for _, pattern := range c.dangerousPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return false, "command matches a denied pattern: " + pattern
		}
	}
	if len(c.commandAllow) > 0 {
		if _, ok := c.commandAllow[binaryOf(cmd)]; !ok {
			return false, "command is not on the allowlist: " + binaryOf(cmd)
		}
	}
	return true, ""
}

func (c *Checker) validatePath(path, workspace string) (bool, string) {
	if path == "" {
		return false, "empty path"
	}
	abs := path
	if !filepath.IsAbs(path) && workspace != "" {
		abs = filepath.Join(workspace, path)
	}
	clean := filepath.Clean(abs)

	if workspace != "" {
		rel, err := filepath.Rel(filepath.Clean(workspace), clean)
		if err != nil || strings.HasPrefix(rel, "..") {
			return false, "path escapes the workspace: " + path
		}
	}
	base := filepath.Base(clean)
	if _, blocked := c.protectedFiles[base]; blocked {
		return false, "path is protected: " + path
	}
	for _, pattern := range c.protectedPatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return false, "path matches a protected pattern: " + pattern
		}
	}
	return true, ""
}

func binaryOf(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
