// Package tools defines the narrow capability interface the workflow engine
// consumes to perform side-effecting operations (filesystem, process,
// search, git), plus the safety-validation interface that gates every
// invocation. Neither interface is implemented here: concrete gateways and
// safety policies are an external collaborator (see SPEC_FULL.md §6); this
// package fixes the contract both sides agree on.
//
// Result is the one concrete type every layer of the engine passes through
// unchanged. No layer may construct a narrower replacement that drops
// Metadata — doing so reintroduces the duck-typed wrapping bug class this
// runtime was rearchitected to rule out.
package tools

import "context"

// Result is returned by every capability call. Metadata is never optional;
// callers that wrap a Result (logging it, embedding it in a larger event)
// must carry it through byte-for-byte.
type Result struct {
	Success  bool
	Output   any
	Error    string
	Metadata map[string]any
}

// DirEntry describes one entry returned by Gateway.ListDirectory.
type DirEntry struct {
	Name string
	Type string // "file" or "dir"
	Size *int64
}

// Gateway is the narrow capability interface the workflow engine requires.
// Implementations are expected to resolve paths to absolute form and record
// byte/line counts in Result.Metadata as described per-method below.
type Gateway interface {
	// ReadFile returns Result.Metadata with "path" (absolute, resolved),
	// "bytes", and "lines".
	ReadFile(ctx context.Context, path string) (Result, error)

	// WriteFile distinguishes directory-creation failure from write
	// failure; Result.Error names which step failed when Success is false.
	WriteFile(ctx context.Context, path string, content string) (Result, error)

	// ListDirectory returns Result.Output as a []DirEntry.
	ListDirectory(ctx context.Context, path string, recursive bool) (Result, error)

	// Search returns matches for pattern, optionally restricted by glob.
	Search(ctx context.Context, pattern string, glob string) (Result, error)

	// RunCommand executes cmd in cwd (or the gateway's default workspace)
	// bounded by timeout. May be denied upstream by the SafetyChecker
	// before this is ever called.
	RunCommand(ctx context.Context, cmd string, cwd string, timeout int) (Result, error)

	// GitStatus reports the working-tree status of repo.
	GitStatus(ctx context.Context, repo string) (Result, error)
}

// SafetyChecker validates a tool invocation against allow/deny policy
// (command allowlist/denylist, protected paths, dangerous-pattern set)
// before the Gateway is ever invoked.
type SafetyChecker interface {
	Validate(ctx context.Context, toolName string, parameters map[string]any, workspace string) (allowed bool, reason string)
}
