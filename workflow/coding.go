package workflow

import (
	"context"

	"github.com/agentrt/runtime/router"
	"github.com/agentrt/runtime/tools"
)

// CodingAction enumerates the coding workflow's closed action set
// (SPEC_FULL.md §4.3).
type CodingAction string

const (
	CodingReadFile      CodingAction = "READ_FILE"
	CodingWriteFile     CodingAction = "WRITE_FILE"
	CodingListDirectory CodingAction = "LIST_DIRECTORY"
	CodingSearchCode    CodingAction = "SEARCH_CODE"
	CodingRunTests      CodingAction = "RUN_TESTS"
	CodingGitStatus     CodingAction = "GIT_STATUS"
	CodingComplete      CodingAction = "COMPLETE"
)

type codingDomain struct{}

// NewCodingDomain constructs the coding workflow's Domain implementation.
func NewCodingDomain() Domain { return codingDomain{} }

func (codingDomain) Name() router.Domain { return router.DomainCoding }

func (codingDomain) SystemPrompt() string {
	return `You are a coding agent operating inside a sandboxed workspace. Use the available
actions to read, write, and search code, run tests, and check git status. When the task is
complete, respond with the COMPLETE action and a summary of what you did.`
}

func (codingDomain) ActionSpecs() []ActionSpec {
	return []ActionSpec{
		{Name: string(CodingReadFile), Description: "Read a file's contents", Parameters: []string{"path"}},
		{Name: string(CodingWriteFile), Description: "Write content to a file", Parameters: []string{"path", "content"}},
		{Name: string(CodingListDirectory), Description: "List a directory's entries", Parameters: []string{"path", "recursive"}},
		{Name: string(CodingSearchCode), Description: "Search code by pattern", Parameters: []string{"pattern", "glob"}},
		{Name: string(CodingRunTests), Description: "Run the test suite", Parameters: []string{"cmd", "cwd", "timeout"}},
		{Name: string(CodingGitStatus), Description: "Report git working-tree status", Parameters: []string{"repo"}},
		{Name: string(CodingComplete), Description: "Terminate the loop with a summary", Parameters: []string{"summary"}},
	}
}

func (codingDomain) IsComplete(action string) bool { return CodingAction(action) == CodingComplete }

func (d codingDomain) Dispatch(ctx context.Context, gw tools.Gateway, action string, params map[string]any) (tools.Result, error) {
	switch CodingAction(action) {
	case CodingReadFile:
		return gw.ReadFile(ctx, stringParam(params, "path"))
	case CodingWriteFile:
		return gw.WriteFile(ctx, stringParam(params, "path"), stringParam(params, "content"))
	case CodingListDirectory:
		return gw.ListDirectory(ctx, stringParam(params, "path"), boolParam(params, "recursive"))
	case CodingSearchCode:
		return gw.Search(ctx, stringParam(params, "pattern"), stringParam(params, "glob"))
	case CodingRunTests:
		return gw.RunCommand(ctx, stringParam(params, "cmd"), stringParam(params, "cwd"), intParam(params, "timeout"))
	case CodingGitStatus:
		return gw.GitStatus(ctx, stringParam(params, "repo"))
	default:
		return tools.Result{}, &ErrUnknownAction{Domain: d.Name(), Action: action}
	}
}
