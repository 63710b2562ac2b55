package workflow

import (
	"context"

	"github.com/agentrt/runtime/router"
	"github.com/agentrt/runtime/tools"
)

// ResearchAction enumerates the research workflow's closed action set.
type ResearchAction string

const (
	ResearchSearchDocuments ResearchAction = "SEARCH_DOCUMENTS"
	ResearchReadFile        ResearchAction = "READ_FILE"
	ResearchListDirectory   ResearchAction = "LIST_DIRECTORY"
	ResearchWriteReport     ResearchAction = "WRITE_REPORT"
	ResearchComplete        ResearchAction = "COMPLETE"
)

type researchDomain struct{}

// NewResearchDomain constructs the research workflow's Domain implementation.
func NewResearchDomain() Domain { return researchDomain{} }

func (researchDomain) Name() router.Domain { return router.DomainResearch }

func (researchDomain) SystemPrompt() string {
	return `You are a research agent. Gather information from the workspace, synthesize findings,
and write a report. When finished, respond with the COMPLETE action and a summary.`
}

func (researchDomain) ActionSpecs() []ActionSpec {
	return []ActionSpec{
		{Name: string(ResearchSearchDocuments), Description: "Search documents by pattern", Parameters: []string{"pattern", "glob"}},
		{Name: string(ResearchReadFile), Description: "Read a document's contents", Parameters: []string{"path"}},
		{Name: string(ResearchListDirectory), Description: "List a directory's entries", Parameters: []string{"path", "recursive"}},
		{Name: string(ResearchWriteReport), Description: "Write the research report", Parameters: []string{"path", "content"}},
		{Name: string(ResearchComplete), Description: "Terminate the loop with a summary", Parameters: []string{"summary"}},
	}
}

func (researchDomain) IsComplete(action string) bool {
	return ResearchAction(action) == ResearchComplete
}

func (d researchDomain) Dispatch(ctx context.Context, gw tools.Gateway, action string, params map[string]any) (tools.Result, error) {
	switch ResearchAction(action) {
	case ResearchSearchDocuments:
		return gw.Search(ctx, stringParam(params, "pattern"), stringParam(params, "glob"))
	case ResearchReadFile:
		return gw.ReadFile(ctx, stringParam(params, "path"))
	case ResearchListDirectory:
		return gw.ListDirectory(ctx, stringParam(params, "path"), boolParam(params, "recursive"))
	case ResearchWriteReport:
		return gw.WriteFile(ctx, stringParam(params, "path"), stringParam(params, "content"))
	default:
		return tools.Result{}, &ErrUnknownAction{Domain: d.Name(), Action: action}
	}
}
