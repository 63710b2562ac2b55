package workflow

import (
	"context"

	"github.com/agentrt/runtime/router"
	"github.com/agentrt/runtime/tools"
)

// DataAction enumerates the data_analysis workflow's closed action set.
type DataAction string

const (
	DataLoadFile    DataAction = "LOAD_FILE"
	DataListFiles   DataAction = "LIST_FILES"
	DataRunAnalysis DataAction = "RUN_ANALYSIS"
	DataWriteReport DataAction = "WRITE_REPORT"
	DataComplete    DataAction = "COMPLETE"
)

type dataDomain struct{}

// NewDataAnalysisDomain constructs the data_analysis workflow's Domain
// implementation.
func NewDataAnalysisDomain() Domain { return dataDomain{} }

func (dataDomain) Name() router.Domain { return router.DomainDataAnalysis }

func (dataDomain) SystemPrompt() string {
	return `You are a data analysis agent. Load datasets, run analyses (via shell commands in the
sandbox), and write a findings report. When finished, respond with the COMPLETE action.`
}

func (dataDomain) ActionSpecs() []ActionSpec {
	return []ActionSpec{
		{Name: string(DataLoadFile), Description: "Load a dataset file", Parameters: []string{"path"}},
		{Name: string(DataListFiles), Description: "List dataset files in a directory", Parameters: []string{"path", "recursive"}},
		{Name: string(DataRunAnalysis), Description: "Run an analysis command", Parameters: []string{"cmd", "cwd", "timeout"}},
		{Name: string(DataWriteReport), Description: "Write the findings report", Parameters: []string{"path", "content"}},
		{Name: string(DataComplete), Description: "Terminate the loop with a summary", Parameters: []string{"summary"}},
	}
}

func (dataDomain) IsComplete(action string) bool { return DataAction(action) == DataComplete }

func (d dataDomain) Dispatch(ctx context.Context, gw tools.Gateway, action string, params map[string]any) (tools.Result, error) {
	switch DataAction(action) {
	case DataLoadFile:
		return gw.ReadFile(ctx, stringParam(params, "path"))
	case DataListFiles:
		return gw.ListDirectory(ctx, stringParam(params, "path"), boolParam(params, "recursive"))
	case DataRunAnalysis:
		return gw.RunCommand(ctx, stringParam(params, "cmd"), stringParam(params, "cwd"), intParam(params, "timeout"))
	case DataWriteReport:
		return gw.WriteFile(ctx, stringParam(params, "path"), stringParam(params, "content"))
	default:
		return tools.Result{}, &ErrUnknownAction{Domain: d.Name(), Action: action}
	}
}
