package workflow

import (
	"context"

	"github.com/agentrt/runtime/router"
	"github.com/agentrt/runtime/tools"
)

// GeneralAction enumerates the general workflow's closed action set.
type GeneralAction string

const (
	GeneralListDirectory GeneralAction = "LIST_DIRECTORY"
	GeneralRunCommand    GeneralAction = "RUN_COMMAND"
	GeneralReadFile       GeneralAction = "READ_FILE"
	GeneralComplete       GeneralAction = "COMPLETE"
)

type generalDomain struct{}

// NewGeneralDomain constructs the general workflow's Domain implementation.
func NewGeneralDomain() Domain { return generalDomain{} }

func (generalDomain) Name() router.Domain { return router.DomainGeneral }

func (generalDomain) SystemPrompt() string {
	return `You are a general-purpose assistant. Handle conversational requests directly, and use
the available actions for anything requiring filesystem or command access. When finished, respond
with the COMPLETE action.`
}

func (generalDomain) ActionSpecs() []ActionSpec {
	return []ActionSpec{
		{Name: string(GeneralListDirectory), Description: "List a directory's entries", Parameters: []string{"path", "recursive"}},
		{Name: string(GeneralRunCommand), Description: "Run a shell command", Parameters: []string{"cmd", "cwd", "timeout"}},
		{Name: string(GeneralReadFile), Description: "Read a file's contents", Parameters: []string{"path"}},
		{Name: string(GeneralComplete), Description: "Terminate the loop with a summary", Parameters: []string{"summary"}},
	}
}

func (generalDomain) IsComplete(action string) bool { return GeneralAction(action) == GeneralComplete }

func (d generalDomain) Dispatch(ctx context.Context, gw tools.Gateway, action string, params map[string]any) (tools.Result, error) {
	switch GeneralAction(action) {
	case GeneralListDirectory:
		return gw.ListDirectory(ctx, stringParam(params, "path"), boolParam(params, "recursive"))
	case GeneralRunCommand:
		return gw.RunCommand(ctx, stringParam(params, "cmd"), stringParam(params, "cwd"), intParam(params, "timeout"))
	case GeneralReadFile:
		return gw.ReadFile(ctx, stringParam(params, "path"))
	default:
		return tools.Result{}, &ErrUnknownAction{Domain: d.Name(), Action: action}
	}
}
