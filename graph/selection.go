package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/agentgraph-go/graph/model"
)

// ErrToolSelectionFailed indicates the model never produced a usable
// answer to a dynamic tool-selection query.
var ErrToolSelectionFailed = errors.New("dynamic tool selection failed")

// ToolSelection is the tool-visibility policy of a subgraph. It is one of
// AllTools, NoTools, ToolList or AutoSelect, and is resolved each time the
// subgraph is entered.
type ToolSelection interface {
	isToolSelection()
}

type allTools struct{}

type noTools struct{}

func (allTools) isToolSelection() {}
func (noTools) isToolSelection()  {}

var (
	// AllTools runs the subgraph with the caller's tools and context.
	AllTools ToolSelection = allTools{}

	// NoTools hides every tool from the subgraph's model calls.
	NoTools ToolSelection = noTools{}
)

// ToolList exposes exactly the named registry tools.
type ToolList struct {
	Names []string
}

func (ToolList) isToolSelection() {}

// AutoSelect asks the model to choose tools for the subtask described by
// Description. Unusable answers are retried up to MaxRetries times.
type AutoSelect struct {
	Description string
	MaxRetries  int
}

func (AutoSelect) isToolSelection() {}

// deriveChild builds the narrowed child context for a non-AllTools subgraph.
func (ac *AgentContext) deriveChild(ctx context.Context, subgraph string, sel ToolSelection) (*AgentContext, error) {
	switch s := sel.(type) {
	case noTools:
		return ac.fork(nil)
	case ToolList:
		specs, err := ac.registry.Select(s.Names)
		if err != nil {
			return nil, fmt.Errorf("subgraph %s: %w", subgraph, err)
		}
		return ac.fork(specs)
	case AutoSelect:
		child, err := ac.fork(nil)
		if err != nil {
			return nil, err
		}
		specs, err := child.selectTools(ctx, s)
		if err != nil {
			child.close()
			return nil, fmt.Errorf("subgraph %s: %w", subgraph, err)
		}
		if err := child.session.SetTools(specs); err != nil {
			child.close()
			return nil, err
		}
		ac.logger.Debug("tools selected", "run_id", ac.runID, "subgraph", subgraph, "tools", toolNames(specs))
		return child, nil
	default:
		panic(fmt.Sprintf("graph: unknown tool selection %T", sel))
	}
}

const summarizePrompt = "Summarize the conversation so far in a few sentences. " +
	"Keep facts, decisions and open questions needed to continue the task."

type toolChoice struct {
	Tools []string `json:"tools"`
}

// selectTools runs the selection query on ac's session.
//
// The conversation is summarized for the query and the original history is
// restored afterwards whatever the outcome.
func (ac *AgentContext) selectTools(ctx context.Context, sel AutoSelect) (specs []model.ToolSpec, err error) {
	original, err := ac.session.History()
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := ac.session.ReplaceHistory(original); rerr != nil && err == nil {
			err = rerr
		}
	}()

	candidates := ac.registry.Descriptors()
	if len(candidates) == 0 {
		return nil, nil
	}

	if len(original) > 0 {
		if err := ac.session.Append(model.UserMessage(summarizePrompt)); err != nil {
			return nil, err
		}
		summary, err := ac.requestModel(ctx, nil, false)
		if err != nil {
			return nil, err
		}
		compact := []model.Message{model.UserMessage("Conversation summary:\n" + summary.Text)}
		if err := ac.session.ReplaceHistory(compact); err != nil {
			return nil, err
		}
	}

	prompt := selectionPrompt(sel.Description, candidates)
	for attempt := 0; attempt <= sel.MaxRetries; attempt++ {
		if err := ac.session.Append(model.UserMessage(prompt)); err != nil {
			return nil, err
		}
		out, err := ac.requestModel(ctx, nil, true)
		if err != nil {
			return nil, err
		}
		names, perr := parseToolChoice(out.Text)
		if perr == nil {
			specs, perr = ac.registry.Select(names)
		}
		if perr == nil {
			return specs, nil
		}
		ac.logger.Debug("tool selection answer rejected", "run_id", ac.runID, "attempt", attempt+1, "error", perr)
		prompt = fmt.Sprintf("Your answer could not be used (%v). Reply only with JSON like {\"tools\": [\"name\"]}.", perr)
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrToolSelectionFailed, sel.MaxRetries+1)
}

func selectionPrompt(description string, candidates []model.ToolSpec) string {
	var sb strings.Builder
	sb.WriteString("Choose the tools needed for the next subtask.\n\nSubtask: ")
	sb.WriteString(description)
	sb.WriteString("\n\nAvailable tools:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Description)
	}
	sb.WriteString("\nReply only with JSON of the form {\"tools\": [\"tool_name\", ...]}.")
	return sb.String()
}

// parseToolChoice extracts the first JSON object from text.
func parseToolChoice(text string) ([]string, error) {
	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx < 0 || endIdx < startIdx {
		return nil, errors.New("no JSON object in answer")
	}
	var choice toolChoice
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &choice); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if choice.Tools == nil {
		return nil, errors.New(`missing "tools" field`)
	}
	return choice.Tools, nil
}

func toolNames(specs []model.ToolSpec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
