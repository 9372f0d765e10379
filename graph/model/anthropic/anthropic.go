// Package anthropic adapts Anthropic's Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/dshills/agentgraph-go/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "claude-3-5-sonnet-20241022"

// DefaultMaxTokens is the completion budget when MaxTokens is unset. The
// Messages API requires one.
const DefaultMaxTokens = 4096

// ChatModel implements model.ChatModel for Claude models.
//
// System messages are sent as the request's system prompt. Consecutive
// tool messages are folded into one user turn of tool_result blocks, which
// is what the API expects after an assistant turn with tool_use blocks.
type ChatModel struct {
	client    anthropic.Client
	modelName string

	Temperature *float64
	MaxTokens   int64
}

// NewChatModel creates a model. An empty apiKey falls back to the
// ANTHROPIC_API_KEY environment variable.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	reqOpts = append(reqOpts, opts...)
	return &ChatModel{
		client:    anthropic.NewClient(reqOpts...),
		modelName: modelName,
		MaxTokens: DefaultMaxTokens,
	}
}

// ModelName implements model.Named.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	params, err := m.params(messages, tools)
	if err != nil {
		return model.ChatOut{}, err
	}
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic: %w", err)
	}
	return fromMessage(resp)
}

func (m *ChatModel) params(messages []model.Message, tools []model.ToolSpec) (anthropic.MessageNewParams, error) {
	system, turns, err := toMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	maxTokens := m.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: maxTokens,
		Messages:  turns,
		System:    system,
	}
	if m.Temperature != nil {
		params.Temperature = anthropic.Float(*m.Temperature)
	}
	params.Tools = toTools(tools)
	return params, nil
}

func toMessages(messages []model.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var (
		system  []anthropic.TextBlockParam
		turns   []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			turns = append(turns, anthropic.NewUserMessage(results...))
			results = nil
		}
	}
	for _, msg := range messages {
		if msg.Role != model.RoleTool {
			flush()
		}
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case model.RoleUser:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case model.RoleTool:
			isErr := strings.HasPrefix(msg.Content, "error:")
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isErr))
		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Input
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				turns = append(turns, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported role %q", msg.Role)
		}
	}
	flush()
	return system, turns, nil
}

func toTools(tools []model.ToolSpec) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := t.Schema["properties"]; ok {
			schema.Properties = props
		}
		schema.Required = requiredOf(t.Schema)
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Description)
		}
	}
	return out
}

func requiredOf(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fromMessage(resp *anthropic.Message) (model.ChatOut, error) {
	if resp == nil {
		return model.ChatOut{}, errors.New("anthropic: empty response")
	}
	out := model.ChatOut{
		TokensIn:  int(resp.Usage.InputTokens),
		TokensOut: int(resp.Usage.OutputTokens),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			call := model.ToolCall{ID: tu.ID, Name: tu.Name}
			raw, err := json.Marshal(tu.Input)
			if err == nil {
				err = json.Unmarshal(raw, &call.Input)
			}
			if err != nil {
				call.Input = nil
				call.InvalidArgs = fmt.Sprintf("input is not a JSON object: %v", err)
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	return out, nil
}

// IsTransient reports whether err is worth retrying: rate limits, overload
// and server errors.
func IsTransient(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}
