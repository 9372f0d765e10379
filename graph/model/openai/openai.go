// Package openai adapts OpenAI's chat completions API to model.ChatModel.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/agentgraph-go/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel for OpenAI models with tool calling.
//
// The model does not retry on its own; pair it with graph.WithModelRetry
// and IsTransient:
//
//	chat := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	agent, _ := graph.NewAgent(strategy, chat, graph.WithModelRetry(graph.RetryPolicy{
//	    MaxAttempts: 3, BaseDelay: time.Second, Retryable: openai.IsTransient,
//	}))
type ChatModel struct {
	client    openai.Client
	modelName string

	// Temperature is sent when non-nil.
	Temperature *float64
	// MaxTokens caps completion tokens when positive.
	MaxTokens int64
}

// NewChatModel creates a model. An empty apiKey falls back to the
// OPENAI_API_KEY environment variable, as the SDK does. Extra request
// options (base URL, HTTP client) are passed to the SDK client.
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
		client:    openai.NewClient(reqOpts...),
		modelName: modelName,
	}
}

// ModelName implements model.Named.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat sends the conversation and returns the first choice.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	params, err := m.params(messages, tools)
	if err != nil {
		return model.ChatOut{}, err
	}
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai: %w", err)
	}
	return fromCompletion(resp)
}

func (m *ChatModel) params(messages []model.Message, tools []model.ToolSpec) (openai.ChatCompletionNewParams, error) {
	msgs, err := toMessages(messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.modelName),
		Messages: msgs,
	}
	if m.Temperature != nil {
		params.Temperature = openai.Float(*m.Temperature)
	}
	if m.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.MaxTokens)
	}
	for _, t := range tools {
		fn := openai.FunctionDefinitionParam{Name: t.Name}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		if t.Schema != nil {
			fn.Parameters = openai.FunctionParameters(t.Schema)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{Function: fn})
	}
	return params, nil
}

func toMessages(messages []model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case model.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			am := &openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				am.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Input)
				if err != nil {
					return nil, fmt.Errorf("openai: encode arguments of %s: %w", tc.Name, err)
				}
				if tc.Input == nil {
					args = []byte("{}")
				}
				am.ToolCalls = append(am.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: am})
		default:
			return nil, fmt.Errorf("openai: unsupported role %q", msg.Role)
		}
	}
	return out, nil
}

func fromCompletion(resp *openai.ChatCompletion) (model.ChatOut, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai: response has no choices")
	}
	msg := resp.Choices[0].Message
	out := model.ChatOut{
		Text:      msg.Content,
		TokensIn:  int(resp.Usage.PromptTokens),
		TokensOut: int(resp.Usage.CompletionTokens),
	}
	for _, tc := range msg.ToolCalls {
		call := model.ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Input); err != nil {
				call.Input = nil
				call.InvalidArgs = fmt.Sprintf("arguments are not a JSON object: %v", err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

// IsTransient reports whether err is worth retrying: rate limits, server
// errors and request timeouts.
func IsTransient(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests,
		apiErr.StatusCode == http.StatusRequestTimeout,
		apiErr.StatusCode >= 500:
		return true
	}
	return false
}
