// Package google adapts the Gemini API to model.ChatModel.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dshills/agentgraph-go/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "gemini-1.5-flash"

// ChatModel implements model.ChatModel for Gemini models.
//
// Gemini does not assign IDs to function calls, so the model synthesizes
// them as "<name>-<index>". Tool results are matched back to calls by name.
type ChatModel struct {
	client    *genai.Client
	modelName string

	Temperature *float32
	MaxTokens   int32
}

// NewChatModel creates a client. An empty apiKey falls back to the
// GOOGLE_API_KEY environment variable. Call Close when done.
func NewChatModel(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*ChatModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("google: API key not provided and GOOGLE_API_KEY not set")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &ChatModel{client: client, modelName: modelName}, nil
}

// ModelName implements model.Named.
func (m *ChatModel) ModelName() string { return m.modelName }

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Chat implements model.ChatModel. The conversation must end with a user
// or tool message.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	system, contents, err := toContents(messages)
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return model.ChatOut{}, errors.New("google: conversation must end with a user or tool message")
	}

	gm := m.client.GenerativeModel(m.modelName)
	gm.SystemInstruction = system
	gm.Tools = toTools(tools)
	if m.Temperature != nil {
		gm.SetTemperature(*m.Temperature)
	}
	if m.MaxTokens > 0 {
		gm.SetMaxOutputTokens(m.MaxTokens)
	}

	cs := gm.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: %w", err)
	}
	return fromResponse(resp)
}

// toContents converts messages to Gemini contents. System messages become
// the system instruction. Consecutive user-side parts are merged since
// Gemini expects strictly alternating turns.
func toContents(messages []model.Message) (*genai.Content, []*genai.Content, error) {
	var (
		system   *genai.Content
		contents []*genai.Content
	)
	callNames := map[string]string{}
	add := func(role string, parts ...genai.Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.Text(msg.Content))
		case model.RoleUser:
			add("user", genai.Text(msg.Content))
		case model.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Name
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Input})
			}
			if len(parts) > 0 {
				add("model", parts...)
			}
		case model.RoleTool:
			name := msg.Name
			if name == "" {
				name = callNames[msg.ToolCallID]
			}
			add("user", genai.FunctionResponse{Name: name, Response: responsePayload(msg.Content)})
		default:
			return nil, nil, fmt.Errorf("google: unsupported role %q", msg.Role)
		}
	}
	return system, contents, nil
}

// responsePayload wraps tool output in the object Gemini requires.
func responsePayload(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": content}
}

func toTools(tools []model.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toSchema converts a JSON Schema map. Nested objects and array items are
// converted recursively; unknown keywords are dropped.
func toSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{Type: schemaType(schema["type"])}
	if out.Type == genai.TypeUnspecified && schema["properties"] != nil {
		out.Type = genai.TypeObject
	}
	if d, ok := schema["description"].(string); ok {
		out.Description = d
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if pm, ok := v.(map[string]interface{}); ok {
				out.Properties[k] = toSchema(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		out.Items = toSchema(items)
	}
	out.Required = stringList(schema["required"])
	out.Enum = stringList(schema["enum"])
	return out
}

func schemaType(v interface{}) genai.Type {
	switch v {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}

func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fromResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	var out model.ChatOut
	if resp == nil {
		return out, errors.New("google: empty response")
	}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 {
		return out, errors.New("google: response has no candidates")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return out, safetyError(cand)
	}
	if cand.Content == nil {
		return out, nil
	}
	for _, part := range cand.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:    fmt.Sprintf("%s-%d", p.Name, len(out.ToolCalls)),
				Name:  p.Name,
				Input: p.Args,
			})
		}
	}
	return out, nil
}

// SafetyFilterError reports a response withheld by Gemini's safety filters.
type SafetyFilterError struct {
	Categories []string
}

func (e *SafetyFilterError) Error() string {
	return fmt.Sprintf("google: response blocked by safety filter %v", e.Categories)
}

func safetyError(c *genai.Candidate) *SafetyFilterError {
	e := &SafetyFilterError{}
	for _, r := range c.SafetyRatings {
		if r != nil && r.Blocked {
			e.Categories = append(e.Categories, fmt.Sprint(r.Category))
		}
	}
	return e
}

// IsTransient reports whether err is a rate limit or server error.
func IsTransient(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
}
