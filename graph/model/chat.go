// Package model provides LLM integration adapters.
package model

import (
	"context"
	"encoding/json"
	"fmt"
)

// ChatModel defines the interface for LLM chat providers.
//
// This interface abstracts the differences between LLM providers (OpenAI,
// Anthropic, Google, local models) behind a single request/response call.
//
// Implementations should:
//   - Handle provider-specific authentication
//   - Convert the standard Message format to the provider format, including
//     assistant tool calls and tool results
//   - Parse provider responses back to ChatOut
//   - Respect context cancellation and timeouts
//
// Example usage:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	out, err := m.Chat(ctx, []model.Message{
//	    model.UserMessage("What is the capital of France?"),
//	}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out.Text)
type ChatModel interface {
	// Chat sends messages to the LLM and returns the response.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: Conversation history (system, user, assistant and tool messages)
	//   - tools: Tool specifications the LLM may call (nil if no tools are visible)
	//
	// The LLM may respond with text, tool calls, or both.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Named is implemented by chat models that can report the model identifier
// they talk to. It is used to label pipeline events and metrics.
type Named interface {
	ModelName() string
}

// NameOf returns a printable identity for a chat model.
func NameOf(m ChatModel) string {
	if m == nil {
		return ""
	}
	if n, ok := m.(Named); ok {
		return n.ModelName()
	}
	return fmt.Sprintf("%T", m)
}

// Message represents a single message in an LLM conversation.
//
// Messages follow the common chat format used by OpenAI, Anthropic and Google:
//
//	conversation := []Message{
//	    {Role: RoleSystem, Content: "You are a helpful assistant."},
//	    {Role: RoleUser, Content: "What is the weather in Paris?"},
//	    {Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "get_weather", Input: ...}}},
//	    {Role: RoleTool, ToolCallID: "call_1", Name: "get_weather", Content: `{"temp":21}`},
//	    {Role: RoleAssistant, Content: "It is 21°C in Paris."},
//	}
type Message struct {
	// Role identifies the message sender. Use the Role* constants.
	Role string

	// Content contains the message text.
	// May be empty for assistant messages that only carry tool calls.
	Content string

	// ToolCalls holds the calls requested by an assistant message.
	ToolCalls []ToolCall

	// ToolCallID links a RoleTool message to the ToolCall it answers.
	ToolCallID string

	// Name is the tool name for RoleTool messages.
	Name string
}

// Standard role constants for LLM conversations.
const (
	// RoleSystem indicates a system message that sets context or instructions.
	RoleSystem = "system"

	// RoleUser indicates a message from the human user.
	RoleUser = "user"

	// RoleAssistant indicates a response from the LLM.
	RoleAssistant = "assistant"

	// RoleTool indicates the result of a tool call fed back to the LLM.
	RoleTool = "tool"
)

// SystemMessage builds a RoleSystem message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a RoleUser message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds a RoleAssistant message from a chat response.
func AssistantMessage(out ChatOut) Message {
	return Message{Role: RoleAssistant, Content: out.Text, ToolCalls: out.ToolCalls}
}

// ToolMessage builds the RoleTool message that reports a tool result.
func ToolMessage(res ToolResult) Message {
	return Message{Role: RoleTool, ToolCallID: res.ToolCallID, Name: res.Name, Content: res.Content()}
}

// ToolSpec describes a tool that an LLM can call.
//
// The Schema field follows JSON Schema format and describes the expected input
// parameters:
//
//	weather := ToolSpec{
//	    Name:        "get_weather",
//	    Description: "Get current weather for a location",
//	    Schema: map[string]interface{}{
//	        "type": "object",
//	        "properties": map[string]interface{}{
//	            "location": map[string]interface{}{"type": "string"},
//	        },
//	        "required": []string{"location"},
//	    },
//	}
type ToolSpec struct {
	// Name uniquely identifies the tool.
	Name string

	// Description explains what the tool does.
	// The LLM uses this to decide when to call the tool.
	Description string

	// Schema defines the tool's input parameters using JSON Schema format.
	// Optional for tools with no parameters.
	Schema map[string]interface{}
}

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text contains the LLM's generated response.
	// May be empty if the LLM only wants to call tools.
	Text string

	// ToolCalls contains tools the LLM wants to invoke.
	ToolCalls []ToolCall

	// TokensIn and TokensOut report provider token usage when available.
	TokensIn  int
	TokensOut int
}

// HasToolCalls reports whether the response requests any tool invocation.
func (o ChatOut) HasToolCalls() bool {
	return len(o.ToolCalls) > 0
}

// ToolCall represents a request from the LLM to invoke a specific tool.
type ToolCall struct {
	// ID is the provider-assigned call identifier used to correlate the result.
	ID string

	// Name identifies which tool to call.
	// Must match a ToolSpec.Name from the visible tools.
	Name string

	// Input contains the parameters for the tool call.
	// May be nil for tools that take no parameters.
	Input map[string]interface{}

	// InvalidArgs is set when the provider's arguments could not be decoded
	// into Input. It describes the decode failure; the call is answered with
	// an invalid ToolResult instead of being executed.
	InvalidArgs string
}

// ToolResult is the structured outcome of one tool call.
//
// Failures are data, not errors: a failed call is reported back to the model
// as a ToolResult with Failed set so the agent can react to it.
type ToolResult struct {
	ToolCallID string
	Name       string

	// Output is the tool's structured output on success.
	Output map[string]interface{}

	// Failed is true when the call could not be validated or executed.
	Failed bool

	// Invalid marks failures caused by the call itself (unknown tool or
	// arguments that violate the schema) rather than by tool execution.
	Invalid bool

	// Error describes the failure when Failed is true.
	Error string
}

// Content renders the result as the text sent back to the model.
func (r ToolResult) Content() string {
	if r.Failed {
		return "error: " + r.Error
	}
	if r.Output == nil {
		return "{}"
	}
	data, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}
	return string(data)
}
