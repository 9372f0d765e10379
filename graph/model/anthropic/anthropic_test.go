package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/agentgraph-go/graph/model"
)

func server(t *testing.T, status int, body string, got *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(raw, got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const toolUseResponse = `{
  "id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-20241022",
  "content": [
    {"type": "text", "text": "Let me check."},
    {"type": "tool_use", "id": "toolu_1", "name": "search", "input": {"q": "go"}}
  ],
  "stop_reason": "tool_use",
  "usage": {"input_tokens": 20, "output_tokens": 8}
}`

func TestChatModel_Chat(t *testing.T) {
	var req map[string]interface{}
	srv := server(t, http.StatusOK, toolUseResponse, &req)
	m := NewChatModel("test-key", "", option.WithBaseURL(srv.URL+"/"))

	out, err := m.Chat(context.Background(), []model.Message{
		model.SystemMessage("be brief"),
		model.UserMessage("find go"),
		model.AssistantMessage(model.ChatOut{ToolCalls: []model.ToolCall{
			{ID: "toolu_0", Name: "search", Input: map[string]interface{}{"q": "a"}},
			{ID: "toolu_9", Name: "search"},
		}}),
		model.ToolMessage(model.ToolResult{ToolCallID: "toolu_0", Output: map[string]interface{}{"hits": 1}}),
		model.ToolMessage(model.ToolResult{ToolCallID: "toolu_9", Failed: true, Error: "timeout"}),
	}, []model.ToolSpec{{
		Name:        "search",
		Description: "web search",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"q": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"q"},
		},
	}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if out.Text != "Let me check." || len(out.ToolCalls) != 1 || out.ToolCalls[0].Input["q"] != "go" {
		t.Errorf("out = %+v", out)
	}
	if out.TokensIn != 20 || out.TokensOut != 8 {
		t.Errorf("tokens = %d/%d", out.TokensIn, out.TokensOut)
	}

	if req["model"] != DefaultModel || req["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("model/max_tokens = %v/%v", req["model"], req["max_tokens"])
	}
	system, _ := req["system"].([]interface{})
	if len(system) != 1 {
		t.Errorf("system = %v", req["system"])
	}
	msgs, _ := req["messages"].([]interface{})
	if len(msgs) != 3 {
		t.Fatalf("sent %d turns, want user, assistant, folded tool results", len(msgs))
	}
	last := msgs[2].(map[string]interface{})
	blocks := last["content"].([]interface{})
	if last["role"] != "user" || len(blocks) != 2 {
		t.Fatalf("tool result turn = %v", last)
	}
	second := blocks[1].(map[string]interface{})
	if second["type"] != "tool_result" || second["tool_use_id"] != "toolu_9" || second["is_error"] != true {
		t.Errorf("failed tool result block = %v", second)
	}

	tools := req["tools"].([]interface{})
	tool := tools[0].(map[string]interface{})
	schema := tool["input_schema"].(map[string]interface{})
	if tool["name"] != "search" || tool["description"] != "web search" || schema["type"] != "object" {
		t.Errorf("tool = %v", tool)
	}
	if req, _ := schema["required"].([]interface{}); len(req) != 1 || req[0] != "q" {
		t.Errorf("required = %v", schema["required"])
	}
}

func TestChatModel_Errors(t *testing.T) {
	t.Run("overloaded is transient", func(t *testing.T) {
		srv := server(t, 529, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`, nil)
		_, err := NewChatModel("k", "", option.WithBaseURL(srv.URL+"/")).
			Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil)
		if err == nil || !IsTransient(err) {
			t.Errorf("error = %v", err)
		}
	})
	t.Run("invalid request is not", func(t *testing.T) {
		srv := server(t, http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"no"}}`, nil)
		_, err := NewChatModel("k", "", option.WithBaseURL(srv.URL+"/")).
			Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil)
		if err == nil || IsTransient(err) {
			t.Errorf("error = %v", err)
		}
	})
	t.Run("unknown role", func(t *testing.T) {
		if _, _, err := toMessages([]model.Message{{Role: "narrator"}}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRequiredOf(t *testing.T) {
	if got := requiredOf(map[string]interface{}{"required": []string{"a"}}); len(got) != 1 {
		t.Errorf("[]string = %v", got)
	}
	if got := requiredOf(map[string]interface{}{"required": []interface{}{"a", 1}}); len(got) != 1 {
		t.Errorf("[]interface{} = %v", got)
	}
	if got := requiredOf(nil); got != nil {
		t.Errorf("nil = %v", got)
	}
}

func TestChatModel_MalformedInput(t *testing.T) {
	srv := server(t, http.StatusOK, `{
  "id": "msg_2", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-20241022",
  "content": [
    {"type": "tool_use", "id": "toolu_1", "name": "weather", "input": ["Paris"]},
    {"type": "tool_use", "id": "toolu_2", "name": "weather", "input": {"city": "Oslo"}}
  ],
  "stop_reason": "tool_use",
  "usage": {"input_tokens": 5, "output_tokens": 5}
}`, nil)
	out, err := NewChatModel("k", "", option.WithBaseURL(srv.URL+"/")).
		Chat(context.Background(), []model.Message{model.UserMessage("weather?")}, nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(out.ToolCalls) != 2 {
		t.Fatalf("ToolCalls = %+v, want both calls kept", out.ToolCalls)
	}
	if bad := out.ToolCalls[0]; bad.ID != "toolu_1" || bad.InvalidArgs == "" || bad.Input != nil {
		t.Errorf("malformed call = %+v", bad)
	}
	if good := out.ToolCalls[1]; good.InvalidArgs != "" || good.Input["city"] != "Oslo" {
		t.Errorf("valid call = %+v", good)
	}
}
