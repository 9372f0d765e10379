package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/dshills/agentgraph-go/graph/model"
)

// server answers chat completion requests with body and records the
// decoded request.
func server(t *testing.T, status int, body string, got *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
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

const toolCallResponse = `{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
  "choices": [{
    "index": 0, "finish_reason": "tool_calls",
    "message": {"role": "assistant", "content": null, "tool_calls": [
      {"id": "call_1", "type": "function", "function": {"name": "search", "arguments": "{\"q\":\"go\"}"}}
    ]}
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func TestChatModel_Chat(t *testing.T) {
	var req map[string]interface{}
	srv := server(t, http.StatusOK, toolCallResponse, &req)
	m := NewChatModel("test-key", "gpt-4o", option.WithBaseURL(srv.URL+"/"))
	temp := 0.2
	m.Temperature = &temp

	out, err := m.Chat(context.Background(), []model.Message{
		model.SystemMessage("be brief"),
		model.UserMessage("find go"),
		model.AssistantMessage(model.ChatOut{ToolCalls: []model.ToolCall{{ID: "call_0", Name: "search", Input: map[string]interface{}{"q": "old"}}}}),
		model.ToolMessage(model.ToolResult{ToolCallID: "call_0", Output: map[string]interface{}{"hits": 0}}),
	}, []model.ToolSpec{{
		Name:        "search",
		Description: "web search",
		Schema:      map[string]interface{}{"type": "object", "required": []string{"q"}},
	}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if len(out.ToolCalls) != 1 || out.ToolCalls[0].ID != "call_1" || out.ToolCalls[0].Input["q"] != "go" {
		t.Errorf("ToolCalls = %+v", out.ToolCalls)
	}
	if out.TokensIn != 12 || out.TokensOut != 5 {
		t.Errorf("tokens = %d/%d", out.TokensIn, out.TokensOut)
	}

	if req["model"] != "gpt-4o" || req["temperature"] != 0.2 {
		t.Errorf("request model/temperature = %v/%v", req["model"], req["temperature"])
	}
	msgs, _ := req["messages"].([]interface{})
	if len(msgs) != 4 {
		t.Fatalf("sent %d messages", len(msgs))
	}
	roles := []string{"system", "user", "assistant", "tool"}
	for i, raw := range msgs {
		if msg := raw.(map[string]interface{}); msg["role"] != roles[i] {
			t.Errorf("messages[%d].role = %v", i, msg["role"])
		}
	}
	if tool := msgs[3].(map[string]interface{}); tool["tool_call_id"] != "call_0" {
		t.Errorf("tool message = %v", tool)
	}
	tools, _ := req["tools"].([]interface{})
	if len(tools) != 1 {
		t.Fatalf("sent %d tools", len(tools))
	}
	fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
	if fn["name"] != "search" || fn["description"] != "web search" {
		t.Errorf("tool = %v", fn)
	}
}

func TestChatModel_Text(t *testing.T) {
	srv := server(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o-mini",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Paris"}}],
		"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`, nil)
	m := NewChatModel("k", "", option.WithBaseURL(srv.URL+"/"))
	if m.ModelName() != DefaultModel {
		t.Errorf("ModelName() = %q", m.ModelName())
	}
	out, err := m.Chat(context.Background(), []model.Message{model.UserMessage("capital of France?")}, nil)
	if err != nil || out.Text != "Paris" || out.HasToolCalls() {
		t.Errorf("Chat() = (%+v, %v)", out, err)
	}
}

func TestChatModel_Errors(t *testing.T) {
	t.Run("rate limit is transient", func(t *testing.T) {
		srv := server(t, http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, nil)
		_, err := NewChatModel("k", "gpt-4o", option.WithBaseURL(srv.URL+"/")).
			Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil)
		if err == nil || !IsTransient(err) {
			t.Errorf("error = %v, want transient", err)
		}
	})

	t.Run("bad request is not", func(t *testing.T) {
		srv := server(t, http.StatusBadRequest, `{"error":{"message":"bad"}}`, nil)
		_, err := NewChatModel("k", "gpt-4o", option.WithBaseURL(srv.URL+"/")).
			Chat(context.Background(), []model.Message{model.UserMessage("hi")}, nil)
		if err == nil || IsTransient(err) {
			t.Errorf("error = %v, want permanent", err)
		}
	})

	t.Run("no choices", func(t *testing.T) {
		srv := server(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, nil)
		if _, err := NewChatModel("k", "m", option.WithBaseURL(srv.URL+"/")).
			Chat(context.Background(), nil, nil); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := NewChatModel("k", "m").Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		if _, err := toMessages([]model.Message{{Role: "narrator"}}); err == nil {
			t.Error("expected error")
		}
	})

	if IsTransient(errors.New("plain")) {
		t.Error("plain errors are not transient")
	}
}

func TestChatModel_MalformedArguments(t *testing.T) {
	srv := server(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"weather","arguments":"{\"city\": \"Par"}},
			{"id":"call_2","type":"function","function":{"name":"weather","arguments":"{\"city\":\"Oslo\"}"}}
		]}}]}`, nil)
	out, err := NewChatModel("k", "gpt-4o", option.WithBaseURL(srv.URL+"/")).
		Chat(context.Background(), []model.Message{model.UserMessage("weather?")}, nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(out.ToolCalls) != 2 {
		t.Fatalf("ToolCalls = %+v, want both calls kept", out.ToolCalls)
	}
	bad, good := out.ToolCalls[0], out.ToolCalls[1]
	if bad.ID != "call_1" || bad.InvalidArgs == "" || bad.Input != nil {
		t.Errorf("malformed call = %+v", bad)
	}
	if good.InvalidArgs != "" || good.Input["city"] != "Oslo" {
		t.Errorf("valid call = %+v", good)
	}
}
