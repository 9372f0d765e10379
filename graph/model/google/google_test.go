package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/dshills/agentgraph-go/graph/model"
)

func TestNewChatModel_MissingKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	if _, err := NewChatModel(context.Background(), "", ""); err == nil {
		t.Error("expected error without API key")
	}
}

func TestToContents(t *testing.T) {
	messages := []model.Message{
		model.SystemMessage("be brief"),
		model.UserMessage("weather in Paris and Rome?"),
		model.AssistantMessage(model.ChatOut{ToolCalls: []model.ToolCall{
			{ID: "weather-0", Name: "weather", Input: map[string]interface{}{"city": "Paris"}},
			{ID: "weather-1", Name: "weather", Input: map[string]interface{}{"city": "Rome"}},
		}}),
		model.ToolMessage(model.ToolResult{ToolCallID: "weather-0", Output: map[string]interface{}{"temp": 21}}),
		{Role: model.RoleTool, ToolCallID: "weather-1", Content: "sunny"},
	}

	system, contents, err := toContents(messages)
	if err != nil {
		t.Fatalf("toContents() error = %v", err)
	}
	if system == nil || len(system.Parts) != 1 || system.Parts[0] != genai.Text("be brief") {
		t.Errorf("system = %+v", system)
	}
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want user/model/user", len(contents))
	}
	roles := []string{"user", "model", "user"}
	for i, c := range contents {
		if c.Role != roles[i] {
			t.Errorf("contents[%d].Role = %q, want %q", i, c.Role, roles[i])
		}
	}
	if len(contents[1].Parts) != 2 {
		t.Fatalf("model turn parts = %d, want 2 function calls", len(contents[1].Parts))
	}
	if fc, ok := contents[1].Parts[0].(genai.FunctionCall); !ok || fc.Args["city"] != "Paris" {
		t.Errorf("first call = %#v", contents[1].Parts[0])
	}

	responses := contents[2].Parts
	if len(responses) != 2 {
		t.Fatalf("tool results must fold into one user turn, got %d parts", len(responses))
	}
	first, ok := responses[0].(genai.FunctionResponse)
	if !ok || first.Name != "weather" || first.Response["temp"] != float64(21) {
		t.Errorf("first response = %#v", responses[0])
	}
	second := responses[1].(genai.FunctionResponse)
	if second.Name != "weather" || second.Response["result"] != "sunny" {
		t.Errorf("second response = %#v, want name resolved from call ID", second)
	}

	t.Run("unsupported role", func(t *testing.T) {
		if _, _, err := toContents([]model.Message{{Role: "critic"}}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestToSchema(t *testing.T) {
	s := toSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"city":  map[string]interface{}{"type": "string", "description": "city name"},
			"days":  map[string]interface{}{"type": "integer"},
			"units": map[string]interface{}{"type": "string", "enum": []interface{}{"c", "f"}},
			"tags":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []interface{}{"city"},
	})

	if s.Type != genai.TypeObject {
		t.Errorf("Type = %v", s.Type)
	}
	if len(s.Required) != 1 || s.Required[0] != "city" {
		t.Errorf("Required = %v", s.Required)
	}
	if p := s.Properties["city"]; p == nil || p.Type != genai.TypeString || p.Description != "city name" {
		t.Errorf("city = %+v", p)
	}
	if p := s.Properties["days"]; p == nil || p.Type != genai.TypeInteger {
		t.Errorf("days = %+v", p)
	}
	if p := s.Properties["units"]; p == nil || len(p.Enum) != 2 {
		t.Errorf("units = %+v", p)
	}
	if p := s.Properties["tags"]; p == nil || p.Items == nil || p.Items.Type != genai.TypeString {
		t.Errorf("tags = %+v", p)
	}
	if toSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
	if toTools(nil) != nil {
		t.Error("no tools should convert to nil")
	}
}

func TestFromResponse(t *testing.T) {
	t.Run("text and calls", func(t *testing.T) {
		out, err := fromResponse(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: "model", Parts: []genai.Part{
					genai.Text("Checking "),
					genai.Text("now."),
					genai.FunctionCall{Name: "weather", Args: map[string]any{"city": "Paris"}},
					genai.FunctionCall{Name: "weather", Args: map[string]any{"city": "Rome"}},
				}},
				FinishReason: genai.FinishReasonStop,
			}},
			UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 7},
		})
		if err != nil {
			t.Fatalf("fromResponse() error = %v", err)
		}
		if out.Text != "Checking now." {
			t.Errorf("Text = %q", out.Text)
		}
		if len(out.ToolCalls) != 2 || out.ToolCalls[1].ID != "weather-1" || out.ToolCalls[1].Input["city"] != "Rome" {
			t.Errorf("ToolCalls = %+v", out.ToolCalls)
		}
		if out.TokensIn != 12 || out.TokensOut != 7 {
			t.Errorf("tokens = %d/%d", out.TokensIn, out.TokensOut)
		}
	})

	t.Run("safety block", func(t *testing.T) {
		_, err := fromResponse(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
				SafetyRatings: []*genai.SafetyRating{
					{Category: genai.HarmCategoryDangerousContent, Blocked: true},
					{Category: genai.HarmCategoryHarassment},
				},
			}},
		})
		var safety *SafetyFilterError
		if !errors.As(err, &safety) || len(safety.Categories) != 1 {
			t.Errorf("fromResponse() error = %v, want one blocked category", err)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		if _, err := fromResponse(&genai.GenerateContentResponse{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"unavailable", fmt.Errorf("google: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), true},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}
