package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/graph/tool"
)

func TestSession_Lifecycle(t *testing.T) {
	ac := newTestContext(t, nil, 10, mockTool("a", nil), mockTool("b", nil))
	s := ac.Session()

	if tools, _ := s.Tools(); len(tools) != 2 {
		t.Fatalf("Tools() = %v, want every registry tool", tools)
	}
	if ok, err := s.HasTool("b"); !ok || err != nil {
		t.Errorf("HasTool(b) = (%v, %v)", ok, err)
	}
	_ = s.Append(model.UserMessage("hi"))
	h, _ := s.History()
	h[0].Content = "mutated"
	if h2, _ := s.History(); h2[0].Content != "hi" {
		t.Error("History() must return a copy")
	}

	ac.Close()
	if ac.Active() {
		t.Error("closed context reports active")
	}
	if _, err := s.History(); !errors.Is(err, ErrNotActive) {
		t.Errorf("History() after close error = %v", err)
	}
	if err := s.Append(model.UserMessage("late")); !errors.Is(err, ErrNotActive) {
		t.Errorf("Append() after close error = %v", err)
	}
	if _, err := s.HasTool("a"); !errors.Is(err, ErrNotActive) {
		t.Errorf("HasTool() after close error = %v", err)
	}
	if _, err := ac.RequestModel(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Errorf("RequestModel() after close error = %v", err)
	}
	if _, err := ac.ExecuteTools(context.Background(), nil); !errors.Is(err, ErrNotActive) {
		t.Errorf("ExecuteTools() after close error = %v", err)
	}
}

func TestRequestModel(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "hello"}}}
	ac := newTestContext(t, chat, 10, mockTool("search", nil))
	_ = ac.Session().Append(model.UserMessage("hi"))

	out, err := ac.RequestModel(context.Background())
	if err != nil {
		t.Fatalf("RequestModel() error = %v", err)
	}
	if out.Text != "hello" {
		t.Errorf("Text = %q", out.Text)
	}
	call, _ := chat.LastCall()
	if len(call.Tools) != 1 || call.Tools[0].Name != "search" {
		t.Errorf("model saw tools %v", call.Tools)
	}
	history, _ := ac.Session().History()
	if len(history) != 2 || history[1].Role != model.RoleAssistant {
		t.Errorf("history = %+v, want assistant response appended", history)
	}

	if _, err := ac.RequestModelWithoutTools(context.Background()); err != nil {
		t.Fatalf("RequestModelWithoutTools() error = %v", err)
	}
	call, _ = chat.LastCall()
	if len(call.Tools) != 0 {
		t.Errorf("model saw tools %v, want none", call.Tools)
	}
}

func TestRequestModel_Retry(t *testing.T) {
	transient := errors.New("rate limited")
	attempts := 0
	chat := &model.MockChatModel{Respond: func([]model.Message, []model.ToolSpec) (model.ChatOut, error) {
		attempts++
		if attempts < 3 {
			return model.ChatOut{}, transient
		}
		return model.ChatOut{Text: "ok"}, nil
	}}
	ac := newTestContext(t, chat, 10)
	ac.retry = &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, transient) },
	}

	out, err := ac.RequestModel(context.Background())
	if err != nil {
		t.Fatalf("RequestModel() error = %v", err)
	}
	if out.Text != "ok" || attempts != 3 {
		t.Errorf("out = %q after %d attempts", out.Text, attempts)
	}
}

func TestExecuteTools(t *testing.T) {
	slow := tool.NewFunc(model.ToolSpec{Name: "slow"}, func(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
		time.Sleep(20 * time.Millisecond)
		return map[string]interface{}{"slow": true}, nil
	})
	failing := &tool.MockTool{ToolName: "failing", Err: errors.New("broken")}
	fast := mockTool("fast", map[string]interface{}{"fast": true})
	hidden := mockTool("hidden", nil)

	ac := newTestContext(t, nil, 10, slow, failing, fast, hidden)
	_ = ac.Session().SetTools([]model.ToolSpec{{Name: "slow"}, {Name: "failing"}, {Name: "fast"}})

	calls := []model.ToolCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "failing"},
		{ID: "3", Name: "fast"},
		{ID: "4", Name: "hidden"},
	}
	results, err := ac.ExecuteTools(context.Background(), calls)
	if err != nil {
		t.Fatalf("ExecuteTools() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.ToolCallID != calls[i].ID {
			t.Errorf("results[%d].ToolCallID = %q, want call order preserved", i, r.ToolCallID)
		}
	}
	if results[0].Failed || results[2].Failed {
		t.Error("sibling calls must not be affected by a failure")
	}
	if !results[1].Failed || results[1].Invalid {
		t.Errorf("failing tool result = %+v", results[1])
	}
	if !results[3].Invalid || hidden.CallCount() != 0 {
		t.Errorf("hidden tool must not be executed, result = %+v", results[3])
	}
}

func TestExecuteTools_Events(t *testing.T) {
	p := pipeline.New()
	var mu sync.Mutex
	phases := map[string][]pipeline.Category{}
	record := func(c pipeline.Category) pipeline.Handler[pipeline.ToolCallEvent] {
		return func(_ context.Context, ev *pipeline.ToolCallEvent) error {
			mu.Lock()
			defer mu.Unlock()
			phases[ev.Call.ID] = append(phases[ev.Call.ID], c)
			return nil
		}
	}
	p.InterceptToolCall("rec", record(pipeline.ToolCall))
	p.InterceptToolValidationError("rec", record(pipeline.ToolValidationError))
	p.InterceptToolCallFailure("rec", record(pipeline.ToolCallFailure))
	p.InterceptToolCallResult("rec", record(pipeline.ToolCallResult))
	p.Seal()

	ok := mockTool("ok", nil)
	needsArg := &tool.MockTool{ToolName: "strict", Spec: model.ToolSpec{Schema: map[string]interface{}{"required": []string{"q"}}}}
	bad := &tool.MockTool{ToolName: "bad", Err: errors.New("x")}
	reg, _ := tool.NewRegistry(ok, needsArg, bad)
	ac := NewAgentContext(ContextParams{RunID: "r", Registry: reg, Pipeline: p, Model: &model.MockChatModel{}})

	results, err := ac.ExecuteTools(context.Background(), []model.ToolCall{
		{ID: "ok", Name: "ok"},
		{ID: "strict", Name: "strict"},
		{ID: "bad", Name: "bad"},
		{ID: "garbled", Name: "ok", InvalidArgs: "arguments are not a JSON object: unexpected end of JSON input"},
	})
	if err != nil {
		t.Fatalf("ExecuteTools() error = %v", err)
	}

	want := map[string]pipeline.Category{
		"ok":      pipeline.ToolCallResult,
		"strict":  pipeline.ToolValidationError,
		"bad":     pipeline.ToolCallFailure,
		"garbled": pipeline.ToolValidationError,
	}
	for id, last := range want {
		got := phases[id]
		if len(got) != 2 || got[0] != pipeline.ToolCall || got[1] != last {
			t.Errorf("call %s phases = %v, want [tool_call %s]", id, got, last)
		}
	}

	garbled := results[3]
	if !garbled.Failed || !garbled.Invalid || !strings.Contains(garbled.Error, "not a JSON object") {
		t.Errorf("garbled call result = %+v", garbled)
	}
	if ok.CallCount() != 1 {
		t.Errorf("ok tool ran %d times, want only the well-formed call", ok.CallCount())
	}
}

func TestExecuteTools_HandlerErrorAborts(t *testing.T) {
	p := pipeline.New()
	p.InterceptToolCall("guard", func(context.Context, *pipeline.ToolCallEvent) error {
		return errors.New("denied")
	})
	p.Seal()
	reg, _ := tool.NewRegistry(mockTool("t", nil))
	ac := NewAgentContext(ContextParams{Registry: reg, Pipeline: p, Model: &model.MockChatModel{}})

	_, err := ac.ExecuteTools(context.Background(), []model.ToolCall{{Name: "t"}})
	var herr *pipeline.HandlerError
	if !errors.As(err, &herr) || herr.Feature != "guard" {
		t.Errorf("ExecuteTools() error = %v, want HandlerError from guard", err)
	}
}
