package emit

import (
	"sync"
	"testing"
)

func TestBufferedEmitter(t *testing.T) {
	b := NewBufferedEmitter()
	events := []Event{
		{RunID: "r1", Kind: KindAgentStarting},
		{RunID: "r1", Iteration: 1, NodeID: "llm", Kind: KindBeforeNode},
		{RunID: "r1", Iteration: 1, NodeID: "llm", Kind: KindAfterNode},
		{RunID: "r1", Iteration: 2, NodeID: "tools", Kind: KindToolCallFailure, Meta: map[string]interface{}{MetaError: "x"}},
		{RunID: "r2", Kind: KindAgentStarting},
	}
	for _, e := range events {
		b.Emit(e)
	}

	t.Run("history in order", func(t *testing.T) {
		h := b.History("r1")
		if len(h) != 4 {
			t.Fatalf("got %d events", len(h))
		}
		if h[1].Kind != KindBeforeNode || h[2].Kind != KindAfterNode {
			t.Errorf("order = %v, %v", h[1].Kind, h[2].Kind)
		}
		if h[0].Time.IsZero() {
			t.Error("Time should be stamped")
		}
		if got := b.History("missing"); got == nil || len(got) != 0 {
			t.Errorf("History(missing) = %v, want empty non-nil", got)
		}
	})

	two := 2
	tests := []struct {
		name   string
		filter HistoryFilter
		want   int
	}{
		{"node", HistoryFilter{NodeID: "llm"}, 2},
		{"kind", HistoryFilter{Kind: KindBeforeNode}, 1},
		{"min iteration", HistoryFilter{MinIteration: &two}, 1},
		{"max iteration", HistoryFilter{MaxIteration: &two}, 4},
		{"errors only", HistoryFilter{ErrorsOnly: true}, 1},
		{"combined", HistoryFilter{NodeID: "llm", Kind: KindToolCallFailure}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Filter("r1", tt.filter); len(got) != tt.want {
				t.Errorf("Filter() returned %d events, want %d", len(got), tt.want)
			}
		})
	}

	t.Run("runs and clear", func(t *testing.T) {
		if runs := b.Runs(); len(runs) != 2 || runs[0] != "r1" {
			t.Errorf("Runs() = %v", runs)
		}
		b.Clear("r1")
		if len(b.History("r1")) != 0 || len(b.History("r2")) != 1 {
			t.Error("Clear(r1) removed the wrong events")
		}
		b.Clear("")
		if len(b.Runs()) != 0 {
			t.Error("Clear(\"\") should drop everything")
		}
	})
}

func TestBufferedEmitter_Concurrent(t *testing.T) {
	b := NewBufferedEmitter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Emit(Event{RunID: "r", Kind: KindToolCall})
			_ = b.History("r")
		}()
	}
	wg.Wait()
	if n := len(b.History("r")); n != 50 {
		t.Errorf("stored %d events, want 50", n)
	}
}
