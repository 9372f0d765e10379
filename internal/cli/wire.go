package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	antoption "github.com/anthropics/anthropic-sdk-go/option"
	oaoption "github.com/openai/openai-go/option"
	gapioption "google.golang.org/api/option"

	"github.com/dshills/agentgraph-go/graph"
	"github.com/dshills/agentgraph-go/graph/feature/persistence"
	"github.com/dshills/agentgraph-go/graph/model"
	"github.com/dshills/agentgraph-go/graph/model/anthropic"
	"github.com/dshills/agentgraph-go/graph/model/google"
	"github.com/dshills/agentgraph-go/graph/model/openai"
	"github.com/dshills/agentgraph-go/graph/store"
	"github.com/dshills/agentgraph-go/graph/tool"
	"github.com/dshills/agentgraph-go/internal/config"
)

func toolSelection(t config.Tools) graph.ToolSelection {
	switch t.Select {
	case config.SelectNone:
		return graph.NoTools
	case config.SelectList:
		return graph.ToolList{Names: t.Names}
	case config.SelectAuto:
		return graph.AutoSelect{Description: t.Description, MaxRetries: 2}
	}
	return graph.AllTools
}

func buildStrategy(cfg *config.Config) (*graph.Subgraph[string, string], error) {
	sel := toolSelection(cfg.Tools)
	switch cfg.Agent.Strategy {
	case config.StrategyPlanAct:
		return graph.PlanAct(cfg.Agent.ID, sel)
	case config.StrategyReAct:
		return graph.ReAct(cfg.Agent.ID, graph.WithToolSelection(sel))
	}
	return nil, fmt.Errorf("unknown strategy %q", cfg.Agent.Strategy)
}

func buildRegistry(cfg *config.Config) (*tool.Registry, error) {
	var tools []tool.Tool
	if cfg.Tools.HTTP.Enabled {
		tools = append(tools, tool.NewHTTPTool(&http.Client{Timeout: cfg.Tools.HTTP.Timeout}))
	}
	return tool.NewRegistry(tools...)
}

// buildModel returns the chat model, the error classifier used for retries,
// and a closer for clients that hold connections.
func buildModel(ctx context.Context, m config.Model) (model.ChatModel, func(error) bool, io.Closer, error) {
	switch m.Provider {
	case config.ProviderOpenAI:
		var opts []oaoption.RequestOption
		if m.BaseURL != "" {
			opts = append(opts, oaoption.WithBaseURL(m.BaseURL))
		}
		chat := openai.NewChatModel(m.APIKey, m.Name, opts...)
		chat.Temperature = m.Temperature
		chat.MaxTokens = int64(m.MaxTokens)
		return chat, openai.IsTransient, nopCloser{}, nil

	case config.ProviderAnthropic:
		var opts []antoption.RequestOption
		if m.BaseURL != "" {
			opts = append(opts, antoption.WithBaseURL(m.BaseURL))
		}
		chat := anthropic.NewChatModel(m.APIKey, m.Name, opts...)
		chat.Temperature = m.Temperature
		if m.MaxTokens > 0 {
			chat.MaxTokens = int64(m.MaxTokens)
		}
		return chat, anthropic.IsTransient, nopCloser{}, nil

	case config.ProviderGoogle:
		var opts []gapioption.ClientOption
		if m.BaseURL != "" {
			opts = append(opts, gapioption.WithEndpoint(m.BaseURL))
		}
		chat, err := google.NewChatModel(ctx, m.APIKey, m.Name, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		if m.Temperature != nil {
			t := float32(*m.Temperature)
			chat.Temperature = &t
		}
		chat.MaxTokens = int32(m.MaxTokens)
		return chat, google.IsTransient, chat, nil

	case config.ProviderMock:
		responses := make([]model.ChatOut, len(m.Responses))
		for i, text := range m.Responses {
			responses[i] = model.ChatOut{Text: text}
		}
		return &model.MockChatModel{Name: m.Name, Responses: responses}, nil, nopCloser{}, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown provider %q", m.Provider)
}

func buildStore(ctx context.Context, s config.Store) (store.Store[persistence.Snapshot], error) {
	switch s.Driver {
	case config.StoreMemory:
		return store.NewMemStore[persistence.Snapshot](), nil
	case config.StoreSQLite:
		return store.NewSQLiteStore[persistence.Snapshot](s.DSN)
	case config.StoreMySQL:
		return store.NewMySQLStore[persistence.Snapshot](ctx, s.DSN)
	}
	return nil, errors.New("unknown store driver " + s.Driver)
}

func retryPolicy(r config.Retry, retryable func(error) bool) (graph.RetryPolicy, bool) {
	if r.MaxAttempts <= 1 || retryable == nil {
		return graph.RetryPolicy{}, false
	}
	return graph.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Retryable:   retryable,
	}, true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
