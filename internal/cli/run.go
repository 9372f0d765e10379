package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/agentgraph-go/graph"
	"github.com/dshills/agentgraph-go/graph/emit"
	"github.com/dshills/agentgraph-go/graph/feature/metrics"
	"github.com/dshills/agentgraph-go/graph/feature/persistence"
	"github.com/dshills/agentgraph-go/graph/feature/tracing"
	"github.com/dshills/agentgraph-go/graph/pipeline"
	"github.com/dshills/agentgraph-go/internal/config"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Run the agent once on a prompt",
		Long: "Run the configured strategy on a prompt taken from the arguments,\n" +
			"--input, or standard input when neither is given.",
		RunE: runAgent,
	}
	cmd.Flags().StringP("input", "i", "", "prompt text; \"-\" reads standard input")
	cmd.Flags().Duration("timeout", 0, "abort the run after this long (0 = no limit)")
	cmd.Flags().Bool("usage", false, "print token usage and cost after the answer")
	cmd.Flags().Bool("steps", false, "print the persisted steps after the answer")
	return cmd
}

func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	input, _ := cmd.Flags().GetString("input")
	if input == "" && len(args) > 0 {
		input = strings.Join(args, " ")
	}
	if input == "" || input == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		input = string(data)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty prompt")
	}
	return input, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	prompt, err := readPrompt(cmd, args)
	if err != nil {
		return exitError(ExitConfig, "%w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return exitError(ExitConfig, "%w", err)
	}
	defer rt.close(logger)

	answer, err := rt.agent.Run(ctx, prompt)
	if err != nil {
		return exitError(ExitRunFailure, "run failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer)

	runID, usage := rt.lastRun()
	if showUsage, _ := cmd.Flags().GetBool("usage"); showUsage {
		fmt.Fprintf(out, "\nrun %s: %d model calls, %d tokens in, %d tokens out, $%.4f\n",
			runID, usage.Calls, usage.TokensIn, usage.TokensOut, usage.CostUSD)
	}
	if showSteps, _ := cmd.Flags().GetBool("steps"); showSteps && runID != "" {
		steps, err := rt.persistence.Steps(ctx, runID)
		if err != nil {
			return exitError(ExitRunFailure, "load steps: %w", err)
		}
		for i, s := range steps {
			status := "ok"
			if s.Error != "" {
				status = s.Error
			}
			fmt.Fprintf(out, "%3d %-10s %-8s iter=%-3d %s\n", i+1, s.Subgraph, s.NodeID, s.Iteration, status)
		}
	}
	return nil
}

// runtime holds everything a run needs plus what must be released after.
type runtime struct {
	agent       *graph.Agent[string, string]
	persistence *persistence.Feature
	closers     []func(context.Context) error

	mu    sync.Mutex
	runID string
	usage metrics.Usage
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.close(logger)
		}
	}()

	strategy, err := buildStrategy(cfg)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}
	chat, retryable, modelCloser, err := buildModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	rt.closers = append(rt.closers, func(context.Context) error { return modelCloser.Close() })

	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	rt.closers = append(rt.closers, func(context.Context) error { return st.Close() })
	rt.persistence = persistence.New(st, persistence.WithLogger(logger))

	emitters := []emit.Emitter{emit.NewSlogEmitter(logger)}
	if cfg.Tracing.Endpoint != "" {
		tp, err := setupTracing(ctx, cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		rt.closers = append(rt.closers, tp.Shutdown)
		emitters = append(emitters, emit.NewOTelEmitterFromProvider(tp))
	}

	promReg := newMetricsRegistry()
	collector := metrics.New(promReg)
	collector.OnRunUsage = rt.recordUsage
	if cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(cfg.Metrics.Addr, promReg, logger)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		rt.closers = append(rt.closers, srv.Shutdown)
	}

	p := pipeline.New()
	for _, f := range []pipeline.Feature{
		tracing.New(emit.Multi(emitters...)),
		collector,
		rt.persistence,
	} {
		if err := p.Install(f); err != nil {
			return nil, err
		}
	}

	opts := []graph.Option{
		graph.WithAgentID(cfg.Agent.ID),
		graph.WithMaxIterations(cfg.Agent.MaxIterations),
		graph.WithRegistry(reg),
		graph.WithPipeline(p),
		graph.WithLogger(logger),
	}
	if cfg.Agent.SystemPrompt != "" {
		opts = append(opts, graph.WithSystemPrompt(cfg.Agent.SystemPrompt))
	}
	if rp, ok := retryPolicy(cfg.Model.Retry, retryable); ok {
		opts = append(opts, graph.WithModelRetry(rp))
	}
	rt.agent, err = graph.NewAgent(strategy, chat, opts...)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) recordUsage(runID string, u metrics.Usage) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.runID, rt.usage = runID, u
}

func (rt *runtime) lastRun() (string, metrics.Usage) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.runID, rt.usage
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}
	rt.closers = nil
}
