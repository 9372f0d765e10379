package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/agentgraph-go/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentgraph.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

const mockConfig = `
agent:
  id: helper
  system_prompt: Be brief.
model:
  provider: mock
  responses: ["The answer is 42."]
tools:
  http:
    enabled: true
store:
  driver: sqlite
  dsn: %s
log:
  level: debug
`

func TestRun(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "runs.db")
	path := writeConfig(t, strings.Replace(mockConfig, "%s", dsn, 1))

	out, logs, err := execute(t, "", "run", "--config", path, "--usage", "--steps", "What", "is", "it?")
	if err != nil {
		t.Fatalf("run error = %v\nlogs:\n%s", err, logs)
	}
	if !strings.HasPrefix(out, "The answer is 42.\n") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "1 model calls") {
		t.Errorf("usage missing from output %q", out)
	}
	if !strings.Contains(out, "llm") {
		t.Errorf("steps missing from output %q", out)
	}
	if !strings.Contains(logs, "agent_starting") {
		t.Errorf("expected lifecycle events in logs, got:\n%s", logs)
	}
	if _, err := os.Stat(dsn); err != nil {
		t.Errorf("sqlite store not created: %v", err)
	}
}

func TestRun_PromptFromStdin(t *testing.T) {
	path := writeConfig(t, "model:\n  provider: mock\n  responses: [ok]\n")
	out, _, err := execute(t, "  hello from stdin\n", "run", "-c", path)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if strings.TrimSpace(out) != "ok" {
		t.Errorf("output = %q", out)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("empty prompt", func(t *testing.T) {
		path := writeConfig(t, "model:\n  provider: mock\n  responses: [ok]\n")
		_, _, err := execute(t, "   ", "run", "-c", path)
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != ExitConfig {
			t.Errorf("error = %v, want config exit", err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		path := writeConfig(t, "model:\n  provider: nope\n")
		_, _, err := execute(t, "", "run", "-c", path, "hi")
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != ExitConfig {
			t.Errorf("error = %v, want config exit", err)
		}
	})

	t.Run("iteration ceiling", func(t *testing.T) {
		path := writeConfig(t, "agent:\n  max_iterations: 1\nmodel:\n  provider: mock\n  responses: [ok]\n")
		_, _, err := execute(t, "", "run", "-c", path, "hi")
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != ExitRunFailure {
			t.Errorf("error = %v, want run failure exit", err)
		}
	})
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "agent:\n  id: pa\n  strategy: plan-act\nmodel:\n  provider: mock\n  responses: [ok]\n")
	out, _, err := execute(t, "", "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(out, "config ok: strategy pa (plan-act)") {
		t.Errorf("output = %q", out)
	}
	for _, node := range []string{"plan", "act"} {
		if !strings.Contains(out, "node "+node) {
			t.Errorf("output missing node %s: %q", node, out)
		}
	}
}

func TestTools(t *testing.T) {
	path := writeConfig(t, "model:\n  provider: mock\n  responses: [ok]\ntools:\n  http:\n    enabled: true\n")
	out, _, err := execute(t, "", "tools", "-c", path)
	if err != nil {
		t.Fatalf("tools error = %v", err)
	}
	if !strings.Contains(out, "http_request") {
		t.Errorf("output = %q", out)
	}
}

func TestToolSelection(t *testing.T) {
	tests := []struct {
		tools config.Tools
		want  string
	}{
		{config.Tools{Select: config.SelectAll}, "graph.allTools"},
		{config.Tools{Select: config.SelectNone}, "graph.noTools"},
		{config.Tools{Select: config.SelectList, Names: []string{"a"}}, "graph.ToolList"},
		{config.Tools{Select: config.SelectAuto, Description: "x"}, "graph.AutoSelect"},
	}
	for _, tt := range tests {
		t.Run(tt.tools.Select, func(t *testing.T) {
			got := typeName(toolSelection(tt.tools))
			if got != tt.want {
				t.Errorf("toolSelection() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	always := func(error) bool { return true }
	if _, ok := retryPolicy(config.Retry{MaxAttempts: 1}, always); ok {
		t.Error("single attempt should disable retries")
	}
	if _, ok := retryPolicy(config.Retry{MaxAttempts: 3}, nil); ok {
		t.Error("no classifier should disable retries")
	}
	rp, ok := retryPolicy(config.Retry{MaxAttempts: 3}, always)
	if !ok || rp.MaxAttempts != 3 || rp.Validate() != nil {
		t.Errorf("retryPolicy() = %+v, %v", rp, ok)
	}
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
