package emit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

// LogEmitter writes each event as one structured log record.
//
// Events carrying an error are logged at Warn, everything else at Debug,
// except agent start/finish which are logged at Info. With jsonMode the
// output is one JSON object per line:
//
//	{"time":"...","level":"INFO","msg":"agent_finished","run_id":"4f...","node":"","iteration":0,"duration_ms":12}
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter returns an emitter writing to w (os.Stdout when nil) using
// a JSON or text slog handler. All levels down to Debug are written.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var h slog.Handler
	if jsonMode {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &LogEmitter{logger: slog.New(h)}
}

// NewSlogEmitter returns an emitter that logs through an existing logger.
func NewSlogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit logs event.
func (l *LogEmitter) Emit(event Event) {
	attrs := make([]slog.Attr, 0, 3+len(event.Meta))
	attrs = append(attrs,
		slog.String("run_id", event.RunID),
		slog.String("node", event.NodeID),
		slog.Int("iteration", event.Iteration),
	)
	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}
	l.logger.LogAttrs(context.Background(), levelOf(event), event.Kind, attrs...)
}

func levelOf(event Event) slog.Level {
	switch {
	case event.Err() != "":
		return slog.LevelWarn
	case event.Kind == KindAgentStarting, event.Kind == KindAgentFinished:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
