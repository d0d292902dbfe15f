package logger

import (
	"context"
	"io"
	"log/slog"

	"github.com/fatih/color"
)

var levelPaint = map[slog.Level]func(format string, a ...interface{}) string{
	slog.LevelDebug: color.CyanString,
	slog.LevelInfo:  color.GreenString,
	slog.LevelWarn:  color.YellowString,
	slog.LevelError: color.RedString,
}

// colorHandler prefixes each message with a colored level tag. Coloring
// follows the fatih/color globals, so piping the daemon's stderr or setting
// NO_COLOR turns it off without touching the handler.
type colorHandler struct {
	*slog.TextHandler
}

func newColorHandler(w io.Writer, opts *slog.HandlerOptions) *colorHandler {
	return &colorHandler{TextHandler: slog.NewTextHandler(w, opts)}
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	if paint, ok := levelPaint[r.Level]; ok {
		r.Message = paint("%s", r.Level.String()) + "  " + r.Message
	}
	return h.TextHandler.Handle(ctx, r)
}
