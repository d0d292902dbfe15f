package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestColorHandlerTagsLevel(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	l := slog.New(newColorHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l.Warn("disk almost full")

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "disk almost full") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "\\x1b[33m") && !strings.Contains(out, "\x1b[33m") {
		t.Fatalf("warn tag not colored: %q", out)
	}
}

func TestConsoleWriterDefaults(t *testing.T) {
	w := Config{}.ConsoleWriter(t.TempDir() + "/console.log")
	if w == nil {
		t.Fatal("writer must not be nil")
	}
	if _, err := w.Write([]byte("jmeter console output\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
