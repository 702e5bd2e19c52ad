package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	defer Close()
	SetLevel(LevelInfo)

	Debug("hidden %d", 1)
	Info("run %s started", "abc")
	Warn("careful")
	Error("boom: %v", "x")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message written at info level: %q", out)
	}
	for _, want := range []string{"[INFO] run abc started", "[WARN] careful", "[ERROR] boom: x"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	SetLevel(LevelDebug)
	Debug("visible")
	if !strings.Contains(buf.String(), "[DEBUG] visible") {
		t.Error("debug message missing at debug level")
	}
	SetLevel(LevelInfo)
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	Info("written to file")
	if GetWriter() == io.Discard {
		t.Error("GetWriter() should return the log file")
	}
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[INFO] written to file") {
		t.Errorf("log file content = %q", data)
	}
	if GetWriter() != io.Discard {
		t.Error("GetWriter() after Close should be io.Discard")
	}
}

func TestInit_BadPath(t *testing.T) {
	if err := Init(filepath.Join(t.TempDir(), "missing", "dir", "x.log")); err == nil {
		t.Error("expected error for unwritable path")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": LevelDebug, "INFO": LevelInfo, "": LevelInfo, "warning": LevelWarn, "error": LevelError}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
