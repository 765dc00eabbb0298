package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestOptionsFromEnvNormalizesFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("LOG_TO_FILE", "")
	o := OptionsFromEnv()
	if o.Format != "legacy" {
		t.Fatalf("format=%q want legacy", o.Format)
	}
	if o.ToFile {
		t.Fatalf("file logging should default off")
	}
	if o.FilePath != filepath.Join("logs", "arena.log") {
		t.Fatalf("file path=%q", o.FilePath)
	}
}

func TestInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "arena.log")
	if err := Init(Options{Level: "info", ToFile: true, Format: "json", FilePath: path}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Set(nil)
	Named("test").Info("hello_log")
	_ = L().Sync()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected log output in %s", path)
	}
}
