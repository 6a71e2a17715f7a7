package app

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/sqlitedb"
	"github.com/flemzord/sandy/modules/recall/sqlite"
	"github.com/flemzord/sandy/pkg/message"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sandy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func archiveConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "recall.db")
	cfgPath = writeConfig(t, "version: \"1\"\nlog:\n  level: error\nmodules:\n  recall.sqlite:\n    path: "+dbPath+"\n")
	return cfgPath, dbPath
}

func TestDefaultDataDir_XDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	got := DefaultDataDir()
	want := "/custom/data/sandy"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultDataDir_Fallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")

	got := DefaultDataDir()
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".local", "share", "sandy")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRun_InvalidConfigPath(t *testing.T) {
	err := Run(RunParams{ConfigPath: "/nonexistent/config.yaml"})
	if err == nil {
		t.Error("expected error for invalid config path")
	}
}

func TestRun_InvalidConfigContent(t *testing.T) {
	path := writeConfig(t, "not: valid: yaml: [")
	if err := Run(RunParams{ConfigPath: path}); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "modules:\n  foo: {}")
	if err := Run(RunParams{ConfigPath: path}); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoad_PathResolvesAgainstDataDir(t *testing.T) {
	cfgPath, _ := archiveConfig(t)
	dataDir := t.TempDir()

	env, err := Load(cfgPath, dataDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := env.Path("vectors.db"); got != filepath.Join(dataDir, "vectors.db") {
		t.Errorf("relative path = %q", got)
	}
	if got := env.Path("/abs/x.db"); got != "/abs/x.db" {
		t.Errorf("absolute path = %q", got)
	}
	if env.Location == nil || env.Location.String() != "America/Los_Angeles" {
		t.Errorf("location = %v", env.Location)
	}
}

func TestLoad_BadTimezone(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nbot:\n  timezone: Mars/Olympus\nmodules:\n  recall.sqlite: {}\n")
	if _, err := Load(path, t.TempDir()); err == nil {
		t.Error("expected timezone error")
	}
}

func TestCheckConfig(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	cfgPath, _ := archiveConfig(t)

	ids, err := CheckConfig(cfgPath)
	if err != nil {
		t.Fatalf("CheckConfig: %v", err)
	}
	if !slices.Equal(ids, []string{"recall.sqlite"}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestWireAgent_NoChannel(t *testing.T) {
	cfgPath, _ := archiveConfig(t)
	env, err := Load(cfgPath, t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	application := core.NewApp(core.NewAppContext(env.Logger, env.DataDir))
	if err := wireAgent(application, env); err != nil {
		t.Fatalf("wireAgent: %v", err)
	}
	if _, ok := application.Module("router"); ok {
		t.Error("router should not be wired without a channel")
	}
}

func TestBackfill_DryRun(t *testing.T) {
	cfgPath, dbPath := archiveConfig(t)
	env, err := Load(cfgPath, t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx := context.Background()
	store, err := sqlite.Open(ctx, dbPath, sqlitedb.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, content := range []string{"hello there", message.EmptyPlaceholder} {
		if _, err := store.Create(ctx, recall.Message{
			AuthorID: 1, AuthorName: "ana",
			ChannelID: 2, ChannelName: "general",
			ServerID: 3, ServerName: "guild",
			Content: content, Timestamp: time.Now(),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	_ = store.Close()

	stats, err := Backfill(ctx, env, BackfillParams{DryRun: true})
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if stats.Pending != 2 || stats.Skipped != 1 || stats.Added != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestServeRecall_StopsOnCancel(t *testing.T) {
	cfgPath, _ := archiveConfig(t)
	env, err := Load(cfgPath, t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeRecall(ctx, env, RecallParams{Bind: "127.0.0.1:0"}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ServeRecall: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeRecall did not return")
	}
}
