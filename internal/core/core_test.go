package core

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type lifecycleModule struct {
	id       ModuleID
	log      *[]string
	startErr error
}

func (m *lifecycleModule) ModuleInfo() ModuleInfo { return ModuleInfo{ID: m.id} }

func (m *lifecycleModule) Start() error {
	*m.log = append(*m.log, "start "+string(m.id))
	return m.startErr
}

func (m *lifecycleModule) Stop(context.Context) error {
	*m.log = append(*m.log, "stop "+string(m.id))
	return nil
}

func TestApp_StartStopOrder(t *testing.T) {
	var log []string
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("a", &lifecycleModule{id: "a", log: &log})
	app.AppendModule("b", &lifecycleModule{id: "b", log: &log})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start a", "start b", "stop b", "stop a"}
	if !slices.Equal(log, want) {
		t.Errorf("got %v, want %v", log, want)
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	var log []string
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("a", &lifecycleModule{id: "a", log: &log})
	app.AppendModule("b", &lifecycleModule{id: "b", log: &log, startErr: errors.New("boom")})
	app.AppendModule("c", &lifecycleModule{id: "c", log: &log})

	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	want := []string{"start a", "start b", "stop a"}
	if !slices.Equal(log, want) {
		t.Errorf("got %v, want %v", log, want)
	}
}

func TestApp_CloseStopsUnstarted(t *testing.T) {
	var log []string
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("a", &lifecycleModule{id: "a", log: &log})

	app.Stop()
	if len(log) != 0 {
		t.Fatalf("Stop touched an unstarted module: %v", log)
	}
	app.Close()
	if !slices.Equal(log, []string{"stop a"}) {
		t.Errorf("got %v", log)
	}
	if _, ok := app.Module("a"); ok {
		t.Error("Close should forget modules")
	}
}

func TestGetModulesByNamespace(t *testing.T) {
	t.Cleanup(resetRegistry)
	for _, id := range []ModuleID{"recall.sqlite", "provider.ollama", "recall.api", "recallish"} {
		RegisterModule(&trackingModule{id: id})
	}

	var got []ModuleID
	for _, info := range GetModulesByNamespace("recall") {
		got = append(got, info.ID)
	}
	if !slices.Equal(got, []ModuleID{"recall.api", "recall.sqlite"}) {
		t.Errorf("got %v", got)
	}
	if n := len(GetModules()); n != 4 {
		t.Errorf("GetModules len = %d, want 4", n)
	}
}

func TestRegisterModule_DuplicatePanics(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(&trackingModule{id: "test.dup"})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	RegisterModule(&trackingModule{id: "test.dup"})
}

func TestApp_RunContextStopsOnCancel(t *testing.T) {
	var log []string
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("a", &lifecycleModule{id: "a", log: &log})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.RunContext(ctx); err != nil {
		t.Fatalf("RunContext: %v", err)
	}
	if !slices.Equal(log, []string{"start a", "stop a"}) {
		t.Errorf("got %v", log)
	}
}
