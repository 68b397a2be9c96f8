package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeGatesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modemgw.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadGates(t *testing.T) {
	path := writeGatesFile(t, `
[control]
enabled = true
allow_dangerous = false
`)

	gates, err := LoadGates(path)
	if err != nil {
		t.Fatalf("LoadGates failed: %v", err)
	}
	if !gates.Enabled {
		t.Errorf("Expected Enabled to be true")
	}
	if gates.AllowDangerous {
		t.Errorf("Expected AllowDangerous to be false")
	}
}

func TestLoadGatesMissingSection(t *testing.T) {
	path := writeGatesFile(t, `
[logging]
level = "debug"
`)

	gates, err := LoadGates(path)
	if err != nil {
		t.Fatalf("LoadGates failed: %v", err)
	}
	if gates.Enabled || gates.AllowDangerous {
		t.Errorf("Expected gates to default closed, got %+v", gates)
	}
}

func TestLoadGatesMissingFile(t *testing.T) {
	if _, err := LoadGates(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("LoadGates should fail for a missing file")
	}
}

func TestLoadGatesInvalidTOML(t *testing.T) {
	path := writeGatesFile(t, "[control\nbroken")
	if _, err := LoadGates(path); err == nil {
		t.Fatalf("LoadGates should fail for invalid TOML")
	}
}

func TestGatesHotReload(t *testing.T) {
	path := writeGatesFile(t, "[control]\nenabled = true\nallow_dangerous = false\n")

	received := make(chan Gates, 1)
	watcher := NewConfigWatcher(
		path,
		LoadGates,
		newTestLogger(),
		WithDebounce[Gates](50*time.Millisecond),
	)
	watcher.OnReload(func(g Gates) {
		received <- g
	})

	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[control]\nenabled = true\nallow_dangerous = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case g := <-received:
		if !g.Enabled || !g.AllowDangerous {
			t.Errorf("got %+v, want both switches on", g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for gates reload")
	}
}
