package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/moomindm/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
dialogue:
  feedback_timeout: 3s
`

const watcherUpdatedYAML = `
server:
  log_level: debug
dialogue:
  feedback_timeout: 1s
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// bumpMtime moves the file's modification time forward so coarse file
// system timestamps cannot hide a rewrite.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

// startWatcher creates a watcher and runs it until the test ends.
func startWatcher(t *testing.T, path string, onChange func(old, new *config.Config)) *config.Watcher {
	t.Helper()
	w, err := config.NewWatcher(path, onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	w := startWatcher(t, path, nil)
	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo || cfg.Dialogue.FeedbackTimeout != 3*time.Second {
		t.Errorf("initial config = %+v", cfg)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherInvalidYAML)

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	var mu sync.Mutex
	var gotOld, gotNew *config.Config
	called := make(chan struct{}, 1)

	w := startWatcher(t, path, func(old, new *config.Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	})

	writeFile(t, path, watcherUpdatedYAML)
	bumpMtime(t, path)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld.Server.LogLevel != config.LogInfo || gotNew.Server.LogLevel != config.LogDebug {
		t.Errorf("callback configs: old=%q new=%q", gotOld.Server.LogLevel, gotNew.Server.LogLevel)
	}
	d := config.Diff(gotOld, gotNew)
	if !d.LogLevelChanged || !d.FeedbackTimeoutChanged {
		t.Errorf("Diff = %+v", d)
	}
	if w.Current() != gotNew {
		t.Error("Current() should return the reloaded config")
	}
}

func TestWatcher_KeepsConfigOnInvalidReload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	called := make(chan struct{}, 1)
	w := startWatcher(t, path, func(_, _ *config.Config) { called <- struct{}{} })
	initial := w.Current()

	writeFile(t, path, watcherInvalidYAML)
	bumpMtime(t, path)

	select {
	case <-called:
		t.Fatal("callback should not fire for an invalid config")
	case <-time.After(200 * time.Millisecond):
	}
	if w.Current() != initial {
		t.Error("Current() changed after an invalid reload")
	}
}

func TestWatcher_DetectsGrammarEdit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	grammarPath := filepath.Join(dir, "grammar.yaml")
	writeFile(t, grammarPath, "entries:\n  snufkin: {person: \"Snufkin\"}\n")
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "dialogue:\n  grammar_file: "+grammarPath+"\n")

	diffs := make(chan config.ConfigDiff, 4)
	startWatcher(t, path, func(old, new *config.Config) {
		diffs <- config.Diff(old, new)
	})

	// Touching the grammar without changing it is not a change.
	bumpMtime(t, grammarPath)
	select {
	case d := <-diffs:
		t.Fatalf("callback fired for an unchanged grammar: %+v", d)
	case <-time.After(200 * time.Millisecond):
	}

	writeFile(t, grammarPath, "entries:\n  snufkin: {person: \"Snufkin\"}\n  groke: {person: \"Groke\"}\n")
	future := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(grammarPath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case d := <-diffs:
		if !d.GrammarFileChanged || !d.DialogueChanged {
			t.Errorf("Diff = %+v, want grammar change", d)
		}
		if d.LogLevelChanged || d.PromptsChanged || len(d.RestartRequired) != 0 {
			t.Errorf("Diff reports unrelated changes: %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked after the grammar file changed")
	}
}

func TestWatcher_Stop(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	w.Stop()
	w.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
