package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/config"
)

const watchInterval = 20 * time.Millisecond

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func watchedConfig(setsDir, level, listenTimeout, llm string) string {
	return fmt.Sprintf(`
server:
  log_level: %s
providers:
  stt:
    name: deepgram
  llm:
    name: %s
interview:
  listen_timeout: %s
question_sets: %q
`, level, llm, listenTimeout, setsDir)
}

type reload struct {
	old, new *config.Config
	diff     config.ConfigDiff
}

// startWatcher writes content to a fresh config file and watches it. Reloads
// are delivered on the returned channel.
func startWatcher(t *testing.T, content string) (string, *config.Watcher, <-chan reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)

	reloads := make(chan reload, 8)
	w, err := config.NewWatcher(path, func(old, new *config.Config, d config.ConfigDiff) {
		reloads <- reload{old: old, new: new, diff: d}
	}, config.WithInterval(watchInterval))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, reloads
}

func nextReload(t *testing.T, reloads <-chan reload) reload {
	t.Helper()
	select {
	case r := <-reloads:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
		return reload{}
	}
}

func expectQuiet(t *testing.T, reloads <-chan reload) {
	t.Helper()
	select {
	case r := <-reloads:
		t.Errorf("unexpected reload: %+v", r.diff)
	case <-time.After(10 * watchInterval):
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	_, w, _ := startWatcher(t, watchedConfig(t.TempDir(), "warn", "4s", "openai"))
	if got := w.Current().Server.LogLevel; got != config.LogWarn {
		t.Errorf("log_level = %q, want warn", got)
	}

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("NewWatcher on a missing file should fail")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "server:\n  log_level: bananas\n")
	if _, err := config.NewWatcher(bad, nil); err == nil {
		t.Error("NewWatcher on an invalid file should fail")
	}
}

func TestWatcher_ConfigEdit(t *testing.T) {
	t.Parallel()

	sets := t.TempDir()
	path, w, reloads := startWatcher(t, watchedConfig(sets, "info", "4s", "openai"))
	writeFile(t, path, watchedConfig(sets, "debug", "6s", "anthropic"))

	r := nextReload(t, reloads)
	if r.old.Server.LogLevel != config.LogInfo || r.new.Server.LogLevel != config.LogDebug {
		t.Errorf("log level %q -> %q, want info -> debug", r.old.Server.LogLevel, r.new.Server.LogLevel)
	}
	if !r.diff.LogLevelChanged || r.diff.NewLogLevel != config.LogDebug || !r.diff.InterviewChanged {
		t.Errorf("diff = %+v, want log level and interview changes", r.diff)
	}
	if r.diff.QuestionSetsChanged {
		t.Error("question sets reported changed, directory untouched")
	}
	if len(r.diff.RestartRequired) != 1 || r.diff.RestartRequired[0] != "providers.llm" {
		t.Errorf("RestartRequired = %v, want [providers.llm]", r.diff.RestartRequired)
	}
	if got := w.Current().Interview.ListenTimeout; got != 6*time.Second {
		t.Errorf("Current listen_timeout = %s, want 6s", got)
	}
}

func TestWatcher_IgnoresNoOpEdits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(t *testing.T, path string)
	}{
		{
			name: "invalid content",
			edit: func(t *testing.T, path string) { writeFile(t, path, "server:\n  log_level: bananas\n") },
		},
		{
			name: "touch without content change",
			edit: func(t *testing.T, path string) {
				now := time.Now().Add(time.Second)
				if err := os.Chtimes(path, now, now); err != nil {
					t.Fatalf("Chtimes: %v", err)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path, w, reloads := startWatcher(t, watchedConfig(t.TempDir(), "info", "4s", "openai"))
			tc.edit(t, path)
			expectQuiet(t, reloads)
			if got := w.Current().Server.LogLevel; got != config.LogInfo {
				t.Errorf("log_level = %q, want the previous info", got)
			}
		})
	}
}

func TestWatcher_QuestionSetDirectory(t *testing.T) {
	t.Parallel()

	sets := t.TempDir()
	writeFile(t, filepath.Join(sets, "backend.yaml"), "id: backend\n")
	_, _, reloads := startWatcher(t, watchedConfig(sets, "info", "4s", "openai"))

	// Files that are not templates are not watched.
	writeFile(t, filepath.Join(sets, "README.md"), "notes")
	expectQuiet(t, reloads)

	writeFile(t, filepath.Join(sets, "frontend.yml"), "id: frontend\n")
	r := nextReload(t, reloads)
	if !r.diff.QuestionSetsChanged || r.diff.LogLevelChanged || r.diff.InterviewChanged || len(r.diff.RestartRequired) != 0 {
		t.Errorf("diff = %+v, want only question sets changed", r.diff)
	}
	if r.old != r.new {
		t.Error("config replaced although the file did not change")
	}

	if err := os.Remove(filepath.Join(sets, "backend.yaml")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if r := nextReload(t, reloads); !r.diff.QuestionSetsChanged {
		t.Errorf("diff after removal = %+v, want question sets changed", r.diff)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	_, w, _ := startWatcher(t, watchedConfig(t.TempDir(), "info", "4s", "openai"))
	w.Stop()
	w.Stop()
}
