package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Watcher polls the config file and the question-set directory it names.
// An edit to the file is parsed, validated and reported with its [ConfigDiff];
// adding, removing or editing a template in the directory is reported as a
// diff with only QuestionSetsChanged set. Invalid config edits are logged and
// ignored, keeping the last valid config current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config, d ConfigDiff)

	mu      sync.Mutex
	current *Config
	file    [sha256.Size]byte
	sets    [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config, d ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.file = sha256.Sum256(data)
	w.sets = fingerprintDir(cfg.QuestionSets)

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot read file", "path", w.path, "err", err)
		return
	}
	fileHash := sha256.Sum256(data)

	w.mu.Lock()
	old := w.current
	next := old
	fileChanged := fileHash != w.file
	w.mu.Unlock()

	if fileChanged {
		cfg, err := LoadFromReader(bytes.NewReader(data))
		if err != nil {
			slog.Warn("config watcher: ignoring invalid config", "path", w.path, "err", err)
			return
		}
		next = cfg
	}
	setsHash := fingerprintDir(next.QuestionSets)

	w.mu.Lock()
	setsChanged := setsHash != w.sets
	w.current = next
	w.file = fileHash
	w.sets = setsHash
	w.mu.Unlock()

	var d ConfigDiff
	if fileChanged {
		d = Diff(old, next)
	}
	if setsChanged {
		d.QuestionSetsChanged = true
	}
	if d.Empty() {
		return
	}

	slog.Info("config watcher: configuration reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"interview_changed", d.InterviewChanged,
		"question_sets_changed", d.QuestionSetsChanged,
	)
	if len(d.RestartRequired) > 0 {
		slog.Warn("config watcher: some changes only take effect after a restart", "sections", d.RestartRequired)
	}
	if w.onChange != nil {
		w.onChange(old, next, d)
	}
}

// fingerprintDir hashes the name, size and modification time of every
// template in dir. A missing directory has a fixed fingerprint.
func fingerprintDir(dir string) [sha256.Size]byte {
	h := sha256.New()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("config watcher: cannot list question sets", "dir", dir, "err", err)
		}
		return [sha256.Size]byte{}
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
		default:
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", e.Name(), info.Size(), info.ModTime().UnixNano())
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
