package presetcfg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// UnknownField is one key present in a config file that does not match any
// recognized Preset/LoreBook field ("unknown preset knob is
// ignored" — recorded as a warning, never a load failure).
type UnknownField struct {
	Path    string
	Message string
}

// LoadResult is the outcome of loading one preset config file: the decoded
// bundle plus any unknown-field warnings collected along the way.
type LoadResult struct {
	Bundle   *Bundle
	Warnings []UnknownField
}

// Loader reads a preset/lorebook YAML file and optionally watches it for
// changes: parse -> decode -> defaults -> validate, with an fsnotify-backed
// watch and a debounce timer to coalesce rapid writes before invoking the
// onChange callback.
type Loader struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewLoader returns a Loader for the preset file at path.
func NewLoader(path string) (*Loader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("presetcfg: failed to resolve path: %w", err)
	}
	return &Loader{path: abs}, nil
}

// Load reads and decodes the preset file once.
func (l *Loader) Load() (*LoadResult, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("presetcfg: failed to read %s: %w", l.path, err)
	}

	warnings, err := detectUnknownFields(data)
	if err != nil {
		return nil, fmt.Errorf("presetcfg: failed to validate %s: %w", l.path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("presetcfg: failed to parse %s: %w", l.path, err)
	}
	doc.Preset.SetDefaults()

	return &LoadResult{Bundle: doc.ToBundle(), Warnings: warnings}, nil
}

// detectUnknownFields re-decodes the file with yaml.v3's KnownFields mode,
// turning any unrecognized key into a warning instead of the load failure
// yaml.v3 would otherwise raise. A mapstructure-based strict-decode helper
// could fill the same role, but that dependency isn't wired anywhere else
// in this module — config decoding is already covered by yaml.v3's own
// KnownFields pass — so pulling it in for this one check would add a
// dependency surface nothing else in this module exercises.
func detectUnknownFields(data []byte) ([]UnknownField, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var probe Document
	err := dec.Decode(&probe)
	if err == nil {
		return nil, nil
	}

	typeErr, ok := err.(*yaml.TypeError)
	if !ok {
		return nil, err
	}

	warnings := make([]UnknownField, 0, len(typeErr.Errors))
	for _, msg := range typeErr.Errors {
		warnings = append(warnings, UnknownField{Path: "preset", Message: msg})
	}
	return warnings, nil
}

// Watch starts watching the preset file for changes, invoking onChange
// with each successfully reloaded result. Blocks until ctx is canceled.
// A reload that fails to parse is logged and skipped, leaving the
// previously loaded bundle live rather than tearing anything down.
func (l *Loader) Watch(ctx context.Context, onChange func(*LoadResult)) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("presetcfg: loader is closed")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("presetcfg: failed to create watcher: %w", err)
	}
	l.watcher = watcher
	l.mu.Unlock()

	dir := filepath.Dir(l.path)
	file := filepath.Base(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("presetcfg: failed to watch %s: %w", dir, err)
	}

	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer
	reload := func() {
		result, err := l.Load()
		if err != nil {
			slog.Error("presetcfg: failed to reload preset", "path", l.path, "error", err)
			return
		}
		for _, w := range result.Warnings {
			slog.Warn("presetcfg: unknown preset field ignored", "path", l.path, "field", w.Path, "detail", w.Message)
		}
		onChange(result)
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("presetcfg: file watcher error", "error", err)
		}
	}
}

// Close releases the watcher, if one was started.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		return err
	}
	return nil
}
