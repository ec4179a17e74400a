package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed defaults.json
var defaultsJSON []byte

//go:embed schema.json
var schemaJSON []byte

// Table is one immutable rule set. Matching walks brands via the alias map
// and the per-category brand lists, then keywords in Priority order.
type Table struct {
	Version        int                 `json:"version"`
	FuzzyThreshold float64             `json:"fuzzy_threshold"`
	Priority       []string            `json:"priority"`
	Brands         map[string][]string `json:"brands"`
	Aliases        map[string]string   `json:"aliases"`
	Keywords       map[string][]string `json:"keywords"`
}

var tableSchema = jsonschema.MustCompileString("rules/schema.json", string(schemaJSON))

// ParseTable validates raw JSON against the rule-table schema and decodes it.
func ParseTable(raw []byte) (*Table, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rule table: %w", err)
	}
	if err := tableSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate rule table: %w", err)
	}

	var t Table
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode rule table: %w", err)
	}
	if t.FuzzyThreshold == 0 {
		t.FuzzyThreshold = 0.84
	}
	return &t, nil
}

// Store holds the active rule table and swaps it atomically on reload, so
// matchers never observe a half-applied table.
type Store struct {
	path    string
	current atomic.Pointer[Table]
	logger  *slog.Logger

	mu      sync.Mutex // serializes reloads
	watcher *fsnotify.Watcher
}

// NewStore loads the table at path, or the embedded defaults when path is
// empty. A file that fails to parse at startup is an error; a file that
// fails to parse on a later reload keeps the previous table.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}

	raw := defaultsJSON
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rule table: %w", err)
		}
		raw = b
	}
	t, err := ParseTable(raw)
	if err != nil {
		return nil, err
	}
	s.current.Store(t)
	logger.Info("rule table loaded", "version", t.Version, "source", sourceName(path))
	return s, nil
}

func sourceName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

// Current returns the active table. The returned value must be treated as
// read-only.
func (s *Store) Current() *Table { return s.current.Load() }

// Reload re-reads the rule file and swaps the table in. With no file
// configured it restores the embedded defaults.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := defaultsJSON
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("read rule table: %w", err)
		}
		raw = b
	}
	t, err := ParseTable(raw)
	if err != nil {
		return err
	}
	s.current.Store(t)
	s.logger.Info("rule table reloaded", "version", t.Version)
	return nil
}

// Watch reloads the table whenever the rule file changes. Editors replace
// files rather than writing in place, so the parent directory is watched and
// events are filtered by name. No-op without a configured file.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.watcher = w
	base := filepath.Base(s.path)

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Error("rule table reload failed, keeping previous", "error", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Error("rules watcher error", "error", err)
			}
		}
	}()
	s.logger.Info("watching rule table", "path", s.path)
	return nil
}

// Close stops the file watcher if one is running.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
