package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// artifact is the on-disk form of a trained model.
type artifact struct {
	Version int                   `json:"version"`
	Docs    int                   `json:"docs"`
	Classes map[string]*ClassData `json:"classes"`
	Vocab   []string              `json:"vocab"`
}

const artifactVersion = 1

// LoadModel reads a model artifact from disk. A missing file is not an
// error; it means no model has been trained yet and returns (nil, nil).
func LoadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("unsupported model artifact version %d", a.Version)
	}

	m := NewModel()
	m.Docs = a.Docs
	if a.Classes != nil {
		m.Classes = a.Classes
	}
	for _, tok := range a.Vocab {
		m.Vocab[tok] = true
	}
	return m, nil
}

// SaveModel writes the model atomically so a reader never sees a torn
// artifact.
func SaveModel(m *Model, path string) error {
	m.mu.RLock()
	a := artifact{
		Version: artifactVersion,
		Docs:    m.Docs,
		Classes: m.Classes,
		Vocab:   make([]string, 0, len(m.Vocab)),
	}
	for tok := range m.Vocab {
		a.Vocab = append(a.Vocab, tok)
	}
	raw, err := json.Marshal(a)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o640); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}
