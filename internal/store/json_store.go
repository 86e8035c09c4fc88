// Package store persists stage inputs and outputs as JSON files.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mathquiz-forge/internal/domain"
)

// JSONStore reads and writes named JSON files under one directory. Writes go
// to a temp file in the same directory and are renamed into place, so a
// reader never sees a half-written stage file.
type JSONStore struct {
	dir string
}

func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

func (s *JSONStore) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// Load decodes the named file into v. A missing file is reported as a
// domain not-found error.
func (s *JSONStore) Load(name string, v interface{}) error {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.NewError(domain.ErrNotFound, fmt.Sprintf("stage file %s not found", s.path(name)), err)
		}
		return fmt.Errorf("failed to read %s: %w", s.path(name), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.NewError(domain.ErrInvalidInput, fmt.Sprintf("stage file %s is not valid JSON", s.path(name)), err)
	}
	return nil
}

func (s *JSONStore) Save(name string, v interface{}) error {
	target := s.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", target, err)
	}
	return nil
}

// SampleSeeds are written when the seed file is missing so a fresh checkout
// has something to run on.
var SampleSeeds = []domain.SeedItem{
	{
		ID:   "def_001",
		Type: domain.ItemTypeDefinition,
		Content: domain.Content{
			Text: "A function f: A -> B is called injective if for all x, y in A, f(x) = f(y) implies x = y.",
		},
	},
	{
		ID:   "proof_001",
		Type: domain.ItemTypePropositionProof,
		Content: domain.Content{
			Proposition: "For any integer n, if n^2 is odd, then n is odd.",
			Proof:       "We prove the contrapositive. Suppose n is even, so n = 2k for some integer k. Then n^2 = 4k^2 = 2(2k^2), which is even.",
		},
	},
}

// EnsureSeedFile creates the data directory and writes SampleSeeds to name
// when it does not exist yet. It reports whether a file was created.
func (s *JSONStore) EnsureSeedFile(name string) (bool, error) {
	if _, err := os.Stat(s.path(name)); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat seed file: %w", err)
	}
	if err := s.Save(name, SampleSeeds); err != nil {
		return false, err
	}
	return true, nil
}
