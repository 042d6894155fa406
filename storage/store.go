// Package storage provides the versioned key-value store backing all bot
// state. Every key maps to an append-only sequence of timestamped versions
// held in a single JSON file that is fully rewritten on each mutation.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// Version is one immutable timestamped snapshot of a key's value, split into
// lines. It serializes as a [nanosecond-timestamp, [lines...]] JSON pair.
type Version struct {
	Timestamp int64
	Value     []string
}

// MarshalJSON renders the version as its on-disk pair form.
func (v Version) MarshalJSON() ([]byte, error) {
	lines := v.Value
	if lines == nil {
		lines = []string{}
	}
	return json.Marshal([2]any{v.Timestamp, lines})
}

// UnmarshalJSON parses the on-disk pair form, rejecting any shape deviation.
func (v *Version) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("each version should be a pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("each version should be a pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &v.Timestamp); err != nil {
		return fmt.Errorf("first item of a version pair should be an integer: %w", err)
	}
	if strings.TrimSpace(string(pair[1])) == "null" {
		return fmt.Errorf("second item of a version pair should be a list of strings")
	}
	if err := json.Unmarshal(pair[1], &v.Value); err != nil {
		return fmt.Errorf("second item of a version pair should be a list of strings: %w", err)
	}
	return nil
}

type dataMap map[string][]Version

// Registry is the process-wide load cache for backing files. All Store
// instances pointing at the same path share one in-memory map, loaded on
// first use. Create one Registry at process start and hand it to every Store.
type Registry struct {
	mu    sync.Mutex
	cache map[string]dataMap
}

// NewRegistry creates an empty load registry.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]dataMap)}
}

// loadLocked returns the shared map for filename, reading the backing file on
// the first call per path. Callers must hold r.mu.
func (r *Registry) loadLocked(filename string) (dataMap, error) {
	if data, ok := r.cache[filename]; ok {
		return data, nil
	}
	data, err := readBackingFile(filename)
	if err != nil {
		return nil, err
	}
	r.cache[filename] = data
	return data, nil
}

// Store is a versioned key-value store over a single backing file.
type Store struct {
	registry *Registry
	filename string
}

// NewStore creates a store over the given backing file. Stores sharing a
// registry and filename see the same data.
func NewStore(registry *Registry, filename string) *Store {
	return &Store{registry: registry, filename: filename}
}

// StoreItem records value under name, stamped with the current time. With
// addNewVersion the value is appended as a new version; otherwise it replaces
// the latest version in place. The full map is written back synchronously, so
// the mutation is durable when StoreItem returns.
func (s *Store) StoreItem(ctx context.Context, name, value string, addNewVersion bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	data, err := s.registry.loadLocked(s.filename)
	if err != nil {
		return err
	}

	versions := data[name]
	if !addNewVersion && len(versions) > 0 {
		versions = versions[:len(versions)-1]
	}
	data[name] = append(versions, Version{
		Timestamp: time.Now().UnixNano(),
		Value:     strings.Split(value, "\n"),
	})

	return s.saveLocked(data)
}

// GetItem returns the latest version's value with lines joined by newlines.
// The second return value reports whether the key has any versions.
func (s *Store) GetItem(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	data, err := s.registry.loadLocked(s.filename)
	if err != nil {
		return "", false, err
	}

	versions := data[name]
	if len(versions) == 0 {
		return "", false, nil
	}
	return strings.Join(versions[len(versions)-1].Value, "\n"), true, nil
}

// GetAllVersions returns a copy of the key's version history, oldest first.
func (s *Store) GetAllVersions(ctx context.Context, name string) ([]Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	data, err := s.registry.loadLocked(s.filename)
	if err != nil {
		return nil, err
	}

	versions := data[name]
	copied := make([]Version, len(versions))
	copy(copied, versions)
	return copied, nil
}

func (s *Store) saveLocked(data dataMap) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage file: %w", err)
	}
	if err := atomic.WriteFile(s.filename, bytes.NewReader(encoded)); err != nil {
		return fmt.Errorf("failed to write storage file %s: %w", s.filename, err)
	}
	return nil
}

func readBackingFile(filename string) (dataMap, error) {
	raw, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return make(dataMap), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file %s: %w", filename, err)
	}

	data := make(dataMap)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("storage file %s is malformed (should be a JSON object of version-pair lists): %w", filename, err)
	}
	return data, nil
}
