// Package store implements the file-backed tenant stores: one JSON file per
// entity, one per signal cluster, a spokes map, per-type ID counters, and a
// sealed token envelope. All mutable shared state of the core lives here.
//
// Writers take a per-record lock for the read-modify-write window; readers
// proceed concurrently. Every write is atomic (temp file + rename), so a
// crash never leaves a half-written record. Malformed files on disk are
// logged and skipped; the operation proceeds on the remainder.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sentinel errors. The public facade maps these to error envelopes.
var (
	ErrNotFound   = errors.New("store: not found")
	ErrValidation = errors.New("store: validation")
)

// Reserved filenames in a tenant directory that are not entity records.
var reservedFiles = map[string]bool{
	"spokes.json":      true,
	"counters.json":    true,
	"self-entity.json": true,
	"tokens.json":      true,
	"name_rarity.json": true,
}

const clustersDir = "signal_clusters"

// Store is the root of all tenant data directories.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	tenants map[string]*Tenant
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: data directory is required", ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &Store{dir: dir, logger: logger, tenants: make(map[string]*Tenant)}, nil
}

// Tenant returns the handle for one tenant, creating its directory and
// bootstrapping the default spoke on first open. Handles are cached so all
// callers share one lock table per tenant.
func (s *Store) Tenant(name string) (*Tenant, error) {
	if err := validateRecordName(name); err != nil {
		return nil, fmt.Errorf("%w: invalid tenant name %q", ErrValidation, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[name]; ok {
		return t, nil
	}

	dir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(filepath.Join(dir, clustersDir), 0o750); err != nil {
		return nil, fmt.Errorf("store: create tenant dir: %w", err)
	}

	t := &Tenant{
		name:   name,
		dir:    dir,
		logger: s.logger.With("tenant", name),
		locks:  newKeyLocks(),
	}
	if err := t.bootstrapDefaultSpoke(); err != nil {
		return nil, err
	}
	s.tenants[name] = t
	return t, nil
}

// Tenant is the per-tenant store handle. All reads and writes for one tenant
// go through the same handle so its lock table serializes writers.
type Tenant struct {
	name   string
	dir    string
	logger *slog.Logger
	locks  *keyLocks

	// metaMu serializes spokes.json and counters.json, which are shared
	// documents rather than per-record files.
	metaMu sync.Mutex
}

// Name returns the tenant identifier.
func (t *Tenant) Name() string { return t.name }

// keyLocks hands out one mutex per record key. Mutexes live for the tenant
// handle's lifetime; the key space (entity and cluster ids) is small enough
// that they are never reclaimed.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// validateRecordName rejects names that cannot be used as a path component.
func validateRecordName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("empty or relative name")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name contains path separator")
	}
	return nil
}

// writeJSON atomically replaces path with the canonical JSON form of v,
// indented, UTF-8, with a trailing newline.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readJSON decodes path into v. A missing file returns ErrNotFound.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("store: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
