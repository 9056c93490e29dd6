// Package templates loads, normalizes, and serves gap-analysis templates.
// Templates come from three layers: built-ins, an optional flat file holding
// many templates, and an optional directory of per-template files. Later
// layers override earlier ones by template id. JSON and YAML both load, and
// legacy-format templates are normalized to the unified shape on the way in.
package templates

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lodestone-ai/lodestone/internal/model"
	"github.com/lodestone-ai/lodestone/internal/store"
)

// Registry is the in-memory template catalog. Safe for concurrent use;
// Load replaces the whole catalog atomically.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*model.Template

	flatPath string
	dirPath  string
	logger   *slog.Logger
}

// NewRegistry builds a registry over the given sources and performs the
// initial load. Either path may be empty; built-ins are always present.
func NewRegistry(flatPath, dirPath string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{flatPath: flatPath, dirPath: dirPath, logger: logger}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load rebuilds the catalog: built-ins, then the flat file, then the
// directory, later layers overriding earlier ones. A malformed file is
// logged and skipped; loading proceeds on the remainder.
func (r *Registry) Load() error {
	catalog := make(map[string]*model.Template)
	for _, t := range builtinTemplates() {
		catalog[t.TemplateID] = Normalize(t)
	}

	if r.flatPath != "" {
		if err := r.loadFlatFile(catalog); err != nil {
			return err
		}
	}
	if r.dirPath != "" {
		if err := r.loadDirectory(catalog); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.templates = catalog
	r.mu.Unlock()

	r.logger.Info("loaded template catalog", "templates", len(catalog))
	return nil
}

// Get returns the normalized template with the given id.
func (r *Registry) Get(id string) (*model.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: template not found: %s", store.ErrNotFound, id)
	}
	return t, nil
}

// List returns every template sorted by id.
func (r *Registry) List() []*model.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateID < out[j].TemplateID })
	return out
}

// loadFlatFile reads one document holding many templates, either a map of
// id → template or a bare array.
func (r *Registry) loadFlatFile(catalog map[string]*model.Template) error {
	data, err := os.ReadFile(r.flatPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading template file %s: %w", r.flatPath, err)
	}
	doc, err := decodeDocument(r.flatPath, data)
	if err != nil {
		r.logger.Warn("skipping malformed template file", "path", r.flatPath, "error", err)
		return nil
	}

	var byID map[string]*model.Template
	if err := json.Unmarshal(doc, &byID); err == nil {
		for id, t := range byID {
			if t.TemplateID == "" {
				t.TemplateID = id
			}
			catalog[t.TemplateID] = Normalize(t)
		}
		return nil
	}

	var list []*model.Template
	if err := json.Unmarshal(doc, &list); err != nil {
		r.logger.Warn("skipping malformed template file", "path", r.flatPath, "error", err)
		return nil
	}
	for _, t := range list {
		if t.TemplateID == "" {
			continue
		}
		catalog[t.TemplateID] = Normalize(t)
	}
	return nil
}

// loadDirectory reads one template per file. The filename stem is the
// fallback template id.
func (r *Registry) loadDirectory(catalog map[string]*model.Template) error {
	entries, err := os.ReadDir(r.dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading template directory %s: %w", r.dirPath, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !templateFile(entry.Name()) {
			continue
		}
		path := filepath.Join(r.dirPath, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("skipping unreadable template", "path", path, "error", err)
			continue
		}
		doc, err := decodeDocument(path, data)
		if err != nil {
			r.logger.Warn("skipping malformed template", "path", path, "error", err)
			continue
		}
		var t model.Template
		if err := json.Unmarshal(doc, &t); err != nil {
			r.logger.Warn("skipping malformed template", "path", path, "error", err)
			continue
		}
		if t.TemplateID == "" {
			t.TemplateID = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		catalog[t.TemplateID] = Normalize(&t)
	}
	return nil
}

// templateFile reports whether a filename looks like a template document.
func templateFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// decodeDocument returns the file content as JSON, converting YAML files
// through an intermediate value so the json struct tags apply either way.
func decodeDocument(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return data, nil
	}
}
