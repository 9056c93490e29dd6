package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/model"
)

func (t *Tenant) clusterPath(id string) string {
	return filepath.Join(t.dir, clustersDir, id+".json")
}

// GetCluster reads one signal cluster by id.
func (t *Tenant) GetCluster(id string) (*model.Cluster, error) {
	if err := validateRecordName(id); err != nil {
		return nil, fmt.Errorf("%w: cluster not found: %s", ErrNotFound, id)
	}
	var c model.Cluster
	if err := readJSON(t.clusterPath(id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// PutCluster writes one cluster record atomically.
func (t *Tenant) PutCluster(c *model.Cluster) error {
	if c.ClusterID == "" {
		return fmt.Errorf("%w: cluster has no id", ErrValidation)
	}
	if err := validateRecordName(c.ClusterID); err != nil {
		return fmt.Errorf("%w: invalid cluster id %q", ErrValidation, c.ClusterID)
	}
	unlock := t.locks.lock(c.ClusterID)
	defer unlock()
	return writeJSON(t.clusterPath(c.ClusterID), c)
}

// UpdateCluster applies fn to the cluster under its record lock, then writes
// the result.
func (t *Tenant) UpdateCluster(id string, fn func(*model.Cluster) error) (*model.Cluster, error) {
	if err := validateRecordName(id); err != nil {
		return nil, fmt.Errorf("%w: cluster not found: %s", ErrNotFound, id)
	}
	unlock := t.locks.lock(id)
	defer unlock()

	var c model.Cluster
	if err := readJSON(t.clusterPath(id), &c); err != nil {
		return nil, err
	}
	if err := fn(&c); err != nil {
		return nil, err
	}
	if err := writeJSON(t.clusterPath(id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCluster removes a cluster record. Resolution deletes the cluster as
// its final step; a missing file is not an error so retries stay idempotent.
func (t *Tenant) DeleteCluster(id string) error {
	if err := validateRecordName(id); err != nil {
		return fmt.Errorf("%w: invalid cluster id %q", ErrValidation, id)
	}
	unlock := t.locks.lock(id)
	defer unlock()
	if err := os.Remove(t.clusterPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete cluster %s: %w", id, err)
	}
	return nil
}

// ListClusters returns every parseable cluster record, sorted by id.
// Malformed files are logged and skipped.
func (t *Tenant) ListClusters() ([]*model.Cluster, error) {
	dir := filepath.Join(t.dir, clustersDir)
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list clusters: %w", err)
	}

	var out []*model.Cluster
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		var c model.Cluster
		if err := readJSON(filepath.Join(dir, name), &c); err != nil {
			t.logger.Warn("skipping malformed cluster file", "file", name, "error", err)
			continue
		}
		if c.ClusterID == "" {
			t.logger.Warn("skipping cluster file without cluster_id", "file", name)
			continue
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out, nil
}
