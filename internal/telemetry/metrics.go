package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the instruments the pipeline reports on. All methods are
// safe on a zero-value Metrics; instruments left nil record nothing.
type Metrics struct {
	clustersStaged    metric.Int64Counter
	clustersResolved  metric.Int64Counter
	conflictsDetected metric.Int64Counter
	gapRuns           metric.Int64Counter
	gapDuration       metric.Float64Histogram
}

// NewMetrics registers the pipeline instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := Meter("lodestone")
	m := &Metrics{}

	var err error
	if m.clustersStaged, err = meter.Int64Counter("lodestone.clusters.staged",
		metric.WithDescription("Signal clusters staged for review")); err != nil {
		return nil, err
	}
	if m.clustersResolved, err = meter.Int64Counter("lodestone.clusters.resolved",
		metric.WithDescription("Clusters resolved, by action")); err != nil {
		return nil, err
	}
	if m.conflictsDetected, err = meter.Int64Counter("lodestone.conflicts.detected",
		metric.WithDescription("Conflicts detected during merges, by type")); err != nil {
		return nil, err
	}
	if m.gapRuns, err = meter.Int64Counter("lodestone.gap.runs",
		metric.WithDescription("Gap-analysis runs")); err != nil {
		return nil, err
	}
	if m.gapDuration, err = meter.Float64Histogram("lodestone.gap.duration",
		metric.WithDescription("Gap-analysis duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// ClusterStaged records one staged cluster.
func (m *Metrics) ClusterStaged(ctx context.Context) {
	if m == nil || m.clustersStaged == nil {
		return
	}
	m.clustersStaged.Add(ctx, 1)
}

// ClusterResolved records one resolution with its action.
func (m *Metrics) ClusterResolved(ctx context.Context, action string) {
	if m == nil || m.clustersResolved == nil {
		return
	}
	m.clustersResolved.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// ConflictDetected records one detected conflict with its type.
func (m *Metrics) ConflictDetected(ctx context.Context, conflictType string) {
	if m == nil || m.conflictsDetected == nil {
		return
	}
	m.conflictsDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("type", conflictType)))
}

// GapRun records one completed gap-analysis run and its duration.
func (m *Metrics) GapRun(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	if m.gapRuns != nil {
		m.gapRuns.Add(ctx, 1)
	}
	if m.gapDuration != nil {
		m.gapDuration.Record(ctx, d.Seconds())
	}
}
