package lodestone

import (
	"context"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// Classifier is the optional LLM collaborator for document classification
// during gap analysis. When provided via WithClassifier it replaces the
// auto-detected Ollama/OpenAI/noop provider. Implementations must be safe
// to call concurrently; failures are logged and the analysis degrades to
// signal-based classification.
type Classifier interface {
	ClassifyDocuments(ctx context.Context, docs []Document, types []model.DocumentType) (*ClassificationResult, error)
}

// StagingHook receives async notifications when clusters are staged or
// resolved. Multiple hooks may be registered; all registered hooks receive
// every event. Hook methods run on the calling goroutine after the state
// change is durable — they must return quickly. Failures are logged and do
// not fail the originating operation.
type StagingHook interface {
	OnClusterStaged(ctx context.Context, cluster Cluster) error
	OnClusterResolved(ctx context.Context, outcome Outcome) error
}
