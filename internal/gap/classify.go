package gap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lodestone-ai/lodestone/internal/model"
)

// Document is one source file handed to the classifier: its filename and up
// to ten short observation snippets mentioning it.
type Document struct {
	Filename string   `json:"filename"`
	Snippets []string `json:"snippets,omitempty"`
}

// ClassificationResult is what the LLM oracle returns. Unclassified lists
// the filenames the oracle could not place.
type ClassificationResult struct {
	Classifications []model.DocumentClassification `json:"classifications"`
	Unclassified    []string                       `json:"unclassified"`
}

// Classifier is the optional LLM collaborator for document classification.
// Implementations must be safe to call concurrently. Gap analysis works
// without one: the deterministic signal-based track always runs, and on any
// classifier failure the analyzer degrades to it alone.
type Classifier interface {
	ClassifyDocuments(ctx context.Context, docs []Document, types []model.DocumentType) (*ClassificationResult, error)
}

// NoopClassifier classifies nothing; the signal-based track carries the run.
type NoopClassifier struct{}

func (NoopClassifier) ClassifyDocuments(_ context.Context, docs []Document, _ []model.DocumentType) (*ClassificationResult, error) {
	res := &ClassificationResult{}
	for _, d := range docs {
		res.Unclassified = append(res.Unclassified, d.Filename)
	}
	return res, nil
}

// classifierPrompt renders the instruction both HTTP providers send.
func classifierPrompt(docs []Document, types []model.DocumentType) string {
	var b strings.Builder
	b.WriteString("Classify each document against the known document types.\n")
	b.WriteString("Respond with JSON only: {\"classifications\":[{\"filename\":...,\"detected_items\":[type ids],\"confidence\":0..1}],\"unclassified\":[filenames]}\n\n")
	b.WriteString("Document types:\n")
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: signals %s\n", t.TypeID, strings.Join(t.ClassificationSignals, ", "))
	}
	b.WriteString("\nDocuments:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s", d.Filename)
		if len(d.Snippets) > 0 {
			fmt.Fprintf(&b, " | %s", strings.Join(d.Snippets, " / "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseClassifierOutput decodes a model response, tolerating prose around
// the JSON object.
func parseClassifierOutput(raw string) (*ClassificationResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("classifier returned no JSON object")
	}
	var res ClassificationResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &res); err != nil {
		return nil, fmt.Errorf("decoding classifier output: %w", err)
	}
	return &res, nil
}

// OllamaClassifier delegates classification to a local Ollama server.
// Recommended where documents must not leave the network.
type OllamaClassifier struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClassifier builds a classifier over Ollama's generate API. A zero
// timeout defaults to 60 seconds.
func NewOllamaClassifier(baseURL, llmModel string, timeout time.Duration) *OllamaClassifier {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if llmModel == "" {
		llmModel = "llama3.2"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClassifier{
		baseURL:    baseURL,
		model:      llmModel,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func (c *OllamaClassifier) ClassifyDocuments(ctx context.Context, docs []Document, types []model.DocumentType) (*ClassificationResult, error) {
	reqBody, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: classifierPrompt(docs, types),
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	return parseClassifierOutput(result.Response)
}

// OpenAIClassifier delegates classification to the OpenAI chat API.
type OpenAIClassifier struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClassifier builds a classifier over the chat completions API. A
// zero timeout defaults to 60 seconds.
func NewOpenAIClassifier(apiKey, llmModel string, timeout time.Duration) *OpenAIClassifier {
	if llmModel == "" {
		llmModel = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClassifier{
		baseURL:    "https://api.openai.com/v1",
		apiKey:     apiKey,
		model:      llmModel,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClassifier) ClassifyDocuments(ctx context.Context, docs []Document, types []model.DocumentType) (*ClassificationResult, error) {
	reqBody, err := json.Marshal(openAIChatRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: "You classify client documents. Respond with JSON only."},
			{Role: "user", Content: classifierPrompt(docs, types)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(body))
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty response")
	}
	return parseClassifierOutput(result.Choices[0].Message.Content)
}

// classifierRetries bounds how many times a failed classification is retried
// before the analyzer degrades to the signal-based track.
const classifierRetries = 2

// ResilientClassifier wraps another classifier with a circuit breaker and
// bounded retries. When the breaker is open, calls fail fast and gap
// analysis proceeds on signals alone.
type ResilientClassifier struct {
	inner   Classifier
	breaker *gobreaker.CircuitBreaker
}

// NewResilientClassifier wraps inner with failure handling.
func NewResilientClassifier(inner Classifier) *ResilientClassifier {
	return &ResilientClassifier{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "document-classifier",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (c *ResilientClassifier) ClassifyDocuments(ctx context.Context, docs []Document, types []model.DocumentType) (*ClassificationResult, error) {
	var lastErr error
	for attempt := 0; attempt <= classifierRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := c.breaker.Execute(func() (any, error) {
			return c.inner.ClassifyDocuments(ctx, docs, types)
		})
		if err == nil {
			return out.(*ClassificationResult), nil
		}
		lastErr = err
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
	}
	return nil, lastErr
}
