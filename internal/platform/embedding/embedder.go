package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/httpx"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// Dimensions is the width of every vector this package produces. The vector
// indexes in the graph are declared with the same width.
const Dimensions = 768

// Embedder turns text into a fixed-width vector. Long inputs are split into
// chunks of at most maxTokensPerChunk words and the chunk vectors are
// mean-pooled, so the result is deterministic for a given input.
type Embedder interface {
	Embed(ctx context.Context, text, modelName string, maxTokensPerChunk int) ([]float32, error)
}

type embedder struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewEmbedder(log *logger.Logger) Embedder {
	timeout := time.Duration(envutil.Int("EMBEDDING_TIMEOUT_SECONDS", 60)) * time.Second
	return &embedder{
		log:        log.With("component", "embedder"),
		baseURL:    strings.TrimRight(envutil.Str("EMBEDDING_BASE_URL", "http://localhost:11434"), "/"),
		apiKey:     envutil.Str("EMBEDDING_API_KEY", ""),
		model:      envutil.Str("EMBEDDING_MODEL_NAME", "nomic-embed-text"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: envutil.Int("EMBEDDING_MAX_RETRIES", 3),
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *embedder) Embed(ctx context.Context, text, modelName string, maxTokensPerChunk int) ([]float32, error) {
	chunks := SplitChunks(text, maxTokensPerChunk)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("embedding: empty input")
	}
	if modelName == "" {
		modelName = e.model
	}
	vectors, err := e.embedBatch(ctx, modelName, chunks)
	if err != nil {
		return nil, err
	}
	return MeanPool(vectors), nil
}

func (e *embedder) embedBatch(ctx context.Context, modelName string, inputs []string) ([][]float32, error) {
	req := embeddingsRequest{Model: modelName, Input: inputs}

	var resp embeddingsResponse
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(httpx.JitterSleep(backoff))
			backoff *= 2
		}
		lastErr = e.doOnce(ctx, req, &resp)
		if lastErr == nil {
			break
		}
		if !httpx.IsRetryableError(lastErr) {
			return nil, lastErr
		}
		e.log.Warn("embedding retry", "attempt", attempt+1, "error", lastErr)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, 0, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out = append(out, vec)
	}
	if len(out) != len(inputs) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(out), len(inputs))
	}
	return out, nil
}

type embedHTTPError struct {
	status int
	body   string
}

func (e *embedHTTPError) Error() string {
	return fmt.Sprintf("embedding: upstream status %d: %s", e.status, e.body)
}
func (e *embedHTTPError) HTTPStatusCode() int { return e.status }

func (e *embedder) doOnce(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("embedding: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &embedHTTPError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}

// SplitChunks splits text on whitespace into consecutive chunks of at most
// maxWords words. Zero or negative maxWords means a single chunk.
func SplitChunks(text string, maxWords int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxWords <= 0 || len(words) <= maxWords {
		return []string{strings.Join(words, " ")}
	}
	chunks := make([]string, 0, (len(words)+maxWords-1)/maxWords)
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// MeanPool averages row vectors component-wise. Rows shorter than the first
// row are ignored.
func MeanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) == 1 {
		return vectors[0]
	}
	width := len(vectors[0])
	sum := make([]float64, width)
	n := 0
	for _, vec := range vectors {
		if len(vec) != width {
			continue
		}
		for i, v := range vec {
			sum[i] += float64(v)
		}
		n++
	}
	out := make([]float32, width)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}

// Cosine returns the cosine similarity of two equal-width vectors,
// or 0 when either has zero magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
