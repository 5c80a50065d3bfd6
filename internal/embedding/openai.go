package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient handles embeddings via an OpenAI-compatible /v1/embeddings
// endpoint (llama.cpp server, Ollama, LM Studio).
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIClient creates a new OpenAI-compatible embedding client.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []openAIEmbedding `json:"data"`
}

type openAIEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// Encode implements Model.
func (c *OpenAIClient) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(openAIRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var out openAIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// Sort by index to ensure order matches input
	vectors := make([][]float32, len(texts))
	for _, emb := range out.Data {
		if emb.Index < 0 || emb.Index >= len(texts) {
			return nil, fmt.Errorf("response index %d out of range", emb.Index)
		}
		vectors[emb.Index] = emb.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}

	return vectors, nil
}

// OpenAILoader returns a Loader that embeds a probe string and checks the
// model's output width before accepting it.
func OpenAILoader(baseURL, apiKey, model string) Loader {
	return func(ctx context.Context) (Model, error) {
		client := NewOpenAIClient(baseURL, apiKey, model)

		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		vectors, err := client.Encode(probeCtx, []string{"probe"})
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", model, err)
		}
		if len(vectors[0]) != Dimension {
			return nil, fmt.Errorf("model %s: %w: got %d, want %d", model, ErrDimensionMismatch, len(vectors[0]), Dimension)
		}

		return client, nil
	}
}
