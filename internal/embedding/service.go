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

// ServiceClient talks to an out-of-process embedding service that exposes
// POST /embed and GET /health.
type ServiceClient struct {
	baseURL string
	client  *http.Client
}

// NewServiceClient creates a client for the service at baseURL.
func NewServiceClient(baseURL string) *ServiceClient {
	return &ServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// EmbedRequest is the body of POST /embed. Texts is a string or a list of
// strings on the wire; the client always sends a list.
type EmbedRequest struct {
	Texts []string `json:"texts"`
}

// EmbedResponse is the body returned by POST /embed.
type EmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Encode implements Model.
func (c *ServiceClient) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(EmbedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, string(body))
	}

	var out EmbedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Embeddings))
	}

	return out.Embeddings, nil
}

// Health reports whether the service answers GET /health with "healthy".
func (c *ServiceClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var out HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || out.Status != "healthy" {
		return fmt.Errorf("embedding service unhealthy (status %d, %q)", resp.StatusCode, out.Status)
	}

	return nil
}

// ServiceLoader returns a Loader that probes the service before handing it
// out, so an unreachable service fails construction once.
func ServiceLoader(baseURL string) Loader {
	return func(ctx context.Context) (Model, error) {
		client := NewServiceClient(baseURL)

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := client.Health(probeCtx); err != nil {
			return nil, err
		}
		return client, nil
	}
}
