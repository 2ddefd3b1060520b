// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/northbound-system/axon/internal/apperr"
)

// OllamaBackend uses a local Ollama instance for embeddings. Ollama has no
// batch endpoint, so EmbedBatch embeds sequentially; EmbedChunks above still
// bounds the number of concurrent batches across the document.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *retryingClient
	dim     int
}

// NewOllamaBackend constructs an Ollama-backed Backend.
func NewOllamaBackend(baseURL, model string, retryCfg HTTPRetryConfig) *OllamaBackend {
	return &OllamaBackend{baseURL: baseURL, model: model, client: newRetryingClient(retryCfg), dim: 768}
}

func (e *OllamaBackend) Info(ctx context.Context) (Info, error) {
	return Info{ModelID: e.model, Dimension: e.dim, MaxInputLength: 2048}, nil
}

func (e *OllamaBackend) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{Model: e.model, Prompt: text})
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "marshal request", err)
	}

	resp, err := e.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "decode response", err)
	}

	out := make([]float32, len(response.Embedding))
	for i, v := range response.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func (e *OllamaBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		result[i] = vec
	}
	return result, nil
}
