// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/northbound-system/axon/internal/apperr"
)

// HTTPBackend talks to the self-hosted embedding service described in
// spec.md §6: GET /info and POST /embed. It is the default Backend; OpenAI
// and Ollama backends (below) are alternate concrete backends an operator can
// point the pipeline at instead.
type HTTPBackend struct {
	baseURL string
	client  *retryingClient

	mu   sync.Mutex
	info *Info
}

// NewHTTPBackend constructs an adapter against baseURL using the documented
// retry discipline.
func NewHTTPBackend(baseURL string, retryCfg HTTPRetryConfig) *HTTPBackend {
	return &HTTPBackend{baseURL: baseURL, client: newRetryingClient(retryCfg)}
}

type infoResponse struct {
	ModelID   string `json:"model_id"`
	ModelType struct {
		Embedding *struct {
			Dim int `json:"dim"`
		} `json:"embedding"`
		EmbeddingCap *struct {
			Dim int `json:"dim"`
		} `json:"Embedding"`
	} `json:"model_type"`
	MaxInputLength int `json:"max_input_length"`
}

// Info fetches /info once and caches it for subsequent calls.
func (b *HTTPBackend) Info(ctx context.Context) (Info, error) {
	b.mu.Lock()
	cached := b.info
	b.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	resp, err := b.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/info", nil)
	})
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()

	var parsed infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Info{}, apperr.Wrap(apperr.BackendUnavailable, "decode /info response", err)
	}

	dim := 0
	switch {
	case parsed.ModelType.Embedding != nil:
		dim = parsed.ModelType.Embedding.Dim
	case parsed.ModelType.EmbeddingCap != nil:
		dim = parsed.ModelType.EmbeddingCap.Dim
	}

	info := Info{ModelID: parsed.ModelID, Dimension: dim, MaxInputLength: parsed.MaxInputLength}
	b.mu.Lock()
	b.info = &info
	b.mu.Unlock()
	return info, nil
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// EmbedBatch posts /embed and expects a same-length, same-order array of vectors.
func (b *HTTPBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "marshal embed request", err)
	}

	resp, err := b.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/embed", bytes.NewReader(payload))
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "read /embed response", err)
	}

	var raw [][]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "decode /embed response", err)
	}
	if len(raw) != len(texts) {
		return nil, apperr.New(apperr.BackendUnavailable, fmt.Sprintf("expected %d vectors, got %d", len(texts), len(raw)))
	}

	out := make([][]float32, len(raw))
	for i, vec := range raw {
		out[i] = make([]float32, len(vec))
		for j, v := range vec {
			out[i][j] = float32(v)
		}
	}
	return out, nil
}
