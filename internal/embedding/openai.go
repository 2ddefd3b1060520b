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

// OpenAIBackend uses OpenAI's embedding API. Kept as an alternate Backend an
// operator can select instead of the self-hosted HTTPBackend.
type OpenAIBackend struct {
	apiKey string
	model  string
	client *retryingClient
	dim    int
}

// NewOpenAIBackend constructs an OpenAI-backed Backend.
func NewOpenAIBackend(apiKey, model string, retryCfg HTTPRetryConfig) *OpenAIBackend {
	dim := 1536
	if model == "text-embedding-3-large" {
		dim = 3072
	}
	return &OpenAIBackend{apiKey: apiKey, model: model, client: newRetryingClient(retryCfg), dim: dim}
}

func (e *OpenAIBackend) Info(ctx context.Context) (Info, error) {
	return Info{ModelID: e.model, Dimension: e.dim, MaxInputLength: 8191}, nil
}

func (e *OpenAIBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{Input: texts, Model: e.model})
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "marshal request", err)
	}

	resp, err := e.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "decode response", err)
	}
	if len(response.Data) != len(texts) {
		return nil, apperr.New(apperr.BackendUnavailable, fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(response.Data)))
	}

	result := make([][]float32, len(response.Data))
	for i, data := range response.Data {
		result[i] = make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			result[i][j] = float32(v)
		}
	}
	return result, nil
}
