package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenAIClient talks to an OpenAI-compatible API for embeddings and chat
// completions. It implements both Embedder and Answerer.
type OpenAIClient struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	chatModel      string
	client         *http.Client
	maxRetries     int
}

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	BaseURL        string
	APIKeyEnv      string
	EmbeddingModel string
	ChatModel      string
	Timeout        time.Duration
}

// NewOpenAIClient creates a client reading the API key from the configured
// environment variable.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         key,
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		client:         &http.Client{Timeout: timeout},
		maxRetries:     3,
	}, nil
}

// Embed returns an embedding vector for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	body := map[string]any{
		"input": text,
		"model": c.embeddingModel,
	}

	payload, err := c.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return out.Data[0].Embedding, nil
}

// Answer generates an answer to the question using the retrieved context
// chunks as grounding material.
func (c *OpenAIClient) Answer(ctx context.Context, systemPrompt, question string, contextChunks []string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant. Answer using only the provided context. If the context does not contain the answer, say so."
	}

	var sb strings.Builder
	sb.WriteString("Context:\n")
	for _, chunk := range contextChunks {
		sb.WriteString(chunk)
		sb.WriteString("\n---\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)

	body := map[string]any{
		"model": c.chatModel,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": sb.String()},
		},
	}

	payload, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return out.Choices[0].Message.Content, nil
}

// post sends a JSON request, retrying on 429 and 5xx with exponential
// backoff, and returns the raw response body.
func (c *OpenAIClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("upstream returned %s", resp.Status)
			continue
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("upstream returned %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return payload, nil
	}
	return nil, lastErr
}

func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
