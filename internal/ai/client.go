package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// BackendConfig holds credentials for one OpenAI-compatible endpoint.
type BackendConfig struct {
	BaseURL string
	APIKey  string
}

// Client talks the OpenAI chat-completions wire format against two
// backends: gemini-prefixed model ids go to the Gemini endpoint,
// everything else to OpenRouter.
type Client struct {
	httpClient *http.Client
	gemini     BackendConfig
	openRouter BackendConfig
}

func NewClient(gemini, openRouter BackendConfig) *Client {
	return &Client{
		httpClient: &http.Client{},
		gemini:     gemini,
		openRouter: openRouter,
	}
}

func (c *Client) backendFor(model string) (BackendConfig, error) {
	cfg := c.openRouter
	if strings.HasPrefix(model, "gemini") {
		cfg = c.gemini
	}
	if cfg.BaseURL == "" {
		return BackendConfig{}, fmt.Errorf("no backend configured for model %q", model)
	}
	return cfg, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Client) post(ctx context.Context, cfg BackendConfig, payload chatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	url := strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model backend: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("model backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp, nil
}

// Complete runs a single-shot completion and returns the full text.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	cfg, err := c.backendFor(model)
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, cfg, chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Stream runs a streaming completion, emitting each SSE text delta as it
// arrives.
func (c *Client) Stream(ctx context.Context, model, prompt string, emit func(delta string) error) error {
	cfg, err := c.backendFor(model)
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, cfg, chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				return nil
			}
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := emit(delta); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
