package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"parascope/api/internal/sample"
	"parascope/api/internal/util"
	"parascope/api/internal/vision"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Engine talks to any OpenAI-compatible chat completions endpoint.
type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

// New leaves the per-request deadline to the caller's context.
func New(key, model, baseURL string) *Engine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Engine{
		APIKey:  key,
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
	}
}

func (e *Engine) Name() string { return "openai" }

func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Generate(ctx context.Context, instruction string, image []byte, mime string) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY is empty")
	}
	dataURL := util.MakeDataURL(util.PickMIME(mime, "", image), image)

	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": instruction},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
				},
			},
		},
		"temperature": 0,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", &vision.Failure{Code: sample.ReasonUpstreamError, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(x))
		return "", &vision.Failure{
			Code:       vision.ClassifyHTTP(resp.StatusCode, msg),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("openai %d: %s", resp.StatusCode, msg),
		}
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", &vision.Failure{Code: sample.ReasonUpstreamError, Err: fmt.Errorf("openai: decode: %w", err)}
	}
	if len(raw.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(raw.Choices[0].Message.Content), nil
}
