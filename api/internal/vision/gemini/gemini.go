package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"parascope/api/internal/sample"
	"parascope/api/internal/util"
	"parascope/api/internal/vision"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// Generate makes exactly one GenerateContent call; the orchestrator owns
// timeouts and does not want retries hidden here.
func (e *Engine) Generate(ctx context.Context, instruction string, image []byte, mime string) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", classify(err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}

	parts := []genai.Part{
		genai.Text(instruction),
		&genai.Blob{MIMEType: util.PickMIME(mime, "", image), Data: image},
	}
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(err)
	}
	// an empty answer is still a successful call; the parser applies defaults
	return strings.TrimSpace(firstText(resp)), nil
}

// classify maps REST (googleapi) and gRPC status errors onto reason codes.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &vision.Failure{
			Code:       vision.ClassifyHTTP(gerr.Code, gerr.Message+" "+gerr.Body),
			StatusCode: gerr.Code,
			Err:        err,
		}
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		code := sample.ReasonRateLimited
		if strings.Contains(strings.ToLower(st.Message()), "quota") {
			code = sample.ReasonQuotaExhausted
		}
		return &vision.Failure{Code: code, StatusCode: http.StatusTooManyRequests, Err: err}
	}
	return &vision.Failure{Code: sample.ReasonUpstreamError, Err: err}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(f float32) *float32 { return &f }
