// Package vision is the model gateway: it resolves an image reference, sends
// it with an instruction to a vision-capable LLM and returns the raw answer.
package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"parascope/api/internal/sample"
)

// Instruction asks for the four diagnosis fields. The parser does not rely on
// the model honouring it.
const Instruction = `You are a laboratory assistant reviewing a stained blood smear / microscopy image for parasites.
Examine the image and answer with a single JSON object and nothing else:
{
  "result": "positive" | "negative",  // whether parasites are present
  "confidence": integer 0-100,         // how sure you are
  "parasites_count": integer >= 0,     // parasites visible in the field
  "description": string                // short narrative of what you see (morphology, stage, artefacts)
}`

// Engine sends one image plus instruction to a concrete provider.
type Engine interface {
	Name() string
	GetModel() string
	Generate(ctx context.Context, instruction string, image []byte, mime string) (string, error)
}

// Images resolves an image reference to bytes.
type Images interface {
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// Failure is a classified gateway error.
type Failure struct {
	Code       sample.ReasonCode
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("vision %s (%d): %v", f.Code, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("vision %s: %v", f.Code, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Reason() sample.ReasonCode { return f.Code }

// ClassifyHTTP maps a non-success response to a reason code. 402 and 429
// bodies that talk about quota or billing mean operator action is required.
func ClassifyHTTP(status int, body string) sample.ReasonCode {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusPaymentRequired:
		return sample.ReasonQuotaExhausted
	case status == http.StatusTooManyRequests:
		if strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "exceeded your current quota") ||
			strings.Contains(lower, "billing") {
			return sample.ReasonQuotaExhausted
		}
		return sample.ReasonRateLimited
	default:
		return sample.ReasonUpstreamError
	}
}

// Gateway satisfies the pipeline's model port.
type Gateway struct {
	Engine Engine
	Images Images
}

func NewGateway(e Engine, images Images) *Gateway {
	return &Gateway{Engine: e, Images: images}
}

func (g *Gateway) Analyze(ctx context.Context, instruction, imageRef string) (string, error) {
	img, mime, err := g.Images.Fetch(ctx, imageRef)
	if err != nil {
		return "", &Failure{Code: sample.ReasonUpstreamError, Err: fmt.Errorf("fetch image: %w", err)}
	}
	out, err := g.Engine.Generate(ctx, instruction, img, mime)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return "", err
		}
		return "", &Failure{Code: sample.ReasonUpstreamError, Err: err}
	}
	return out, nil
}
