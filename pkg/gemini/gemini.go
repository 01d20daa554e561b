// Package gemini generates task decompositions with Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
)

const DefaultModel = "gemini-2.5-flash"

// Client asks a Gemini model for a JSON array of strings.
type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, &apperr.AIResponseError{Msg: "no API key configured (GEMINI_API_KEY)"}
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &apperr.AIResponseError{Msg: "failed to create GenAI client", Err: err}
	}
	return &Client{client: client, model: model}, nil
}

// stepsSchema constrains the reply to a list of strings.
var stepsSchema = &genai.Schema{
	Type:  genai.TypeArray,
	Items: &genai.Schema{Type: genai.TypeString},
}

// Generate sends prompt and returns the raw text of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   stepsSchema,
	})
	if err != nil {
		return "", classify(ctx, err)
	}
	text := resp.Text()
	if text == "" {
		return "", &apperr.AIResponseError{Msg: "empty response from model"}
	}
	return text, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &apperr.AIResponseError{Msg: "request timed out", Retryable: true, Err: err}
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		// no status: the request never got an answer
		return &apperr.AIResponseError{Msg: "model unreachable", Retryable: true, Err: err}
	}
	switch {
	case code == http.StatusTooManyRequests:
		return &apperr.AIResponseError{Msg: "quota exceeded", Retryable: true, Err: err}
	case code >= 500:
		return &apperr.AIResponseError{Msg: fmt.Sprintf("model error %d", code), Retryable: true, Err: err}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &apperr.AIResponseError{Msg: "API key rejected", Err: err}
	default:
		return &apperr.AIResponseError{Msg: fmt.Sprintf("request rejected (%d)", code), Err: err}
	}
}
