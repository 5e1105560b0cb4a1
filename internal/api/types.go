package api

import (
	"github.com/samcharles93/precis/internal/provider"
	"github.com/samcharles93/precis/internal/summarize"
)

// SummarizeRequest is the body of POST /api/v1/summarize. Missing knobs
// take the UI defaults; an explicit zero is validated like any value.
type SummarizeRequest struct {
	Text      string `json:"text"`
	NumBeams  *int   `json:"num_beams,omitempty"`
	MinLength *int   `json:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
}

type SummarizeResponse struct {
	ID         string            `json:"id"`
	Object     string            `json:"object"`
	Outcome    summarize.Outcome `json:"outcome"`
	Summary    string            `json:"summary"`
	Message    string            `json:"message,omitempty"`
	Model      string            `json:"model"`
	Usage      Usage             `json:"usage"`
	Truncated  bool              `json:"truncated"`
	Cached     bool              `json:"cached"`
	DurationMS int64             `json:"duration_ms"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type TokensRequest struct {
	Text string `json:"text"`
}

type TokensResponse struct {
	Tokens    int  `json:"tokens"`
	MaxTokens int  `json:"max_tokens"`
	Truncated bool `json:"truncated"`
}

type DownloadRequest struct {
	Summary string `json:"summary"`
}

type OptionsResponse struct {
	Model    string             `json:"model"`
	Backend  string             `json:"backend"`
	Defaults summarize.Defaults `json:"defaults"`
	Limits   summarize.Limits   `json:"limits"`
}

type HealthResponse struct {
	Status   string          `json:"status"`
	Provider provider.Status `json:"provider"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
