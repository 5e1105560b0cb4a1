package generation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/precis/internal/tokenizer"
	"github.com/samcharles93/precis/internal/version"
)

// remoteModel talks to a seq2seq inference server over JSON:
//
//	GET  <endpoint>/health
//	POST <endpoint>/generate  {"model","input_ids","attention_mask",...}
//	                       -> {"sequences":[[...]]} | {"error":"..."}
type remoteModel struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

type remoteRequest struct {
	Model         string  `json:"model"`
	InputIDs      [][]int `json:"input_ids"`
	AttentionMask [][]int `json:"attention_mask"`
	NumBeams      int     `json:"num_beams"`
	MinLength     int     `json:"min_length"`
	MaxLength     int     `json:"max_length"`
	EarlyStopping bool    `json:"early_stopping"`
}

type remoteResponse struct {
	Sequences [][]int `json:"sequences"`
	Error     string  `json:"error,omitempty"`
}

func openRemote(ctx context.Context, cfg Config) (*remoteModel, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("generation: remote backend needs an endpoint (set --endpoint, or --backend %s for the offline baseline)", BackendLead)
	}
	m := &remoteModel{
		endpoint: endpoint,
		model:    cfg.ModelID,
		apiKey:   cfg.APIKey,
		client:   cfg.httpClient(),
	}
	if err := m.checkHealth(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *remoteModel) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("generation: build health request: %w", err)
	}
	m.decorate(req)
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("generation: reach %s: %w", m.endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("generation: %s/health returned %s", m.endpoint, resp.Status)
	}
	return nil
}

func (m *remoteModel) Generate(ctx context.Context, input tokenizer.Encoding, opts Options) ([]int, error) {
	mask := input.AttentionMask
	if len(mask) != len(input.IDs) {
		mask = make([]int, len(input.IDs))
		for i := range mask {
			mask[i] = 1
		}
	}
	body, err := json.Marshal(remoteRequest{
		Model:         m.model,
		InputIDs:      [][]int{input.IDs},
		AttentionMask: [][]int{mask},
		NumBeams:      opts.NumBeams,
		MinLength:     opts.MinLength,
		MaxLength:     opts.MaxLength,
		EarlyStopping: opts.EarlyStopping,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	m.decorate(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("generation: read response: %w", err)
	}
	var out remoteResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("generation: server returned %s: %s", resp.Status, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("generation: decode response: %w", decodeErr)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("generation: %s", out.Error)
	}
	if len(out.Sequences) == 0 {
		return nil, fmt.Errorf("generation: server returned no sequences")
	}
	seq := out.Sequences[0]
	if len(seq) > opts.MaxLength {
		seq = seq[:opts.MaxLength]
	}
	return seq, nil
}

func (m *remoteModel) decorate(req *http.Request) {
	req.Header.Set("User-Agent", version.UserAgent())
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
}

func (m *remoteModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
