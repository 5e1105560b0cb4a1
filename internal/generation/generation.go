// Package generation is the boundary to the external sequence-to-sequence
// model. A Model turns an encoded input into output token ids; backends
// decide where the actual model runs.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/samcharles93/precis/internal/tokenizer"
)

const (
	BackendRemote = "remote"
	BackendOpenAI = "openai"
	BackendLead   = "lead"

	// DefaultBackend runs the configured model on an inference server.
	// BackendLead is an explicit opt-in for offline use.
	DefaultBackend = BackendRemote
)

var (
	ErrUnknownBackend = errors.New("unknown generation backend")
	ErrInvalidOptions = errors.New("invalid generation options")
)

// Options are the caller-supplied generation knobs. Lengths count output
// tokens including special tokens.
type Options struct {
	NumBeams      int
	MinLength     int
	MaxLength     int
	EarlyStopping bool
}

func (o Options) Validate() error {
	switch {
	case o.NumBeams < 1:
		return fmt.Errorf("%w: num_beams must be at least 1, got %d", ErrInvalidOptions, o.NumBeams)
	case o.MaxLength < 1:
		return fmt.Errorf("%w: max_length must be at least 1, got %d", ErrInvalidOptions, o.MaxLength)
	case o.MinLength < 0:
		return fmt.Errorf("%w: min_length must not be negative, got %d", ErrInvalidOptions, o.MinLength)
	case o.MinLength > o.MaxLength:
		return fmt.Errorf("%w: min_length %d exceeds max_length %d", ErrInvalidOptions, o.MinLength, o.MaxLength)
	}
	return nil
}

// Model generates one output sequence per call. Implementations must be
// safe for concurrent use.
type Model interface {
	Generate(ctx context.Context, input tokenizer.Encoding, opts Options) ([]int, error)
	Close() error
}

type Config struct {
	Backend  string
	ModelID  string
	Endpoint string
	APIKey   string
	// ChatModel is the model name sent to OpenAI-compatible endpoints.
	ChatModel  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

// Backends lists the accepted Config.Backend values.
func Backends() []string {
	return []string{BackendRemote, BackendOpenAI, BackendLead}
}

// Open constructs the model handle for cfg.Backend. tok is the tokenizer
// of the same model; backends that exchange text instead of ids need it.
func Open(ctx context.Context, cfg Config, tok tokenizer.Tokenizer) (Model, error) {
	var (
		m   Model
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendRemote, "":
		m, err = openRemote(ctx, cfg)
	case BackendOpenAI:
		m, err = openOpenAI(cfg, tok)
	case BackendLead:
		m, err = newLead(tok)
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownBackend, cfg.Backend, strings.Join(Backends(), ", "))
	}
	if err != nil {
		return nil, err
	}
	return guarded{inner: m}, nil
}

// guarded validates options and turns backend panics into errors so one
// bad request cannot take the process down.
type guarded struct {
	inner Model
}

func (g guarded) Generate(ctx context.Context, input tokenizer.Encoding, opts Options) (ids []int, err error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(input.IDs) == 0 {
		return nil, fmt.Errorf("generation: empty input")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			ids = nil
			err = fmt.Errorf("generation: backend panic: %v", r)
		}
	}()
	return g.inner.Generate(ctx, input, opts)
}

func (g guarded) Close() error { return g.inner.Close() }
