// Package summarize runs one summarization request against the shared
// tokenizer and model handles.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samcharles93/precis/internal/cache"
	"github.com/samcharles93/precis/internal/generation"
	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/tokenizer"
)

var ErrInvalidRequest = errors.New("invalid summarization request")

type Request struct {
	Text      string
	NumBeams  int
	MinLength int
	MaxLength int
}

// Handles supplies the memoized tokenizer and model.
type Handles interface {
	Tokenizer() (tokenizer.Tokenizer, error)
	Model() (generation.Model, error)
	ModelID() string
	Backend() string
}

type Config struct {
	Limits Limits
	Cache  cache.Cache
	Logger logger.Logger
}

type Service struct {
	handles Handles
	limits  Limits
	cache   cache.Cache
	log     logger.Logger
}

func NewService(h Handles, cfg Config) *Service {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	return &Service{handles: h, limits: cfg.Limits, cache: cfg.Cache, log: cfg.Logger}
}

func (s *Service) Limits() Limits { return s.limits }

// Validate checks the knobs and text size of req. It does not look at
// whether the text is empty.
func (s *Service) Validate(req Request) error {
	l := s.limits
	switch {
	case req.NumBeams < l.MinBeams || req.NumBeams > l.MaxBeams:
		return fmt.Errorf("%w: num_beams must be between %d and %d, got %d", ErrInvalidRequest, l.MinBeams, l.MaxBeams, req.NumBeams)
	case req.MinLength < 1:
		return fmt.Errorf("%w: min_length must be at least 1, got %d", ErrInvalidRequest, req.MinLength)
	case req.MinLength > req.MaxLength:
		return fmt.Errorf("%w: min_length %d exceeds max_length %d", ErrInvalidRequest, req.MinLength, req.MaxLength)
	case req.MaxLength > l.MaxSummaryTokens:
		return fmt.Errorf("%w: max_length must be at most %d, got %d", ErrInvalidRequest, l.MaxSummaryTokens, req.MaxLength)
	case l.MaxInputChars > 0 && utf8.RuneCountInString(req.Text) > l.MaxInputChars:
		return fmt.Errorf("%w: text is longer than %d characters", ErrInvalidRequest, l.MaxInputChars)
	}
	return nil
}

// Summarize never panics and never returns a Success with an empty
// summary.
func (s *Service) Summarize(ctx context.Context, req Request) Result {
	start := time.Now()
	res := s.summarize(ctx, req)
	res.Duration = time.Since(start)

	log := logger.FromContextOr(ctx, s.log)
	attrs := []any{
		"outcome", res.Outcome,
		"beams", req.NumBeams,
		"min", req.MinLength,
		"max", req.MaxLength,
		"elapsed", res.Duration.Round(time.Millisecond),
	}
	switch {
	case res.Outcome.Failed():
		log.Warn("summarize failed", append(attrs, "error", res.Err)...)
	default:
		log.Info("summarize", append(attrs, "input_tokens", res.InputTokens, "output_tokens", res.OutputTokens, "cached", res.Cached)...)
	}
	return res
}

func (s *Service) summarize(ctx context.Context, req Request) Result {
	if strings.TrimSpace(req.Text) == "" {
		return Result{Outcome: NoInput, Message: msgNoInput}
	}
	if err := s.Validate(req); err != nil {
		return Result{Outcome: InvalidRequest, Message: strings.TrimPrefix(err.Error(), ErrInvalidRequest.Error()+": "), Err: err}
	}

	// Handles first: a process whose model failed must not answer from a
	// cache shared with healthy replicas.
	tok, err := s.handles.Tokenizer()
	if err != nil {
		return constructionFailure(err)
	}
	model, err := s.handles.Model()
	if err != nil {
		return constructionFailure(err)
	}

	key := cache.Key(s.handles.ModelID(), s.handles.Backend(), req.Text, req.NumBeams, req.MinLength, req.MaxLength)
	if summary, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("summary cache read failed", "error", err)
	} else if ok && summary != "" {
		return Result{Outcome: Success, Summary: summary, Cached: true}
	}

	res, err := s.generate(ctx, tok, model, req)
	if err != nil {
		res.Outcome = GenerationFailure
		res.Message = msgGenerationFailure + err.Error()
		res.Err = err
		res.Summary = ""
		return res
	}

	if err := s.cache.Set(ctx, key, res.Summary); err != nil {
		s.log.Warn("summary cache write failed", "error", err)
	}
	return res
}

func (s *Service) generate(ctx context.Context, tok tokenizer.Tokenizer, model generation.Model, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	opts := tokenizer.SummaryEncodeOptions()
	opts.MaxLength = s.limits.MaxInputTokens
	enc, err := tok.Encode(req.Text, opts)
	if err != nil {
		return res, err
	}
	res.InputTokens = len(enc.IDs)
	res.Truncated = enc.Truncated

	ids, err := model.Generate(ctx, enc, generation.Options{
		NumBeams:      req.NumBeams,
		MinLength:     req.MinLength,
		MaxLength:     req.MaxLength,
		EarlyStopping: true,
	})
	if err != nil {
		return res, err
	}
	res.OutputTokens = len(ids)

	summary, err := tok.Decode(ids, tokenizer.DecodeOptions{SkipSpecialTokens: true, CleanUpSpaces: true})
	if err != nil {
		return res, err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return res, errors.New("the model returned an empty summary")
	}
	res.Outcome = Success
	res.Summary = summary
	return res, nil
}

func constructionFailure(err error) Result {
	return Result{Outcome: ConstructionFailure, Message: msgConstructionFailure + err.Error(), Err: err}
}
