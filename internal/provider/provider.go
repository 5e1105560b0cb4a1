// Package provider lazily constructs and memoizes the tokenizer and model
// handles shared by every summarization request.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samcharles93/precis/internal/generation"
	"github.com/samcharles93/precis/internal/hub"
	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/tokenizer"
)

// DefaultModelID is the summarization model used when none is configured.
const DefaultModelID = "sshleifer/distilbart-cnn-12-6"

var (
	// ErrConstruction wraps every tokenizer or model construction failure.
	ErrConstruction = errors.New("model construction failed")
	// ErrClosed is the construction error of a model finished after Close.
	ErrClosed = errors.New("provider closed")
)

type (
	TokenizerLoader func(ctx context.Context, cfg Config) (tokenizer.Tokenizer, error)
	ModelLoader     func(ctx context.Context, cfg Config, tok tokenizer.Tokenizer) (generation.Model, error)
)

type Config struct {
	ModelID   string
	Revision  string
	ModelsDir string
	Offline   bool
	Hub       *hub.Client
	// Generation selects the backend; its ModelID defaults to ModelID.
	Generation generation.Config

	LoadTokenizer TokenizerLoader
	LoadModel     ModelLoader
}

type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

type ResourceStatus struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

type Status struct {
	ModelID   string         `json:"model_id"`
	Backend   string         `json:"backend"`
	Tokenizer ResourceStatus `json:"tokenizer"`
	Model     ResourceStatus `json:"model"`
}

// Ready reports whether both handles were constructed.
func (s Status) Ready() bool {
	return s.Tokenizer.State == StateReady && s.Model.State == StateReady
}

// Provider hands out the process-wide tokenizer and model handles. The
// first call to each accessor constructs the handle; later calls return
// the same handle, or the same error, without retrying.
type Provider struct {
	cfg    Config
	log    logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	tokenizer func() (tokenizer.Tokenizer, error)
	model     func() (generation.Model, error)

	tokState   resourceState
	modelState resourceState

	// closeMu orders Close against the end of model construction.
	closeMu sync.Mutex
	closed  bool
}

type resourceState struct {
	state atomic.Value // State
	err   atomic.Value // string
}

func (r *resourceState) set(err error) {
	if err != nil {
		r.err.Store(err.Error())
		r.state.Store(StateFailed)
		return
	}
	r.state.Store(StateReady)
}

func (r *resourceState) status() ResourceStatus {
	st, _ := r.state.Load().(State)
	if st == "" {
		st = StatePending
	}
	msg, _ := r.err.Load().(string)
	return ResourceStatus{State: st, Error: msg}
}

func New(cfg Config, log logger.Logger) *Provider {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Generation.ModelID == "" {
		cfg.Generation.ModelID = cfg.ModelID
	}
	if cfg.Hub == nil {
		cfg.Hub = hub.NewClient()
	}
	if cfg.LoadTokenizer == nil {
		cfg.LoadTokenizer = LoadTokenizer
	}
	if cfg.LoadModel == nil {
		cfg.LoadModel = LoadModel
	}
	if log == nil {
		log = logger.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		cfg:    cfg,
		log:    log.With("model", cfg.ModelID),
		ctx:    ctx,
		cancel: cancel,
	}
	p.tokenizer = sync.OnceValues(p.buildTokenizer)
	p.model = sync.OnceValues(p.buildModel)
	return p
}

func (p *Provider) ModelID() string { return p.cfg.ModelID }

// Tokenizer returns the shared tokenizer, constructing it on first use.
func (p *Provider) Tokenizer() (tokenizer.Tokenizer, error) {
	return p.tokenizer()
}

// Model returns the shared generation model, constructing it (and the
// tokenizer it depends on) on first use.
func (p *Provider) Model() (generation.Model, error) {
	return p.model()
}

func (p *Provider) buildTokenizer() (tokenizer.Tokenizer, error) {
	start := time.Now()
	p.log.Info("constructing tokenizer")
	tok, err := p.cfg.LoadTokenizer(p.ctx, p.cfg)
	if err == nil && tok == nil {
		err = errors.New("loader returned no tokenizer")
	}
	if err != nil {
		err = fmt.Errorf("%w: tokenizer for %s: %w", ErrConstruction, p.cfg.ModelID, err)
		p.tokState.set(err)
		p.log.Error("tokenizer construction failed", "error", err)
		return nil, err
	}
	p.tokState.set(nil)
	p.log.Info("tokenizer ready", "vocab", tok.VocabSize(), "elapsed", time.Since(start).Round(time.Millisecond))
	return tok, nil
}

func (p *Provider) buildModel() (generation.Model, error) {
	tok, err := p.tokenizer()
	if err != nil {
		p.modelState.set(err)
		return nil, err
	}
	start := time.Now()
	p.log.Info("constructing model", "backend", p.Backend())
	m, err := p.cfg.LoadModel(p.ctx, p.cfg, tok)
	if err == nil && m == nil {
		err = errors.New("loader returned no model")
	}
	if err != nil {
		err = fmt.Errorf("%w: model %s: %w", ErrConstruction, p.cfg.ModelID, err)
		p.modelState.set(err)
		p.log.Error("model construction failed", "error", err)
		return nil, err
	}

	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		if cerr := m.Close(); cerr != nil {
			p.log.Warn("closing model built after shutdown", "error", cerr)
		}
		err = fmt.Errorf("%w: model %s: %w", ErrConstruction, p.cfg.ModelID, ErrClosed)
		p.modelState.set(err)
		return nil, err
	}
	p.modelState.set(nil)
	p.log.Info("model ready", "elapsed", time.Since(start).Round(time.Millisecond))
	return m, nil
}

// Warm constructs both handles. ctx bounds only the wait: construction
// keeps running on the provider's own context if ctx ends first.
func (p *Provider) Warm(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := p.model()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) Status() Status {
	return Status{
		ModelID:   p.cfg.ModelID,
		Backend:   p.Backend(),
		Tokenizer: p.tokState.status(),
		Model:     p.modelState.status(),
	}
}

// Backend names the generation backend behind Model.
func (p *Provider) Backend() string {
	if b := strings.ToLower(strings.TrimSpace(p.cfg.Generation.Backend)); b != "" {
		return b
	}
	return generation.DefaultBackend
}

// Close stops pending construction and closes the model if one was built.
// A model still under construction is closed as soon as it finishes.
func (p *Provider) Close() error {
	p.closeMu.Lock()
	p.closed = true
	ready := p.modelState.status().State == StateReady
	p.closeMu.Unlock()

	p.cancel()
	if !ready {
		return nil
	}
	m, err := p.model()
	if err != nil {
		return nil
	}
	return m.Close()
}
