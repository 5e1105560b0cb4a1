package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samcharles93/precis/internal/generation"
	"github.com/samcharles93/precis/internal/hub"
	"github.com/samcharles93/precis/internal/tokenizer"
)

const (
	fixtureVocab  = `{"<s>":0,"<pad>":1,"</s>":2,"<unk>":3,"<mask>":4,"a":5,"b":6}`
	fixtureMerges = "#version: 0.2\n"
)

func fixtureTokenizer(t *testing.T) tokenizer.Tokenizer {
	t.Helper()
	tok, err := tokenizer.LoadFiles([]byte(fixtureVocab), []byte(fixtureMerges), tokenizer.BARTSpecialTokens)
	if err != nil {
		t.Fatalf("LoadFiles() error = %v", err)
	}
	return tok
}

type countingModel struct {
	closed atomic.Int32
}

func (m *countingModel) Generate(context.Context, tokenizer.Encoding, generation.Options) ([]int, error) {
	return []int{0, 5, 2}, nil
}

func (m *countingModel) Close() error {
	m.closed.Add(1)
	return nil
}

func TestProviderConstructsOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	tok := fixtureTokenizer(t)
	model := &countingModel{}
	var tokCalls, modelCalls atomic.Int32
	release := make(chan struct{})

	p := New(Config{
		LoadTokenizer: func(context.Context, Config) (tokenizer.Tokenizer, error) {
			tokCalls.Add(1)
			<-release
			return tok, nil
		},
		LoadModel: func(context.Context, Config, tokenizer.Tokenizer) (generation.Model, error) {
			modelCalls.Add(1)
			return model, nil
		},
	}, nil)

	const workers = 32
	var wg sync.WaitGroup
	toks := make([]tokenizer.Tokenizer, workers)
	models := make([]generation.Model, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				toks[i], errs[i] = p.Tokenizer()
				return
			}
			models[i], errs[i] = p.Model()
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := tokCalls.Load(); got != 1 {
		t.Fatalf("tokenizer constructed %d times, want 1", got)
	}
	if got := modelCalls.Load(); got != 1 {
		t.Fatalf("model constructed %d times, want 1", got)
	}
	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("worker %d error = %v", i, errs[i])
		}
		if i%2 == 0 && toks[i] != tok {
			t.Fatalf("worker %d got a different tokenizer handle", i)
		}
		if i%2 == 1 && models[i] != generation.Model(model) {
			t.Fatalf("worker %d got a different model handle", i)
		}
	}
	if !p.Status().Ready() {
		t.Fatalf("Status() = %+v, want ready", p.Status())
	}
}

func TestProviderMemoizesFailure(t *testing.T) {
	t.Parallel()

	var tokCalls, modelCalls atomic.Int32
	p := New(Config{
		ModelID: "missing/model",
		LoadTokenizer: func(context.Context, Config) (tokenizer.Tokenizer, error) {
			tokCalls.Add(1)
			return nil, errors.New("no such model")
		},
		LoadModel: func(context.Context, Config, tokenizer.Tokenizer) (generation.Model, error) {
			modelCalls.Add(1)
			return &countingModel{}, nil
		},
	}, nil)

	if st := p.Status(); st.Tokenizer.State != StatePending || st.Model.State != StatePending {
		t.Fatalf("Status() before use = %+v", st)
	}

	for range 3 {
		if _, err := p.Tokenizer(); !errors.Is(err, ErrConstruction) {
			t.Fatalf("Tokenizer() error = %v, want ErrConstruction", err)
		}
		if _, err := p.Model(); !errors.Is(err, ErrConstruction) {
			t.Fatalf("Model() error = %v, want ErrConstruction", err)
		}
	}
	if got := tokCalls.Load(); got != 1 {
		t.Fatalf("tokenizer loader ran %d times, want 1", got)
	}
	if got := modelCalls.Load(); got != 0 {
		t.Fatalf("model loader ran %d times, want 0", got)
	}

	st := p.Status()
	if st.Tokenizer.State != StateFailed || st.Model.State != StateFailed {
		t.Fatalf("Status() = %+v, want both failed", st)
	}
	if !strings.Contains(st.Tokenizer.Error, "no such model") {
		t.Fatalf("Status().Tokenizer.Error = %q", st.Tokenizer.Error)
	}
	if err := p.Warm(context.Background()); !errors.Is(err, ErrConstruction) {
		t.Fatalf("Warm() error = %v, want ErrConstruction", err)
	}
}

func TestWarmCancelDoesNotPoisonConstruction(t *testing.T) {
	t.Parallel()

	tok := fixtureTokenizer(t)
	release := make(chan struct{})
	p := New(Config{
		LoadTokenizer: func(ctx context.Context, _ Config) (tokenizer.Tokenizer, error) {
			<-release
			return tok, ctx.Err()
		},
		LoadModel: func(context.Context, Config, tokenizer.Tokenizer) (generation.Model, error) {
			return &countingModel{}, nil
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Warm(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Warm() error = %v, want context.Canceled", err)
	}

	close(release)
	if _, err := p.Model(); err != nil {
		t.Fatalf("Model() after cancelled warm error = %v", err)
	}
}

func TestProviderCloseClosesBuiltModel(t *testing.T) {
	t.Parallel()

	model := &countingModel{}
	p := New(Config{
		LoadTokenizer: func(context.Context, Config) (tokenizer.Tokenizer, error) { return fixtureTokenizer(t), nil },
		LoadModel:     func(context.Context, Config, tokenizer.Tokenizer) (generation.Model, error) { return model, nil },
	}, nil)

	if err := p.Close(); err != nil {
		t.Fatalf("Close() before use error = %v", err)
	}
	if model.closed.Load() != 0 {
		t.Fatalf("Close() must not construct or close an unbuilt model")
	}

	p2 := New(Config{
		LoadTokenizer: func(context.Context, Config) (tokenizer.Tokenizer, error) { return fixtureTokenizer(t), nil },
		LoadModel:     func(context.Context, Config, tokenizer.Tokenizer) (generation.Model, error) { return model, nil },
	}, nil)
	if err := p2.Warm(context.Background()); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if err := p2.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if model.closed.Load() != 1 {
		t.Fatalf("model closed %d times, want 1", model.closed.Load())
	}
}

func TestCloseDuringConstructionClosesLateModel(t *testing.T) {
	t.Parallel()

	model := &countingModel{}
	entered := make(chan struct{})
	release := make(chan struct{})
	p := New(Config{
		LoadTokenizer: func(context.Context, Config) (tokenizer.Tokenizer, error) { return fixtureTokenizer(t), nil },
		LoadModel: func(context.Context, Config, tokenizer.Tokenizer) (generation.Model, error) {
			close(entered)
			<-release
			return model, nil
		},
	}, nil)

	warmed := make(chan error, 1)
	go func() { warmed <- p.Warm(context.Background()) }()
	<-entered

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	close(release)

	if err := <-warmed; !errors.Is(err, ErrClosed) {
		t.Fatalf("Warm() error = %v, want ErrClosed", err)
	}
	if got := model.closed.Load(); got != 1 {
		t.Fatalf("model closed %d times, want 1", got)
	}
	if _, err := p.Model(); !errors.Is(err, ErrConstruction) {
		t.Fatalf("Model() after Close error = %v, want ErrConstruction", err)
	}
	if st := p.Status(); st.Model.State != StateFailed {
		t.Fatalf("Status().Model = %+v, want failed", st.Model)
	}
}

func TestProviderBackendDefaultsToRemote(t *testing.T) {
	t.Parallel()

	p := New(Config{}, nil)
	if got := p.Backend(); got != generation.BackendRemote {
		t.Fatalf("Backend() = %q, want %q", got, generation.BackendRemote)
	}
	if got := p.Status().Backend; got != generation.BackendRemote {
		t.Fatalf("Status().Backend = %q", got)
	}
}

func TestDefaultLoadersFromModelsDir(t *testing.T) {
	t.Parallel()

	modelsDir := t.TempDir()
	dir := filepath.Join(modelsDir, "org", "tiny-bart")
	writeTokenizerFiles(t, dir)

	p := New(Config{
		ModelID:    "org/tiny-bart",
		ModelsDir:  modelsDir,
		Offline:    true,
		Hub:        &hub.Client{CacheDir: t.TempDir()},
		Generation: generation.Config{Backend: generation.BackendLead},
	}, nil)
	if err := p.Warm(context.Background()); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	tok, _ := p.Tokenizer()
	if tok.VocabSize() != 7 {
		t.Fatalf("VocabSize() = %d, want 7", tok.VocabSize())
	}
	if st := p.Status(); st.Backend != generation.BackendLead || st.ModelID != "org/tiny-bart" {
		t.Fatalf("Status() = %+v", st)
	}
}

func TestResolveDirOrder(t *testing.T) {
	t.Parallel()

	explicit := t.TempDir()
	writeTokenizerFiles(t, explicit)
	got, err := ResolveDir(context.Background(), Config{ModelID: explicit})
	if err != nil || got != explicit {
		t.Fatalf("ResolveDir(path) = %q, %v", got, err)
	}

	c := &hub.Client{CacheDir: t.TempDir()}
	snap := filepath.Join(c.CacheDir, "models--org--m", "snapshots", "main")
	writeTokenizerFiles(t, snap)
	got, err = ResolveDir(context.Background(), Config{ModelID: "org/m", ModelsDir: t.TempDir(), Hub: c, Offline: true})
	if err != nil || got != snap {
		t.Fatalf("ResolveDir(hub cache) = %q, %v, want %q", got, err, snap)
	}

	_, err = ResolveDir(context.Background(), Config{ModelID: "org/absent", Hub: c, Offline: true})
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Fatalf("ResolveDir(offline miss) error = %v", err)
	}
}

func TestResolveDirDownloads(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"vocab.json": fixtureVocab,
		"merges.txt": fixtureMerges,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/models/org/remote/revision/main":
			_, _ = w.Write([]byte(`{"sha":"c0ffee","siblings":[{"rfilename":"vocab.json"},{"rfilename":"merges.txt"}]}`))
		case strings.HasPrefix(r.URL.Path, "/org/remote/resolve/c0ffee/"):
			name := strings.TrimPrefix(r.URL.Path, "/org/remote/resolve/c0ffee/")
			body, ok := files[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("ETag", `"etag-`+name+`"`)
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := &hub.Client{BaseURL: srv.URL, CacheDir: t.TempDir()}
	tok, err := LoadTokenizer(context.Background(), Config{ModelID: "org/remote", Hub: c})
	if err != nil {
		t.Fatalf("LoadTokenizer() error = %v", err)
	}
	if tok.Specials().BOS != 0 || tok.Specials().EOS != 2 {
		t.Fatalf("Specials() = %+v", tok.Specials())
	}
	if _, ok := c.Snapshot("org/remote", ""); !ok {
		t.Fatalf("expected a cached snapshot after download")
	}
}

func writeTokenizerFiles(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for name, body := range map[string]string{
		tokenizer.FileVocab:  fixtureVocab,
		tokenizer.FileMerges: fixtureMerges,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}
