package hub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
)

const testCommit = "abc123"

type fakeHub struct {
	*httptest.Server
	mu   sync.Mutex
	auth []string
}

func (h *fakeHub) authHeaders() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.auth...)
}

// newFakeHub serves the repository info API, file metadata (HEAD) and file
// bodies (GET) for files at testCommit.
func newFakeHub(t *testing.T, files map[string]string) *fakeHub {
	t.Helper()
	h := &fakeHub{}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.auth = append(h.auth, r.Header.Get("Authorization"))
		h.mu.Unlock()

		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			type sibling struct {
				Name string `json:"rfilename"`
			}
			info := struct {
				SHA      string    `json:"sha"`
				Siblings []sibling `json:"siblings"`
			}{SHA: testCommit}
			names := make([]string, 0, len(files))
			for name := range files {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				info.Siblings = append(info.Siblings, sibling{Name: name})
			}
			_ = json.NewEncoder(w).Encode(info)
			return
		}

		marker := "/resolve/" + testCommit + "/"
		i := strings.Index(r.URL.Path, marker)
		if i < 0 {
			http.NotFound(w, r)
			return
		}
		body, ok := files[r.URL.Path[i+len(marker):]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		sum := sha256.Sum256([]byte(body))
		w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
		w.Header().Set("X-Repo-Commit", testCommit)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(h.Close)
	return h
}

func TestDownloadAndSnapshot(t *testing.T) {
	t.Parallel()

	srv := newFakeHub(t, map[string]string{
		"vocab.json": `{"a":0}`,
		"merges.txt": "#version: 0.2\n",
	})
	c := &Client{BaseURL: srv.URL, CacheDir: t.TempDir(), Token: "tok"}

	if _, ok := c.Snapshot("org/model", ""); ok {
		t.Fatalf("expected no snapshot before download")
	}

	dir, err := c.Download(context.Background(), "org/model", "", []File{
		{Name: "vocab.json"},
		{Name: "merges.txt"},
		{Name: "tokenizer_config.json", Optional: true},
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	want := filepath.Join(c.CacheDir, "models--org--model", "snapshots", testCommit)
	if dir != want {
		t.Fatalf("Download() dir = %q, want %q", dir, want)
	}
	for name, body := range map[string]string{"vocab.json": `{"a":0}`, "merges.txt": "#version: 0.2\n"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || string(raw) != body {
			t.Fatalf("%s = %q, %v", name, raw, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "tokenizer_config.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("optional missing file should not be written, stat err = %v", err)
	}

	ref, err := os.ReadFile(filepath.Join(c.CacheDir, "models--org--model", "refs", "main"))
	if err != nil || string(ref) != testCommit {
		t.Fatalf("refs/main = %q, %v", ref, err)
	}
	got, ok := c.Snapshot("org/model", "main")
	if !ok || got != want {
		t.Fatalf("Snapshot() = %q, %v, want %q", got, ok, want)
	}
	for _, h := range srv.authHeaders() {
		if h != "Bearer tok" {
			t.Fatalf("Authorization = %q", h)
		}
	}
}

func TestDownloadRequiredMissing(t *testing.T) {
	t.Parallel()

	srv := newFakeHub(t, map[string]string{"vocab.json": `{}`})
	c := &Client{BaseURL: srv.URL, CacheDir: t.TempDir()}

	_, err := c.Download(context.Background(), "org/model", "main", []File{{Name: "vocab.json"}, {Name: "merges.txt"}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = c.Download(context.Background(), "org/model", "main", []File{{Name: "tokenizer.json", Optional: true}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when nothing was fetched, got %v", err)
	}
}

func TestDownloadUnknownRepository(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c := &Client{BaseURL: srv.URL, CacheDir: t.TempDir()}

	if _, err := c.Download(context.Background(), "org/absent", "", []File{{Name: "vocab.json"}}); err == nil {
		t.Fatalf("Download() error = nil for a repository the hub does not know")
	}
}

func TestSnapshotWithoutRefs(t *testing.T) {
	t.Parallel()

	c := &Client{CacheDir: t.TempDir()}
	dir := filepath.Join(c.CacheDir, "models--facebook--bart-large-cnn", "snapshots", "main")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, ok := c.Snapshot("facebook/bart-large-cnn", "")
	if !ok || got != dir {
		t.Fatalf("Snapshot() = %q, %v, want %q", got, ok, dir)
	}
}

func TestInvalidNames(t *testing.T) {
	t.Parallel()

	c := &Client{CacheDir: t.TempDir()}
	for _, id := range []string{"", "a/b/c", "../x", "org/.."} {
		if _, err := c.Download(context.Background(), id, "", []File{{Name: "vocab.json"}}); err == nil {
			t.Errorf("Download(%q) expected error", id)
		}
		if _, ok := c.Snapshot(id, ""); ok {
			t.Errorf("Snapshot(%q) expected miss", id)
		}
	}
	if _, err := c.Download(context.Background(), "org/model", "", []File{{Name: "../../etc/passwd"}}); err == nil {
		t.Fatalf("expected error for escaping file name")
	}
}

func TestSnapshotRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join("cache", "snapshots", testCommit)
	for _, name := range []string{"vocab.json", "onnx/model.onnx"} {
		if got := snapshotRoot(filepath.Join(root, filepath.FromSlash(name)), name); got != root {
			t.Fatalf("snapshotRoot(%q) = %q, want %q", name, got, root)
		}
	}
}

func TestDefaultCacheDir(t *testing.T) {
	t.Setenv(envHubCache, "/tmp/hf-cache")
	t.Setenv(envHome, "/tmp/hf-home")
	if got := DefaultCacheDir(); got != "/tmp/hf-cache" {
		t.Fatalf("DefaultCacheDir() = %q", got)
	}
	t.Setenv(envHubCache, "")
	if got, want := DefaultCacheDir(), filepath.Join("/tmp/hf-home", "hub"); got != want {
		t.Fatalf("DefaultCacheDir() = %q, want %q", got, want)
	}
	t.Setenv(envHome, "")
	if got := DefaultCacheDir(); !strings.HasSuffix(got, filepath.Join("huggingface", "hub")) {
		t.Fatalf("DefaultCacheDir() = %q, want the huggingface_hub default", got)
	}
}
