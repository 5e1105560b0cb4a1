// Package hub resolves model files from the Hugging Face hub and its
// on-disk cache layout (models--<org>--<name>/snapshots/<commit>).
// Downloads go through github.com/gomlx/go-huggingface; this package adds
// optional files, offline snapshot lookup and the refs/<revision> entries
// that let a branch name resolve without the network.
package hub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	gohub "github.com/gomlx/go-huggingface/hub"
)

const (
	DefaultRevision = "main"

	envHubCache = "HF_HUB_CACHE"
	envHome     = "HF_HOME"
	envToken    = "HF_TOKEN"
)

var ErrNotFound = errors.New("hub: file not found")

// File is one file of a repository. Optional files may be missing upstream.
type File struct {
	Name     string
	Optional bool
}

type Client struct {
	// BaseURL overrides the hub endpoint; empty uses $HF_ENDPOINT, else
	// https://huggingface.co.
	BaseURL  string
	CacheDir string
	Token    string
}

// NewClient returns a client configured from HF_HUB_CACHE, HF_HOME and
// HF_TOKEN.
func NewClient() *Client {
	return &Client{
		CacheDir: DefaultCacheDir(),
		Token:    strings.TrimSpace(os.Getenv(envToken)),
	}
}

// DefaultCacheDir is $HF_HUB_CACHE, else $HF_HOME/hub, else the
// huggingface_hub default (~/.cache/huggingface/hub).
func DefaultCacheDir() string {
	if dir := strings.TrimSpace(os.Getenv(envHubCache)); dir != "" {
		return dir
	}
	if home := strings.TrimSpace(os.Getenv(envHome)); home != "" {
		return filepath.Join(home, "hub")
	}
	return gohub.DefaultCacheDir()
}

func (c *Client) repoDir(repoID string) string {
	return filepath.Join(c.CacheDir, string(gohub.RepoTypeModel)+gohub.RepoIdSeparator+strings.ReplaceAll(repoID, "/", gohub.RepoIdSeparator))
}

// Snapshot finds the local snapshot directory for repoID at revision. A
// refs/<revision> file, when present, maps a branch name to its commit.
func (c *Client) Snapshot(repoID, revision string) (string, bool) {
	if validateRepoID(repoID) != nil || c.CacheDir == "" {
		return "", false
	}
	if revision == "" {
		revision = DefaultRevision
	}
	root := c.repoDir(repoID)
	candidates := make([]string, 0, 2)
	if ref, err := os.ReadFile(filepath.Join(root, "refs", revision)); err == nil {
		if commit := strings.TrimSpace(string(ref)); commit != "" {
			candidates = append(candidates, commit)
		}
	}
	candidates = append(candidates, revision)
	for _, rev := range candidates {
		dir := filepath.Join(root, "snapshots", rev)
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir, true
		}
	}
	return "", false
}

func (c *Client) repo(repoID, revision string) *gohub.Repo {
	r := gohub.New(repoID).
		WithCacheDir(c.CacheDir).
		WithRevision(revision).
		WithAuth(c.Token).
		WithProgressBar(false)
	if base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); base != "" {
		r = r.WithEndpoint(base)
	}
	r.Verbosity = 0
	return r
}

// Download fetches files into the snapshot directory for repoID at
// revision and returns that directory. Files the repository does not list
// are skipped when optional and fail the download otherwise.
func (c *Client) Download(ctx context.Context, repoID, revision string, files []File) (string, error) {
	if err := validateRepoID(repoID); err != nil {
		return "", err
	}
	if c.CacheDir == "" {
		return "", errors.New("hub: cache directory is not set")
	}
	if revision == "" {
		revision = DefaultRevision
	}
	for _, f := range files {
		if err := validateFileName(f.Name); err != nil {
			return "", err
		}
	}

	repo := c.repo(repoID, revision)
	if err := repo.DownloadInfo(true); err != nil {
		return "", fmt.Errorf("hub: %s@%s: %w", repoID, revision, err)
	}

	var snapshot string
	for _, f := range files {
		if !repo.HasFile(f.Name) {
			if f.Optional {
				continue
			}
			return "", fmt.Errorf("%w: %s/%s@%s", ErrNotFound, repoID, f.Name, revision)
		}
		// One file per call: the library's multi-file download shares
		// counters across goroutines.
		p, err := repo.DownloadFileCtx(ctx, f.Name)
		if err != nil {
			return "", fmt.Errorf("hub: fetch %s: %w", f.Name, err)
		}
		if snapshot == "" {
			snapshot = snapshotRoot(p, f.Name)
		}
	}
	if snapshot == "" {
		return "", fmt.Errorf("%w: none of the requested files exist in %s@%s", ErrNotFound, repoID, revision)
	}

	if commit := repo.Info().CommitHash; commit != "" && commit != revision {
		if err := c.writeRef(repoID, revision, commit); err != nil {
			return "", fmt.Errorf("hub: record %s ref: %w", revision, err)
		}
	}
	return snapshot, nil
}

// snapshotRoot strips the repository-relative name from a downloaded path.
func snapshotRoot(downloaded, name string) string {
	dir := filepath.Dir(downloaded)
	for range strings.Count(path.Clean(name), "/") {
		dir = filepath.Dir(dir)
	}
	return dir
}

func (c *Client) writeRef(repoID, revision, commit string) error {
	dst := filepath.Join(c.repoDir(repoID), "refs", filepath.FromSlash(revision))
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(commit); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func validateRepoID(repoID string) error {
	parts := strings.Split(repoID, "/")
	if repoID == "" || len(parts) > 2 {
		return fmt.Errorf("hub: invalid repository id %q", repoID)
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return fmt.Errorf("hub: invalid repository id %q", repoID)
		}
	}
	return nil
}

func validateFileName(name string) error {
	clean := path.Clean(name)
	if name == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("hub: invalid file name %q", name)
	}
	return nil
}
