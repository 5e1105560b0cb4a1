package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/precis/internal/generation"
	"github.com/samcharles93/precis/internal/hub"
	"github.com/samcharles93/precis/internal/tokenizer"
)

// TokenizerFiles are fetched from the hub; a model ships either
// tokenizer.json or the vocab/merges pair.
var TokenizerFiles = []hub.File{
	{Name: tokenizer.FileTokenizerJSON, Optional: true},
	{Name: tokenizer.FileVocab, Optional: true},
	{Name: tokenizer.FileMerges, Optional: true},
	{Name: tokenizer.FileTokenizerConfig, Optional: true},
	{Name: tokenizer.FileSpecialTokens, Optional: true},
}

// LoadTokenizer is the default TokenizerLoader.
func LoadTokenizer(ctx context.Context, cfg Config) (tokenizer.Tokenizer, error) {
	dir, err := ResolveDir(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return tokenizer.LoadDir(dir)
}

// LoadModel is the default ModelLoader.
func LoadModel(ctx context.Context, cfg Config, tok tokenizer.Tokenizer) (generation.Model, error) {
	return generation.Open(ctx, cfg.Generation, tok)
}

// ResolveDir finds the directory holding the tokenizer files for
// cfg.ModelID: an explicit path, then <ModelsDir>/<ModelID>, then the hub
// cache, then a hub download unless cfg.Offline.
func ResolveDir(ctx context.Context, cfg Config) (string, error) {
	id := strings.TrimSpace(cfg.ModelID)
	if id == "" {
		return "", errors.New("model id is empty")
	}
	var searched []string

	if looksLikePath(id) {
		if isDir(id) {
			return filepath.Clean(id), nil
		}
		return "", fmt.Errorf("model directory %s does not exist", id)
	}

	if dir := strings.TrimSpace(cfg.ModelsDir); dir != "" {
		cand := filepath.Join(dir, filepath.FromSlash(id))
		if hasTokenizerFiles(cand) {
			return cand, nil
		}
		searched = append(searched, cand)
	}

	if cfg.Hub != nil {
		if snap, ok := cfg.Hub.Snapshot(id, cfg.Revision); ok && hasTokenizerFiles(snap) {
			return snap, nil
		}
		searched = append(searched, "hub cache "+cfg.Hub.CacheDir)

		if !cfg.Offline {
			dir, err := cfg.Hub.Download(ctx, id, cfg.Revision, TokenizerFiles)
			if err != nil {
				return "", fmt.Errorf("download %s: %w", id, err)
			}
			return dir, nil
		}
	}

	return "", fmt.Errorf("tokenizer files for %s not found (offline; searched %s)", id, strings.Join(searched, ", "))
}

func looksLikePath(v string) bool {
	if strings.ContainsRune(v, filepath.Separator) && (filepath.IsAbs(v) || strings.HasPrefix(v, ".")) {
		return true
	}
	return strings.Count(v, "/") > 1 || isDir(v)
}

func hasTokenizerFiles(dir string) bool {
	if fileExists(filepath.Join(dir, tokenizer.FileTokenizerJSON)) {
		return true
	}
	return fileExists(filepath.Join(dir, tokenizer.FileVocab)) && fileExists(filepath.Join(dir, tokenizer.FileMerges))
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
