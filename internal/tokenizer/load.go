package tokenizer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

// Files a tokenizer directory may contain. Either TokenizerJSON or the
// Vocab/Merges pair is required; the configs are optional.
const (
	FileTokenizerJSON   = "tokenizer.json"
	FileVocab           = "vocab.json"
	FileMerges          = "merges.txt"
	FileTokenizerConfig = "tokenizer_config.json"
	FileSpecialTokens   = "special_tokens_map.json"
)

type tokenizerJSON struct {
	Model struct {
		Type     string          `json:"type"`
		Vocab    map[string]int  `json:"vocab"`
		Merges   json.RawMessage `json:"merges"`
		UnkToken string          `json:"unk_token"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// LoadDir loads a tokenizer from a Hugging Face model directory.
func LoadDir(dir string) (*BPETokenizer, error) {
	cfg, err := readSpecialTokens(dir)
	if err != nil {
		return nil, err
	}

	tokJSON, err := os.ReadFile(filepath.Join(dir, FileTokenizerJSON))
	switch {
	case err == nil:
		return loadTokenizerJSON(tokJSON, cfg)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("tokenizer: read %s: %w", FileTokenizerJSON, err)
	}

	vocab, err := os.ReadFile(filepath.Join(dir, FileVocab))
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %s has neither %s nor %s: %w", dir, FileTokenizerJSON, FileVocab, err)
	}
	merges, err := os.ReadFile(filepath.Join(dir, FileMerges))
	if err != nil {
		return nil, fmt.Errorf("tokenizer: read %s: %w", FileMerges, err)
	}
	return LoadFiles(vocab, merges, cfg)
}

// LoadJSON builds a tokenizer from tokenizer.json bytes and an optional
// tokenizer_config.json.
func LoadJSON(tokJSON, tokConfig []byte) (*BPETokenizer, error) {
	cfg := BARTSpecialTokens
	if len(tokConfig) > 0 {
		if err := mergeSpecialTokens(&cfg, tokConfig); err != nil {
			return nil, err
		}
	}
	return loadTokenizerJSON(tokJSON, cfg)
}

// LoadFiles builds a tokenizer from the classic vocab.json / merges.txt
// pair.
func LoadFiles(vocabJSON, mergesTxt []byte, specials SpecialTokens) (*BPETokenizer, error) {
	var vocab map[string]int
	if err := json.Unmarshal(vocabJSON, &vocab); err != nil {
		return nil, fmt.Errorf("tokenizer: parse %s: %w", FileVocab, err)
	}
	merges, err := parseMergesText(mergesTxt)
	if err != nil {
		return nil, err
	}
	return newBPE(vocab, merges, nil, specials)
}

func loadTokenizerJSON(raw []byte, specials SpecialTokens) (*BPETokenizer, error) {
	var tj tokenizerJSON
	if err := json.Unmarshal(raw, &tj); err != nil {
		return nil, fmt.Errorf("tokenizer: parse %s: %w", FileTokenizerJSON, err)
	}
	if !strings.EqualFold(tj.Model.Type, "BPE") {
		return nil, fmt.Errorf("tokenizer: unsupported model type %q", tj.Model.Type)
	}
	merges, err := parseMergesJSON(tj.Model.Merges)
	if err != nil {
		return nil, err
	}
	if tj.Model.UnkToken != "" {
		specials.UNK = tj.Model.UnkToken
	}
	added := make(map[string]int)
	for _, at := range tj.AddedTokens {
		if at.Special {
			added[at.Content] = at.ID
		}
	}
	return newBPE(tj.Model.Vocab, merges, added, specials)
}

// parseMergesJSON accepts both merge encodings found in tokenizer.json:
// "a b" strings and ["a", "b"] pairs.
func parseMergesJSON(raw json.RawMessage) ([]pair, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("tokenizer: parse merges: %w", err)
	}
	out := make([]pair, 0, len(items))
	for i, item := range items {
		var line string
		if err := json.Unmarshal(item, &line); err == nil {
			a, b, ok := strings.Cut(line, " ")
			if !ok {
				return nil, fmt.Errorf("tokenizer: merge %d: malformed %q", i, line)
			}
			out = append(out, pair{a, b})
			continue
		}
		var p []string
		if err := json.Unmarshal(item, &p); err != nil || len(p) != 2 {
			return nil, fmt.Errorf("tokenizer: merge %d: expected string or pair", i)
		}
		out = append(out, pair{p[0], p[1]})
	}
	return out, nil
}

func parseMergesText(raw []byte) ([]pair, error) {
	var out []pair
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		a, b, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("tokenizer: %s line %d: malformed %q", FileMerges, n, line)
		}
		out = append(out, pair{a, b})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tokenizer: read %s: %w", FileMerges, err)
	}
	return out, nil
}

func readSpecialTokens(dir string) (SpecialTokens, error) {
	cfg := BARTSpecialTokens
	for _, name := range []string{FileSpecialTokens, FileTokenizerConfig} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return cfg, fmt.Errorf("tokenizer: read %s: %w", name, err)
		}
		if err := mergeSpecialTokens(&cfg, raw); err != nil {
			return cfg, fmt.Errorf("tokenizer: %s: %w", name, err)
		}
	}
	return cfg, nil
}

// mergeSpecialTokens overlays the *_token entries of a tokenizer config.
// Values are either plain strings or AddedToken objects with "content".
func mergeSpecialTokens(cfg *SpecialTokens, raw []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse special tokens: %w", err)
	}
	fields := map[string]*string{
		"bos_token":  &cfg.BOS,
		"eos_token":  &cfg.EOS,
		"pad_token":  &cfg.PAD,
		"unk_token":  &cfg.UNK,
		"mask_token": &cfg.Mask,
	}
	for key, dst := range fields {
		v, ok := doc[key]
		if !ok || string(v) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			*dst = s
			continue
		}
		var obj struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(v, &obj); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = obj.Content
	}
	return nil
}
