package tokenizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// gpt2Pattern is the GPT-2 pre-tokenizer regex without the `\s+(?!\S)`
// branch, which pretokenize emulates.
var gpt2Pattern = regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)

// maxCacheEntries bounds the per-word merge cache.
const maxCacheEntries = 1 << 16

type pair struct {
	a, b string
}

// BPETokenizer is a byte-level BPE tokenizer. It is immutable after
// loading apart from its internal merge cache.
type BPETokenizer struct {
	encoder map[string]int
	decoder []string
	ranks   map[pair]int
	byteEnc [256]string
	byteDec map[rune]byte
	ids     SpecialIDs
	special map[int]bool
	splitOn []string
	pattern *regexp.Regexp
	mu      sync.RWMutex
	cache   map[string][]string
}

func newBPE(vocab map[string]int, merges []pair, added map[string]int, specials SpecialTokens) (*BPETokenizer, error) {
	if len(vocab) == 0 {
		return nil, fmt.Errorf("tokenizer: empty vocabulary")
	}
	t := &BPETokenizer{
		encoder: make(map[string]int, len(vocab)+len(added)),
		ranks:   make(map[pair]int, len(merges)),
		byteDec: make(map[rune]byte, 256),
		special: make(map[int]bool),
		pattern: gpt2Pattern,
		cache:   make(map[string][]string),
	}

	maxID := -1
	for tok, id := range vocab {
		t.encoder[tok] = id
		maxID = max(maxID, id)
	}
	for tok, id := range added {
		t.encoder[tok] = id
		maxID = max(maxID, id)
	}
	t.decoder = make([]string, maxID+1)
	for tok, id := range t.encoder {
		if id < 0 {
			return nil, fmt.Errorf("tokenizer: negative id %d for %q", id, tok)
		}
		t.decoder[id] = tok
	}

	for i, p := range merges {
		if _, ok := t.ranks[p]; !ok {
			t.ranks[p] = i
		}
	}

	for b, r := range byteRunes() {
		t.byteEnc[b] = string(r)
		t.byteDec[r] = byte(b)
	}

	lookup := func(s string) int {
		if s == "" {
			return -1
		}
		if id, ok := t.encoder[s]; ok {
			return id
		}
		return -1
	}
	t.ids = SpecialIDs{
		BOS:  lookup(specials.BOS),
		EOS:  lookup(specials.EOS),
		PAD:  lookup(specials.PAD),
		UNK:  lookup(specials.UNK),
		Mask: lookup(specials.Mask),
	}
	for _, id := range []int{t.ids.BOS, t.ids.EOS, t.ids.PAD, t.ids.UNK, t.ids.Mask} {
		if id >= 0 {
			t.special[id] = true
		}
	}
	for tok, id := range added {
		t.special[id] = true
		t.splitOn = append(t.splitOn, tok)
	}
	for _, s := range []string{specials.BOS, specials.EOS, specials.PAD, specials.UNK, specials.Mask} {
		if _, dup := added[s]; s != "" && !dup && lookup(s) >= 0 {
			t.splitOn = append(t.splitOn, s)
		}
	}
	sort.Slice(t.splitOn, func(i, j int) bool {
		if len(t.splitOn[i]) != len(t.splitOn[j]) {
			return len(t.splitOn[i]) > len(t.splitOn[j])
		}
		return t.splitOn[i] < t.splitOn[j]
	})
	return t, nil
}

func (t *BPETokenizer) Encode(text string, opts EncodeOptions) (Encoding, error) {
	content, err := t.encodeContent(text)
	if err != nil {
		return Encoding{}, err
	}

	var prefix, suffix []int
	if opts.AddSpecialTokens {
		if t.ids.BOS >= 0 {
			prefix = []int{t.ids.BOS}
		}
		if t.ids.EOS >= 0 {
			suffix = []int{t.ids.EOS}
		}
	}
	reserved := len(prefix) + len(suffix)

	var enc Encoding
	if opts.MaxLength > 0 && len(content)+reserved > opts.MaxLength {
		if !opts.Truncation {
			return Encoding{}, fmt.Errorf("%w: %d tokens, max %d", ErrTooLong, len(content)+reserved, opts.MaxLength)
		}
		keep := max(opts.MaxLength-reserved, 0)
		enc.Truncated = true
		enc.Overflow = len(content) - keep
		content = content[:keep]
	}

	ids := make([]int, 0, len(content)+reserved)
	ids = append(ids, prefix...)
	ids = append(ids, content...)
	ids = append(ids, suffix...)
	mask := make([]int, len(ids))
	for i := range mask {
		mask[i] = 1
	}

	if opts.Padding == PadMaxLength && opts.MaxLength > len(ids) {
		if t.ids.PAD < 0 {
			return Encoding{}, fmt.Errorf("tokenizer: padding requested but no pad token")
		}
		for len(ids) < opts.MaxLength {
			ids = append(ids, t.ids.PAD)
			mask = append(mask, 0)
		}
	}

	enc.IDs = ids
	enc.AttentionMask = mask
	return enc, nil
}

func (t *BPETokenizer) Count(text string) (int, error) {
	ids, err := t.encodeContent(text)
	return len(ids), err
}

func (t *BPETokenizer) encodeContent(text string) ([]int, error) {
	var ids []int
	for _, part := range splitSpecials(text, t.splitOn) {
		if part.special {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		for _, word := range pretokenize(t.pattern, part.text) {
			for _, piece := range t.bpe(t.byteEncode(word)) {
				id, ok := t.encoder[piece]
				if !ok {
					if t.ids.UNK < 0 {
						return nil, fmt.Errorf("tokenizer: unknown piece %q", piece)
					}
					id = t.ids.UNK
				}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (t *BPETokenizer) Decode(ids []int, opts DecodeOptions) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
		}
		if t.special[id] {
			if !opts.SkipSpecialTokens {
				b = append(b, t.decoder[id]...)
			}
			continue
		}
		for _, r := range t.decoder[id] {
			if by, ok := t.byteDec[r]; ok {
				b = append(b, by)
			} else {
				b = utf8.AppendRune(b, r)
			}
		}
	}
	out := strings.ToValidUTF8(string(b), "�")
	if opts.CleanUpSpaces {
		out = cleanUpSpaces(out)
	}
	return out, nil
}

func (t *BPETokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *BPETokenizer) Specials() SpecialIDs { return t.ids }

func (t *BPETokenizer) VocabSize() int { return len(t.decoder) }

// IsSpecial reports whether id is a special or added control token.
func (t *BPETokenizer) IsSpecial(id int) bool { return t.special[id] }

func (t *BPETokenizer) byteEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		b.WriteString(t.byteEnc[s[i]])
	}
	return b.String()
}

func (t *BPETokenizer) bpe(word string) []string {
	t.mu.RLock()
	cached, ok := t.cache[word]
	t.mu.RUnlock()
	if ok {
		return cached
	}

	parts := make([]string, 0, utf8.RuneCountInString(word))
	for _, r := range word {
		parts = append(parts, string(r))
	}
	for len(parts) > 1 {
		best, bestRank := -1, int(^uint(0)>>1)
		for i := 0; i+1 < len(parts); i++ {
			if rank, ok := t.ranks[pair{parts[i], parts[i+1]}]; ok && rank < bestRank {
				best, bestRank = i, rank
			}
		}
		if best < 0 {
			break
		}
		parts = mergeAll(parts, pair{parts[best], parts[best+1]})
	}

	t.mu.Lock()
	if len(t.cache) >= maxCacheEntries {
		clear(t.cache)
	}
	t.cache[word] = parts
	t.mu.Unlock()
	return parts
}

func mergeAll(parts []string, p pair) []string {
	out := make([]string, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		if i+1 < len(parts) && parts[i] == p.a && parts[i+1] == p.b {
			out = append(out, p.a+p.b)
			i++
			continue
		}
		out = append(out, parts[i])
	}
	return out
}

// pretokenize splits s with pat. A whitespace run followed by more text
// gives up its last character so the next word keeps its leading space,
// matching the `\s+(?!\S)` branch of the GPT-2 pattern.
func pretokenize(pat *regexp.Regexp, s string) []string {
	var out []string
	for pos := 0; pos < len(s); {
		loc := pat.FindStringIndex(s[pos:])
		if loc == nil || loc[1] == 0 {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end < len(s) && isSpace(s[start:end]) {
			_, size := utf8.DecodeLastRuneInString(s[start:end])
			if end-size > start {
				end -= size
			}
		}
		out = append(out, s[start:end])
		pos = end
	}
	return out
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return s != ""
}

// byteRunes is the reversible byte to printable-rune table of byte-level
// BPE: printable Latin-1 bytes map to themselves, the rest to 256+n.
func byteRunes() [256]rune {
	var table [256]rune
	n := 0
	for b := 0; b < 256; b++ {
		switch {
		case b >= '!' && b <= '~', b >= 0xA1 && b <= 0xAC, b >= 0xAE && b <= 0xFF:
			table[b] = rune(b)
		default:
			table[b] = rune(256 + n)
			n++
		}
	}
	return table
}

type textPart struct {
	text    string
	special bool
}

// splitSpecials cuts text around literal occurrences of special tokens.
// specials must be ordered longest first.
func splitSpecials(text string, specials []string) []textPart {
	if !containsAny(text, specials) {
		return []textPart{{text: text}}
	}
	var parts []textPart
	last := 0
	for i := 0; i < len(text); {
		match := ""
		for _, sp := range specials {
			if strings.HasPrefix(text[i:], sp) {
				match = sp
				break
			}
		}
		if match == "" {
			i++
			continue
		}
		if i > last {
			parts = append(parts, textPart{text: text[last:i]})
		}
		parts = append(parts, textPart{text: match, special: true})
		i += len(match)
		last = i
	}
	if last < len(text) {
		parts = append(parts, textPart{text: text[last:]})
	}
	return parts
}

func containsAny(text string, subs []string) bool {
	for _, s := range subs {
		if s != "" && strings.Contains(text, s) {
			return true
		}
	}
	return false
}

var spaceCleaner = strings.NewReplacer(
	" .", ".",
	" ?", "?",
	" !", "!",
	" ,", ",",
	" ' ", "'",
	" n't", "n't",
	" 'm", "'m",
	" 's", "'s",
	" 've", "'ve",
	" 're", "'re",
)

// cleanUpSpaces removes the spaces tokenization leaves before punctuation
// and English contractions.
func cleanUpSpaces(s string) string {
	return spaceCleaner.Replace(s)
}
