package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/samcharles93/precis/internal/tokenizer"
)

// leadModel is a deterministic extractive baseline: the summary is the
// leading sentences of the input. It needs no network and produces
// BART-shaped output (</s> <s> ... </s>), which makes it the offline
// default and the backend tests run against.
type leadModel struct {
	tok tokenizer.Tokenizer
}

func newLead(tok tokenizer.Tokenizer) (*leadModel, error) {
	if tok == nil {
		return nil, fmt.Errorf("generation: lead backend needs a tokenizer")
	}
	return &leadModel{tok: tok}, nil
}

func (m *leadModel) Generate(ctx context.Context, input tokenizer.Encoding, opts Options) ([]int, error) {
	sp := m.tok.Specials()
	var head, tail []int
	if sp.EOS >= 0 {
		head = append(head, sp.EOS)
		tail = append(tail, sp.EOS)
	}
	if sp.BOS >= 0 {
		head = append(head, sp.BOS)
	}
	budget := opts.MaxLength - len(head) - len(tail)
	if budget <= 0 {
		return nil, fmt.Errorf("generation: max_length %d leaves no room for content", opts.MaxLength)
	}

	out := append([]int(nil), head...)
	for _, sentence := range m.sentences(input, sp) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		room := budget - (len(out) - len(head))
		if len(sentence) > room {
			if len(out) == len(head) {
				out = append(out, sentence[:room]...)
			}
			break
		}
		out = append(out, sentence...)
		if opts.EarlyStopping && len(out)+len(tail) >= opts.MinLength {
			break
		}
	}
	return append(out, tail...), nil
}

// sentences splits the content ids of input at sentence-final pieces.
func (m *leadModel) sentences(input tokenizer.Encoding, sp tokenizer.SpecialIDs) [][]int {
	var (
		out     [][]int
		current []int
	)
	for i, id := range input.IDs {
		if i < len(input.AttentionMask) && input.AttentionMask[i] == 0 {
			continue
		}
		if id == sp.BOS || id == sp.EOS || id == sp.PAD || id == sp.Mask {
			continue
		}
		current = append(current, id)
		if endsSentence(m.tok.TokenString(id)) {
			out = append(out, current)
			current = nil
		}
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

func endsSentence(piece string) bool {
	piece = strings.TrimRight(piece, "\"'")
	return strings.HasSuffix(piece, ".") || strings.HasSuffix(piece, "!") || strings.HasSuffix(piece, "?")
}

func (m *leadModel) Close() error { return nil }
