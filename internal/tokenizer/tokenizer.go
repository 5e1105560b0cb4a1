// Package tokenizer implements the byte-level BPE tokenizer used by BART
// style summarization models, loaded from Hugging Face tokenizer files.
package tokenizer

import "errors"

// DefaultMaxLength is the positional limit of BART encoders.
const DefaultMaxLength = 1024

var (
	// ErrTooLong is returned by Encode when the input does not fit
	// MaxLength and truncation is off.
	ErrTooLong = errors.New("input exceeds max length")
	// ErrUnknownID is returned by Decode for ids outside the vocabulary.
	ErrUnknownID = errors.New("token id out of range")
)

// Tokenizer converts text to token ids and back. Implementations are safe
// for concurrent use.
type Tokenizer interface {
	Encode(text string, opts EncodeOptions) (Encoding, error)
	Decode(ids []int, opts DecodeOptions) (string, error)
	// Count returns the number of content tokens in text, special tokens
	// excluded.
	Count(text string) (int, error)
	TokenString(id int) string
	Specials() SpecialIDs
	VocabSize() int
}

type Padding int

const (
	PadNone Padding = iota
	// PadLongest pads to the longest sequence in the batch; for a single
	// sequence it is a no-op.
	PadLongest
	PadMaxLength
)

type EncodeOptions struct {
	MaxLength        int
	Truncation       bool
	Padding          Padding
	AddSpecialTokens bool
}

// SummaryEncodeOptions are the options used for summarization input.
func SummaryEncodeOptions() EncodeOptions {
	return EncodeOptions{
		MaxLength:        DefaultMaxLength,
		Truncation:       true,
		Padding:          PadLongest,
		AddSpecialTokens: true,
	}
}

type Encoding struct {
	IDs           []int
	AttentionMask []int
	// Truncated reports whether content tokens were dropped to fit
	// MaxLength; Overflow is how many.
	Truncated bool
	Overflow  int
}

type DecodeOptions struct {
	SkipSpecialTokens bool
	CleanUpSpaces     bool
}

// SpecialTokens names the special token strings of a model.
type SpecialTokens struct {
	BOS  string
	EOS  string
	PAD  string
	UNK  string
	Mask string
}

// BARTSpecialTokens are used when the tokenizer files do not say otherwise.
var BARTSpecialTokens = SpecialTokens{
	BOS:  "<s>",
	EOS:  "</s>",
	PAD:  "<pad>",
	UNK:  "<unk>",
	Mask: "<mask>",
}

// SpecialIDs holds resolved special token ids; -1 means absent.
type SpecialIDs struct {
	BOS  int
	EOS  int
	PAD  int
	UNK  int
	Mask int
}
