package summarize

import "github.com/samcharles93/precis/internal/tokenizer"

// Limits bound what a request may ask for. They are checked before any
// tokenizer or model call.
type Limits struct {
	MinBeams         int `json:"min_beams"`
	MaxBeams         int `json:"max_beams"`
	MaxSummaryTokens int `json:"max_summary_tokens"`
	MaxInputTokens   int `json:"max_input_tokens"`
	// MaxInputChars caps the pasted text; 0 disables the check.
	MaxInputChars int `json:"max_input_chars"`
}

func DefaultLimits() Limits {
	return Limits{
		MinBeams:         1,
		MaxBeams:         10,
		MaxSummaryTokens: tokenizer.DefaultMaxLength,
		MaxInputTokens:   tokenizer.DefaultMaxLength,
		MaxInputChars:    16384,
	}
}

type Range struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// Defaults are the form values and slider ranges offered by the UI.
type Defaults struct {
	NumBeams  Range `json:"num_beams"`
	MinLength Range `json:"min_length"`
	MaxLength Range `json:"max_length"`
}

func DefaultDefaults() Defaults {
	return Defaults{
		NumBeams:  Range{Min: 1, Max: 10, Default: 2},
		MinLength: Range{Min: 1, Max: 256, Default: 30},
		MaxLength: Range{Min: 30, Max: 512, Default: 256},
	}
}

// Request builds a request for text. Nil knobs take the defaults; set
// ones, zero included, are kept for validation.
func (d Defaults) Request(text string, numBeams, minLength, maxLength *int) Request {
	return Request{
		Text:      text,
		NumBeams:  orDefault(numBeams, d.NumBeams.Default),
		MinLength: orDefault(minLength, d.MinLength.Default),
		MaxLength: orDefault(maxLength, d.MaxLength.Default),
	}
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
