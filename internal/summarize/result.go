package summarize

import "time"

// Outcome is the variant of a summarization Result. Callers switch on it
// instead of testing the summary string.
type Outcome string

const (
	Success             Outcome = "success"
	NoInput             Outcome = "no_input"
	InvalidRequest      Outcome = "invalid_request"
	ConstructionFailure Outcome = "construction_failure"
	GenerationFailure   Outcome = "generation_failure"
)

// Failed reports whether the outcome is an error rather than a warning or
// a summary.
func (o Outcome) Failed() bool {
	switch o {
	case InvalidRequest, ConstructionFailure, GenerationFailure:
		return true
	}
	return false
}

const (
	msgNoInput             = "Please enter some text to summarize."
	msgGenerationFailure   = "Error generating the summary: "
	msgConstructionFailure = "Error loading the summarization model: "
)

type Result struct {
	Outcome Outcome
	// Summary is set only for Success.
	Summary string
	// Message is the user-facing warning or error text.
	Message string
	Err     error

	InputTokens  int
	OutputTokens int
	Truncated    bool
	Cached       bool
	Duration     time.Duration
}
