package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/provider"
	"github.com/samcharles93/precis/internal/summarize"
)

func summarizeCmd() *cli.Command {
	s := &settings{}
	var (
		text      string
		file      string
		numBeams  int64
		minLength int64
		maxLength int64
		asJSON    bool
	)
	defaults := summarize.DefaultDefaults()

	var flags []cli.Flag
	flags = append(flags, s.configFlags()...)
	flags = append(flags, s.modelFlags()...)
	flags = append(flags, s.generationFlags()...)
	flags = append(flags, s.loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "text",
			Aliases:     []string{"t"},
			Usage:       "text to summarize",
			Destination: &text,
		},
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "read the text from a file (- for stdin)",
			Destination: &file,
		},
		&cli.Int64Flag{
			Name:        "num-beams",
			Aliases:     []string{"beams"},
			Usage:       "number of beams",
			Value:       int64(defaults.NumBeams.Default),
			Destination: &numBeams,
		},
		&cli.Int64Flag{
			Name:        "min-length",
			Usage:       "minimum summary length in tokens",
			Value:       int64(defaults.MinLength.Default),
			Destination: &minLength,
		},
		&cli.Int64Flag{
			Name:        "max-length",
			Usage:       "maximum summary length in tokens",
			Value:       int64(defaults.MaxLength.Default),
			Destination: &maxLength,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print the full result as JSON",
			Destination: &asJSON,
		},
	)

	return &cli.Command{
		Name:   "summarize",
		Usage:  "Summarize text from --text, --file or stdin",
		Flags:  flags,
		Before: s.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			input, err := readInput(text, file, os.Stdin)
			if err != nil {
				return err
			}

			p := provider.New(s.providerConfig(), logger.FromContext(ctx))
			defer p.Close()
			service := summarize.NewService(p, summarize.Config{
				Limits: s.limits(),
				Logger: logger.FromContext(ctx),
			})

			res := service.Summarize(ctx, summarize.Request{
				Text:      input,
				NumBeams:  int(numBeams),
				MinLength: int(minLength),
				MaxLength: int(maxLength),
			})
			if asJSON {
				out, err := json.MarshalIndent(resultJSON(res, p.ModelID()), "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			} else if res.Outcome == summarize.Success {
				fmt.Println(res.Summary)
			}

			if res.Outcome != summarize.Success {
				return fmt.Errorf("%s: %s", res.Outcome, res.Message)
			}
			return nil
		},
	}
}

type cliResult struct {
	Outcome      summarize.Outcome `json:"outcome"`
	Summary      string            `json:"summary"`
	Message      string            `json:"message,omitempty"`
	Model        string            `json:"model"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	Truncated    bool              `json:"truncated"`
	DurationMS   int64             `json:"duration_ms"`
}

func resultJSON(res summarize.Result, model string) cliResult {
	return cliResult{
		Outcome:      res.Outcome,
		Summary:      res.Summary,
		Message:      res.Message,
		Model:        model,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		Truncated:    res.Truncated,
		DurationMS:   res.Duration.Milliseconds(),
	}
}
