package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/provider"
	"github.com/samcharles93/precis/internal/tokenizer"
)

func tokenizeCmd() *cli.Command {
	s := &settings{}
	var (
		text      string
		file      string
		countOnly bool
	)

	var flags []cli.Flag
	flags = append(flags, s.configFlags()...)
	flags = append(flags, s.modelFlags()...)
	flags = append(flags, s.loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "text",
			Aliases:     []string{"t"},
			Usage:       "text to tokenize",
			Destination: &text,
		},
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Usage:       "read the text from a file (- for stdin)",
			Destination: &file,
		},
		&cli.BoolFlag{
			Name:        "count",
			Usage:       "print only the token count",
			Destination: &countOnly,
		},
	)

	return &cli.Command{
		Name:   "tokenize",
		Usage:  "Show how text is encoded for the model, including truncation",
		Flags:  flags,
		Before: s.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			input, err := readInput(text, file, os.Stdin)
			if err != nil {
				return err
			}
			p := provider.New(s.providerConfig(), logger.FromContext(ctx))
			tok, err := p.Tokenizer()
			if err != nil {
				return err
			}
			enc, err := tok.Encode(input, tokenizer.SummaryEncodeOptions())
			if err != nil {
				return err
			}
			if countOnly {
				fmt.Println(len(enc.IDs))
				return nil
			}
			return printEncoding(tok, enc)
		},
	}
}

func printEncoding(tok tokenizer.Tokenizer, enc tokenizer.Encoding) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "POS\tID\tPIECE")
	for i, id := range enc.IDs {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\n", i, id, strconv.Quote(tok.TokenString(id)))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d tokens", len(enc.IDs))
	if enc.Truncated {
		fmt.Printf(" (truncated, %d dropped)", enc.Overflow)
	}
	fmt.Println()
	return nil
}
