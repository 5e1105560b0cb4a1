package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/provider"
	"github.com/samcharles93/precis/internal/tokenizer"
)

func fetchCmd() *cli.Command {
	s := &settings{}
	var flags []cli.Flag
	flags = append(flags, s.configFlags()...)
	flags = append(flags, s.modelFlags()...)
	flags = append(flags, s.loggingFlags()...)

	return &cli.Command{
		Name:   "fetch",
		Usage:  "Download the tokenizer files of a model into the hub cache",
		Flags:  flags,
		Before: s.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			client := s.hubClient()
			log.Info("fetching tokenizer files", "model", s.modelID, "revision", s.revision, "cache", client.CacheDir)

			dir, err := client.Download(ctx, s.modelID, s.revision, provider.TokenizerFiles)
			if err != nil {
				return err
			}
			tok, err := tokenizer.LoadDir(dir)
			if err != nil {
				return fmt.Errorf("downloaded files do not load: %w", err)
			}
			log.Info("tokenizer ready", "dir", dir, "vocab", tok.VocabSize())
			fmt.Println(dir)
			return nil
		},
	}
}
