package cmd

import (
	"context"
	"fmt"

	"github.com/mwantia/assetloader/crypt"
	"github.com/mwantia/assetloader/log"
	"github.com/urfave/cli/v3"
)

func encryptCommand() *cli.Command {
	return &cli.Command{
		Name:      "encrypt",
		Usage:     "wrap every file of a tree into the encryption envelope",
		ArgsUsage: "<src> <dst>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return batchAction(ctx, cmd, crypt.Encrypt)
		},
	}
}

func decryptCommand() *cli.Command {
	return &cli.Command{
		Name:      "decrypt",
		Usage:     "remove the encryption envelope from every file of a tree",
		ArgsUsage: "<src> <dst>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return batchAction(ctx, cmd, crypt.Decrypt)
		},
	}
}

func batchAction(ctx context.Context, cmd *cli.Command, mode crypt.Mode) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("%s expects a source and a target directory", mode)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := log.Parse(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := log.NewLogger("assetctl", level, cfg.Log.File, cfg.Log.NoTerminal)

	src, dst := cmd.Args().Get(0), cmd.Args().Get(1)
	result, err := crypt.Batch(ctx, cfg.CryptContext(), mode, src, dst, logger)
	if err != nil {
		return err
	}

	printSuccess(stdout(cmd), "%s: %d processed, %d up to date", mode, result.Processed, result.Skipped)
	return nil
}
