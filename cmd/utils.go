package cmd

import (
	"context"
	"io"

	"github.com/mwantia/assetloader"
	"github.com/mwantia/assetloader/config"
	"github.com/urfave/cli/v3"
)

func isVerbose(cmd *cli.Command) bool {
	if cmd == nil {
		return false
	}
	if cmd.Bool("verbose") {
		return true
	}
	root := cmd.Root()
	return root != nil && root.Bool("verbose")
}

func stdout(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

func stderr(cmd *cli.Command) io.Writer {
	return cmd.Root().ErrWriter
}

// loadConfig reads the configuration named by --config, or the defaults
// without one, and applies the logging flags.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := cmd.Root().String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if level := cmd.Root().String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if isVerbose(cmd) {
		cfg.Log.Level = "debug"
	}

	return cfg, cfg.Validate()
}

// openLoader builds the configured loader, opens its locators and indexes
// them. Locators that fail either step are reported and stay registered.
func openLoader(ctx context.Context, cmd *cli.Command) (*assetloader.Loader, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	l, err := cfg.Build(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := l.Start(ctx); err != nil {
		printWarn(stderr(cmd), "%v", err)
	}
	if err := l.Index(ctx); err != nil {
		printWarn(stderr(cmd), "%v", err)
	}

	return l, cfg, nil
}
