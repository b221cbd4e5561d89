package cmd

import (
	"context"
	"io"
	"os"

	"github.com/mwantia/assetloader/config"
	"github.com/urfave/cli/v3"
)

// Commands:
// index <dir>
//   scans a directory tree and writes its manifest
//
// ls [pattern]
//   lists the manifest entries of the configured locators
//
// fetch <name>
//   resolves one asset through the configured locators
//
// encrypt|decrypt <src> <dst>
//   converts a tree into or out of the encryption envelope
//
// publish <dir> --locator <name>
//   uploads a tree into a locator that accepts uploads
//
// serve
//   serves the configured locators over http, in the layout the http
//   locator expects

func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := &cli.Command{
		Name:      "assetctl",
		Usage:     "resolve, index and publish assets",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path of the configuration file",
				Sources: cli.EnvVars(config.EnvConfig),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log debug output and show progress",
			},
		},
		Commands: []*cli.Command{
			indexCommand(),
			lsCommand(),
			fetchCommand(),
			encryptCommand(),
			decryptCommand(),
			publishCommand(),
			serveCommand(),
		},
	}

	return app.Run(ctx, args)
}
