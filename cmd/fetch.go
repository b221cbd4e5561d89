package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mwantia/assetloader/event"
	"github.com/urfave/cli/v3"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "resolve an asset and write it to a file or stdout",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "file to write the asset to (default: stdout)",
			},
		},
		Action: fetchAction,
	}
}

func fetchAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("fetch expects exactly one asset name")
	}
	name := cmd.Args().First()

	l, _, err := openLoader(ctx, cmd)
	if err != nil {
		return err
	}
	defer l.Close(ctx)

	progress := stderr(cmd)
	l.AddListener(&event.Funcs{
		OnDownloadStarting: func(key string, size int64) {
			fmt.Fprintf(progress, "%s %s (%s)\n", theme.DimStyle.Render("downloading"), key, formatSize(size))
		},
		OnDownloadComplete: func(key string) {
			fmt.Fprintf(progress, "%s %s\n", theme.DimStyle.Render("downloaded"), key)
		},
	})

	stream, err := l.Open(ctx, name)
	if err != nil {
		return err
	}
	defer stream.Close()

	var w io.Writer = stdout(cmd)
	output := cmd.String("output")
	if output != "" {
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return err
		}
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := io.Copy(w, stream)
	if err != nil {
		return err
	}

	if output != "" {
		printSuccess(stdout(cmd), "wrote %s (%s) to %s", name, formatSize(n), output)
	}
	return nil
}
