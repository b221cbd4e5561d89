package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/origin"
	"github.com/mwantia/assetloader/resolver"
	"github.com/urfave/cli/v3"
)

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "upload a directory tree into a locator",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "locator",
				Aliases:  []string{"l"},
				Usage:    "name of the configured locator to upload into",
				Required: true,
			},
		},
		Action: publishAction,
	}
}

func publishAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("publish expects exactly one directory")
	}
	dir := cmd.Args().First()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	l, err := cfg.Build(ctx)
	if err != nil {
		return err
	}
	defer l.Close(ctx)

	name := cmd.String("locator")
	loc, ok := l.Locator(name)
	if !ok {
		return fmt.Errorf("no locator named %q", name)
	}
	r, ok := loc.(*resolver.Resolver)
	if !ok {
		return fmt.Errorf("locator %q has no origin", name)
	}
	publisher, ok := r.Origin().(origin.Publisher)
	if !ok {
		return fmt.Errorf("%w: locator %q does not accept uploads", data.ErrUnsupported, name)
	}

	if err := r.Open(ctx); err != nil {
		return err
	}

	count := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		key := filepath.ToSlash(rel)
		if err := publisher.Put(ctx, key, f, info.Size(), data.ToMillis(info.ModTime())); err != nil {
			return fmt.Errorf("failed to publish %s: %w", key, err)
		}

		count++
		if isVerbose(cmd) {
			fmt.Fprintf(stdout(cmd), "  %s  %s\n", theme.NameStyle.Render(key), formatSize(info.Size()))
		}
		return nil
	})
	if err != nil {
		return err
	}

	printSuccess(stdout(cmd), "published %d files to %s", count, name)
	return nil
}
