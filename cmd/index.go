package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mwantia/assetloader/crypt"
	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/manifest"
	"github.com/urfave/cli/v3"
)

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "write the manifest of a directory tree",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "manifest file to write (default: <dir>/<index name>)",
			},
		},
		Action: indexAction,
	}
}

func indexAction(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("index expects exactly one directory")
	}
	dir := cmd.Args().First()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	output := cmd.String("output")
	if output == "" {
		output = filepath.Join(dir, filepath.FromSlash(cfg.Resolver.IndexName))
	}

	decryption := cfg.CryptContext()
	entries, err := manifest.Scan(os.DirFS(dir), ".", manifest.ScanOptions{
		Skip: func(name string) bool {
			return name == cfg.Resolver.IndexName
		},
		ProcessedSize: func(fsys fs.FS, name string) (int64, bool, error) {
			f, err := fsys.Open(name)
			if err != nil {
				return data.UnknownSize, false, err
			}
			defer f.Close()

			return crypt.ReadHeader(f, decryption)
		},
	})
	if err != nil {
		return err
	}

	m := manifest.New("", data.UnknownTime, entries...)
	if err := writeManifest(output, m); err != nil {
		return err
	}

	printSuccess(stdout(cmd), "wrote %d entries to %s", m.Len(), output)
	if isVerbose(cmd) {
		printEntries(stdout(cmd), m.Entries())
	}
	return nil
}

// writeManifest replaces path with the manifest.
func writeManifest(path string, m *manifest.Manifest) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := m.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
