package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "list manifest entries matching a pattern",
		ArgsUsage: "[pattern]",
		Action:    lsAction,
	}
}

func lsAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() > 1 {
		return fmt.Errorf("ls accepts at most one pattern")
	}

	pattern := cmd.Args().First()
	if pattern == "" {
		pattern = ".*"
	}

	l, _, err := openLoader(ctx, cmd)
	if err != nil {
		return err
	}
	defer l.Close(ctx)

	entries, err := l.Find(pattern)
	if err != nil {
		return err
	}

	printTitle(stdout(cmd), "%d entries matching %s", len(entries), pattern)
	printEntries(stdout(cmd), entries)
	return nil
}
