package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/scostello/monty-go/version"
)

func main() {
	app := &cli.Command{
		Name:  "monty",
		Usage: "A sandboxed Python-subset interpreter",
		Commands: []*cli.Command{
			runCommand,
			replCommand,
			dumpCommand,
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "version",
				Local: true,
				Usage: "Show version",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Println(version.Version())
				return nil
			}
			if cmd.Args().Len() > 0 {
				return runFile(cmd.Args().First(), "", false)
			}
			return runRepl("")
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
