package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/scostello/monty-go/compiler/codegen"
	"github.com/scostello/monty-go/serialize"
)

var dumpCommand = &cli.Command{
	Name:      "dump",
	Usage:     "Compile a script and write its Program envelope",
	ArgsUsage: "<script.py> <out.mnty>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() != 2 {
			return fmt.Errorf("dump takes a script and an output path")
		}
		source, err := os.ReadFile(cmd.Args().Get(0))
		if err != nil {
			return err
		}
		prog, err := codegen.Compile(string(source), codegen.Options{ScriptName: cmd.Args().Get(0)})
		if err != nil {
			return err
		}
		out, err := os.Create(cmd.Args().Get(1))
		if err != nil {
			return err
		}
		defer out.Close()
		return serialize.DumpProgram(out, prog)
	},
}
