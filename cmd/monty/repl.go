package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/monty"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/repl"
	"github.com/scostello/monty-go/values"
)

var replCommand = &cli.Command{
	Name:  "repl",
	Usage: "Interactive session with a persistent top-level scope",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "load",
			Usage: "Restore a session dumped with :dump",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return runRepl(cmd.String("load"))
	},
}

func replConfig() repl.Config {
	return repl.Config{
		ScriptName:  "<repl>",
		Builtins:    monty.SharedBuiltins(),
		Dataclasses: registry.NewDataclassRegistry(),
		NamedTuples: registry.NewNamedTupleRegistry(),
		PrintSink:   func(s string) { fmt.Println(s) },
	}
}

func runRepl(loadPath string) error {
	var session *repl.Repl
	if loadPath != "" {
		f, err := os.Open(loadPath)
		if err != nil {
			return err
		}
		session, err = repl.Load(f, replConfig())
		f.Close()
		if err != nil {
			return err
		}
	}

	rl, err := readline.New(">>> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	var block []string
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			block = nil
			rl.SetPrompt(">>> ")
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if strings.HasPrefix(line, ":dump ") {
			if session == nil {
				fmt.Fprintln(os.Stderr, "nothing to dump yet")
				continue
			}
			if err := dumpSession(session, strings.TrimSpace(line[len(":dump "):])); err != nil {
				fmt.Fprintf(os.Stderr, "dump failed: %v\n", err)
			}
			continue
		}

		// Indented/compound statements continue until a blank line.
		block = append(block, line)
		if needsMore(line, block) {
			rl.SetPrompt("... ")
			continue
		}
		source := strings.Join(block, "\n")
		block = nil
		rl.SetPrompt(">>> ")
		if strings.TrimSpace(source) == "" {
			continue
		}

		session = feedBlock(session, source)
	}
}

// needsMore reports whether the current block is an unfinished compound
// statement (ends with ':' or is mid-block and the last line is non-empty).
func needsMore(line string, block []string) bool {
	trimmed := strings.TrimSpace(line)
	if len(block) == 1 {
		return strings.HasSuffix(trimmed, ":")
	}
	return trimmed != ""
}

func feedBlock(session *repl.Repl, source string) *repl.Repl {
	var res repl.Result
	var err error
	if session == nil {
		session, res, err = repl.Create(source, replConfig(), nil)
	} else {
		res, err = session.Feed(source)
	}
	if err != nil {
		if re, ok := err.(*interp.RuntimeError); ok {
			fmt.Fprint(os.Stderr, re.FormattedTraceback())
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return session
	}
	if res.LastWasExpr && !res.Value.IsNone() && session != nil {
		fmt.Println(values.FormatRepr(session.Interpreter().Heap, res.Value))
	}
	return session
}

func dumpSession(session *repl.Repl, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return session.Dump(f)
}
