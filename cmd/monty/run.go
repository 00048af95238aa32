package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/scostello/monty-go/compiler/codegen"
	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/monty"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Compile and run a Monty script to completion",
	ArgsUsage: "<script.py>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "limits",
			Usage: "YAML file with resource limits",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Print heap usage after the run",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() != 1 {
			return fmt.Errorf("run takes exactly one script argument")
		}
		return runFile(cmd.Args().First(), cmd.String("limits"), cmd.Bool("stats"))
	},
}

// limitsFile is the YAML shape of -limits.
type limitsFile struct {
	DeadlineMs        int `yaml:"deadline_ms"`
	MaxAllocations    int `yaml:"max_allocations"`
	MaxHeapBytes      int `yaml:"max_heap_bytes"`
	MaxRecursionDepth int `yaml:"max_recursion_depth"`
	GCInterval        int `yaml:"gc_interval"`
}

func loadLimits(path string) (interp.Limits, error) {
	var limits interp.Limits
	if path == "" {
		return limits, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return limits, err
	}
	var lf limitsFile
	if err := yaml.Unmarshal(raw, &lf); err != nil {
		return limits, fmt.Errorf("parsing %s: %w", path, err)
	}
	if lf.DeadlineMs > 0 {
		limits.Deadline = time.Now().Add(time.Duration(lf.DeadlineMs) * time.Millisecond)
	}
	limits.MaxAllocations = lf.MaxAllocations
	limits.MaxHeapBytes = lf.MaxHeapBytes
	limits.MaxRecursionDepth = lf.MaxRecursionDepth
	limits.GCInterval = lf.GCInterval
	return limits, nil
}

func runFile(path, limitsPath string, stats bool) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	limits, err := loadLimits(limitsPath)
	if err != nil {
		return err
	}
	prog, err := codegen.Compile(string(source), codegen.Options{ScriptName: path})
	if err != nil {
		return err
	}
	in := interp.New(prog, monty.SharedBuiltins(), registry.NewDataclassRegistry(),
		registry.NewNamedTupleRegistry(), limits, func(s string) { fmt.Println(s) })
	out, err := in.RunSync(nil)
	if err != nil {
		if re, ok := err.(*interp.RuntimeError); ok {
			fmt.Fprint(os.Stderr, re.FormattedTraceback())
			os.Exit(1)
		}
		return err
	}
	if !out.IsNone() && isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Println(values.FormatRepr(in.Heap, out))
	}
	if stats {
		hs := in.Heap.Stats()
		fmt.Fprintf(os.Stderr, "heap: %s live across %d objects, %d allocations since last sweep\n",
			humanize.Bytes(uint64(hs.LiveBytes)), hs.LiveCount, hs.AllocCount)
	}
	return nil
}
