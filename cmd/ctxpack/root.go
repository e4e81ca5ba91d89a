package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctxpack/internal/config"
	"ctxpack/internal/logging"
)

// app carries per-invocation state shared by the subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// run executes one CLI invocation and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return exitCode(err, stderr)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ctxpack",
		Short: "Deterministic, budgeted context-pack assembler",
		Long: `ctxpack turns a draft of candidate source excerpts into a context pack
that fits token and file budgets. The same draft always yields the same
manifest hash, whatever the order of its arrays.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (.yaml/.yml or .toml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging to stderr")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitUsage, err: err}
	})

	root.AddCommand(a.validateCmd(), a.hashCmd(), a.printCmd(), a.assembleCmd())
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return usageErr("%v", err)
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	log, err := logging.New(level, a.stderr)
	if err != nil {
		return usageErr("%v", err)
	}
	a.cfg = cfg
	a.logger = log.With(zap.String("run_id", uuid.NewString()))
	return nil
}

// oneFile is the positional-argument check shared by every subcommand.
func oneFile(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageErr("%s takes exactly one draft file, got %d arguments", cmd.Name(), len(args))
	}
	return nil
}

// readDraft reads the draft file; a missing or unreadable file is a usage
// error.
func readDraft(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, usageErr("draft file %s does not exist", path)
		}
		return nil, usageErr("read draft: %v", err)
	}
	return data, nil
}

func (a *app) println(v ...any) {
	fmt.Fprintln(a.stdout, v...)
}
