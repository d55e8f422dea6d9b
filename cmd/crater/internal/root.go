package internal

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/crater-dev/crater/internal/engine"
	"github.com/crater-dev/crater/internal/registry"
)

const version = "0.1.0"

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "crater",
	Short: "crater is a minimal package manager for Rust crates",
	Long: `crater fetches a package's source, installs its declared dependencies,
drives the compiler or a custom build command, and records what was
installed in a per-user registry.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "registry file (default ~/.crater/db)")
}

// Execute runs the root command. This is the only place that terminates
// the process: every fatal condition below it surfaces as an error
// return and is reported here.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crater:", err)
		os.Exit(1)
	}
}

// runEngine opens the registry, runs fn, and finishes the invocation.
// Scratch directories are removed on every path; the registry and the
// global config are saved only when fn succeeds, so a failed pipeline
// discards its bookkeeping while its file-system side effects remain.
func runEngine(fn func(ctx context.Context, eng *engine.Context) error) error {
	path := dbPath
	if path == "" {
		var err error
		if path, err = registry.DefaultPath(); err != nil {
			return err
		}
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	eng, err := engine.New(path, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := fn(context.Background(), eng); err != nil {
		if eng.FlushOnError {
			if saveErr := eng.DB.Save(); saveErr != nil {
				eng.Log.Warn("cannot flush registry", "err", saveErr)
			}
		}
		return err
	}
	return eng.DB.Save()
}
