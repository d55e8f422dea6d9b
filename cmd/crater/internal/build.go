package internal

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crater-dev/crater/internal/engine"
	"github.com/crater-dev/crater/internal/pack"
)

var buildVerbose bool

var buildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Build a package in place",
	Long: `Build compiles the package in the given directory (default "."),
installing its declared dependencies first. Artifacts land next to the
source; nothing is copied into the library directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "stream compiler and build command output")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	return runEngine(func(ctx context.Context, eng *engine.Context) error {
		p, err := pack.ForDir(eng, dir, buildVerbose)
		if err != nil {
			return err
		}
		outs, err := p.Build(ctx, nil)
		if err != nil {
			return err
		}
		for _, out := range outs {
			fmt.Printf("built %s\n", out)
		}
		return nil
	})
}
