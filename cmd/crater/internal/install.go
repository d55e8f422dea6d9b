package internal

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/crater-dev/crater/internal/engine"
	"github.com/crater-dev/crater/internal/pack"
	"github.com/crater-dev/crater/internal/vcs"
)

var (
	installGit     bool
	installHg      bool
	installLocal   bool
	installName    string
	installVerbose bool
)

var installCmd = &cobra.Command{
	Use:   "install [--git|--hg|--local] [--pkgname=<name>] [path|url]",
	Short: "Fetch, build and install a package",
	Long: `Install fetches a package's source into the source directory, installs
its declared dependencies in order, builds it, and copies the resulting
artifacts into the library directory. The result is recorded in the
registry. With no argument the current directory is installed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installGit, "git", false, "fetch with git")
	installCmd.Flags().BoolVar(&installHg, "hg", false, "fetch with mercurial")
	installCmd.Flags().BoolVar(&installLocal, "local", false, "copy from a local directory")
	installCmd.Flags().StringVar(&installName, "pkgname", "", "override the package name")
	installCmd.Flags().BoolVarP(&installVerbose, "verbose", "v", false, "stream compiler and build command output")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	return runEngine(func(ctx context.Context, eng *engine.Context) error {
		opts := pack.Options{Name: installName, Verbose: installVerbose}
		switch {
		case installGit:
			opts.Method = vcs.Git
		case installHg:
			opts.Method = vcs.Hg
		case installLocal:
			opts.Method = vcs.Local
		}
		if len(args) > 0 {
			opts.Target = args[0]
		}

		p, err := pack.New(eng, opts)
		if err != nil {
			return err
		}
		if err := p.Fetch(ctx); err != nil {
			return err
		}
		return p.Install(ctx, nil)
	})
}
