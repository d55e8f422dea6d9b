package internal

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/crater-dev/crater/internal/engine"
	"github.com/crater-dev/crater/internal/registry"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// runList opens the registry read-only: unlike the pipeline commands it
// never saves, so a bare listing cannot rewrite the registry file.
func runList(cmd *cobra.Command, args []string) error {
	path := dbPath
	if path == "" {
		var err error
		if path, err = registry.DefaultPath(); err != nil {
			return err
		}
	}
	eng, err := engine.New(path, log.New(io.Discard))
	if err != nil {
		return err
	}
	defer eng.Close()

	return printPackages(os.Stdout, eng.DB)
}

func printPackages(w io.Writer, db *registry.Database) error {
	names := make([]string, 0, len(db.Packages))
	for name := range db.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, name := range names {
		rec := db.Packages[name]
		date := ""
		if !rec.BuildDate.IsZero() {
			date = rec.BuildDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d artifacts\t%s\t%s\n",
			name, rec.FetchWith, len(rec.Artifacts), rec.BuiltWith, date)
	}
	return tw.Flush()
}
