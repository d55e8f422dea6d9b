package internal

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errUnimplemented = errors.New("not implemented yet")

var updateForce bool

var updateCmd = &cobra.Command{
	Use:   "update [--force] [package]",
	Short: "Update installed packages",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "update even if the source is unchanged")
	rootCmd.AddCommand(updateCmd)
}

// runUpdate fails before opening the registry, so the registry is never
// created or touched by this command.
func runUpdate(cmd *cobra.Command, args []string) error {
	return fmt.Errorf("update: %w", errUnimplemented)
}
