package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crater-dev/crater/internal/descriptor"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter build file in the current directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(descriptor.FileName); err == nil {
		return fmt.Errorf("%s already exists", descriptor.FileName)
	}

	content := `[build]
crate_type = "binary"
crate_root = "main.rs"
`
	if err := os.WriteFile(descriptor.FileName, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", descriptor.FileName, err)
	}

	dir, err := os.Getwd()
	if err == nil {
		fmt.Printf("Initialized package %s\n", filepath.Base(dir))
	}
	return nil
}
