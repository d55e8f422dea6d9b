// Package engine owns the state shared by one crater invocation.
package engine

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/crater-dev/crater/internal/config"
	"github.com/crater-dev/crater/internal/registry"
)

// Context carries the open registry, the resolved configuration, the
// logger and every scratch directory allocated during one invocation.
// Exactly one Context exists per command; the command dispatcher defers
// Close so scratch directories are released on every exit path,
// including failed ones.
type Context struct {
	DB  *registry.Database
	Log *log.Logger

	// FlushOnError persists registry updates accumulated before a
	// failed pipeline stage. Off by default: a failed install leaves
	// the registry exactly as the previous run saved it, even though
	// fetched sources and partially copied artifacts stay on disk.
	FlushOnError bool

	scratch []string
}

// New opens the registry at dbPath and wraps it in a fresh Context.
func New(dbPath string, logger *log.Logger) (*Context, error) {
	if logger == nil {
		logger = log.Default()
	}
	db, err := registry.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Context{DB: db, Log: logger}, nil
}

// Config returns the global directory configuration.
func (c *Context) Config() *config.Config { return c.DB.Config() }

// ScratchDir allocates a build output directory under the configured
// temp root and tracks it for removal at Close.
func (c *Context) ScratchDir(pattern string) (string, error) {
	dir, err := os.MkdirTemp(c.Config().TempDir, pattern)
	if err != nil {
		return "", err
	}
	c.scratch = append(c.scratch, dir)
	return dir, nil
}

// Close removes every scratch directory allocated during this
// invocation. Removal is attempted for all of them; the first error is
// returned.
func (c *Context) Close() error {
	var first error
	for _, dir := range c.scratch {
		if err := os.RemoveAll(dir); err != nil && first == nil {
			first = err
		}
	}
	c.scratch = nil
	return first
}

// InDir runs fn with the working directory set to dir, restoring the
// previous directory afterwards.
func InDir(dir string, fn func() error) error {
	prev, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := os.Chdir(dir); err != nil {
		return err
	}
	defer os.Chdir(prev)
	return fn()
}
