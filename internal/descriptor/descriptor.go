// Package descriptor loads the per-package build file (crater.toml).
package descriptor

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the build file looked up in every package directory.
const FileName = "crater.toml"

// Crate types accepted in a [build] section.
const (
	CrateBinary  = "binary"
	CrateLibrary = "library"
)

var (
	// ErrNoBuildInfo is reported when a descriptor declares neither a
	// [build] section nor sub-packages.
	ErrNoBuildInfo = errors.New("no build information")

	// ErrBuildConflict is reported when a [build] section sets both or
	// neither of crate_root and build_cmd.
	ErrBuildConflict = errors.New("exactly one of crate_root and build_cmd must be set")

	// ErrBadCrateType is reported for crate types other than "binary"
	// and "library".
	ErrBadCrateType = errors.New(`crate_type must be "binary" or "library"`)
)

// Build is the [build] section of a descriptor.
type Build struct {
	CrateType string   `toml:"crate_type"`
	CrateRoot string   `toml:"crate_root"`
	BuildCmd  string   `toml:"build_cmd"`
	RustcArgs []string `toml:"rustc_args"`
}

// Descriptor is one package's parsed build configuration. A fresh
// Descriptor is loaded for every build or install call; nothing is
// cached across packages.
type Descriptor struct {
	// Deps are dependency specifications, each an argument list handed
	// verbatim to a recursive install. Order is preserved and nothing
	// is deduplicated.
	Deps [][]string `toml:"deps"`

	// Subpackages are relative directories that each hold their own
	// descriptor. When non-empty, the parent's own Build section is
	// ignored and every sub-package is installed independently.
	Subpackages []string `toml:"subpackages"`

	Build *Build `toml:"build"`
}

// Load reads and validates the build descriptor in dir.
func Load(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, FileName)
	var d Descriptor
	if _, err := toml.DecodeFile(path, &d); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &d, nil
}

// Validate checks the descriptor's structural invariants. Sub-package
// descriptors are validated when they themselves are loaded.
func (d *Descriptor) Validate() error {
	if len(d.Subpackages) > 0 {
		return nil
	}
	if d.Build == nil {
		return ErrNoBuildInfo
	}
	return d.Build.validate()
}

func (b *Build) validate() error {
	if (b.CrateRoot == "") == (b.BuildCmd == "") {
		return ErrBuildConflict
	}
	switch b.CrateType {
	case CrateBinary, CrateLibrary:
		return nil
	}
	return fmt.Errorf("%w, got %q", ErrBadCrateType, b.CrateType)
}
