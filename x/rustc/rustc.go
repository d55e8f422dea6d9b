// Package rustc wraps invocations of the Rust compiler.
package rustc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Rustc drives compiler invocations. The zero value is not usable; call
// New.
type Rustc struct {
	bin string

	// Stdout and Stderr, when set, stream compiler output instead of
	// capturing it. Captured output is folded into returned errors.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Rustc using the "rustc" binary from PATH.
func New() *Rustc {
	return &Rustc{bin: "rustc"}
}

// Bin overrides the compiler binary.
func (r *Rustc) Bin(path string) { r.bin = path }

// CrateFlags maps a crate type to the flags selecting what the compiler
// produces. "binary" builds an executable; "library" builds every
// linkable form: the intermediate rlib plus dynamic and static
// libraries.
func CrateFlags(crateType string) ([]string, error) {
	switch crateType {
	case "binary":
		return []string{"--crate-type", "bin"}, nil
	case "library":
		return []string{"--crate-type", "lib,rlib,dylib,staticlib"}, nil
	}
	return nil, fmt.Errorf("unknown crate type %q", crateType)
}

// Compile invokes the compiler on entry with the given flags. A
// non-zero exit reports the exit code and, unless output is streamed,
// everything the compiler printed.
func (r *Rustc) Compile(ctx context.Context, entry string, flags ...string) error {
	args := append([]string{entry}, flags...)
	cmd := exec.CommandContext(ctx, r.bin, args...)

	if r.Stdout != nil || r.Stderr != nil {
		cmd.Stdout = r.Stdout
		cmd.Stderr = r.Stderr
		if err := cmd.Run(); err != nil {
			return compileError(entry, err, nil)
		}
		return nil
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return compileError(entry, err, output)
	}
	return nil
}

// Version returns the first line of "rustc --version".
func (r *Rustc) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, r.bin, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", r.bin, err)
	}
	version := strings.TrimSpace(string(output))
	if i := strings.IndexByte(version, '\n'); i >= 0 {
		version = version[:i]
	}
	return version, nil
}

func compileError(entry string, err error, output []byte) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if len(output) > 0 {
			return fmt.Errorf("compiling %s: rustc exited with status %d:\n%s",
				entry, exitErr.ExitCode(), strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("compiling %s: rustc exited with status %d", entry, exitErr.ExitCode())
	}
	return fmt.Errorf("compiling %s: %w", entry, err)
}
