// Package builder interprets a build descriptor: it installs declared
// dependencies, builds sub-packages, and drives the compiler or a
// custom build command.
package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/crater-dev/crater/internal/descriptor"
	"github.com/crater-dev/crater/internal/engine"
	"github.com/crater-dev/crater/x/rustc"
)

// Environment handed to custom build commands.
const (
	EnvOutDir    = "CARGO_OUT_DIR"
	EnvRustFlags = "CARGO_RUSTFLAGS"
)

// InstallFunc runs a full fetch/install for one dependency
// specification: the raw argument list of a descriptor's deps entry,
// in the same grammar the install command accepts.
type InstallFunc func(ctx context.Context, args []string) error

// Builder turns one descriptor at a time into build actions. It holds
// no per-package state; a single Builder serves a whole recursive
// install.
type Builder struct {
	eng        *engine.Context
	installDep InstallFunc
	rustc      *rustc.Rustc
	verbose    bool
}

// New returns a Builder. installDep is called for every dependency
// entry; it recurses into the full package pipeline.
func New(eng *engine.Context, installDep InstallFunc) *Builder {
	return &Builder{eng: eng, installDep: installDep, rustc: rustc.New()}
}

// SetVerbose streams compiler and build command output instead of
// capturing it into errors.
func (b *Builder) SetVerbose(v bool) {
	b.verbose = v
	if v {
		b.rustc.Stdout = os.Stdout
		b.rustc.Stderr = os.Stderr
	} else {
		b.rustc.Stdout = nil
		b.rustc.Stderr = nil
	}
}

// InstallDeps installs every declared dependency, sequentially and in
// declaration order. Nothing is deduplicated or memoized: a dependency
// listed twice is installed twice, and a diamond is rebuilt once per
// edge.
func (b *Builder) InstallDeps(ctx context.Context, desc *descriptor.Descriptor) error {
	for _, spec := range desc.Deps {
		b.eng.Log.Info("installing dependency", "spec", strings.Join(spec, " "))
		if err := b.installDep(ctx, spec); err != nil {
			return fmt.Errorf("failed to install dependency %q: %w", strings.Join(spec, " "), err)
		}
	}
	return nil
}

// Build produces the package's artifacts and returns the directories
// containing them. With sub-packages declared, each sub-package is
// installed independently and the parent's own [build] section is never
// consulted. Otherwise the output directory is a tracked scratch
// directory, unless inPlace puts artifacts next to the source.
func (b *Builder) Build(ctx context.Context, desc *descriptor.Descriptor, inPlace bool, extraArgs []string) ([]string, error) {
	if len(desc.Subpackages) > 0 {
		return b.buildSubpackages(ctx, desc, extraArgs)
	}
	if desc.Build == nil {
		return nil, descriptor.ErrNoBuildInfo
	}

	bd := desc.Build
	if err := singleBuildMode(bd); err != nil {
		return nil, err
	}
	crateFlags, err := rustc.CrateFlags(bd.CrateType)
	if err != nil {
		return nil, err
	}
	outDir, err := b.outputDir(bd, inPlace)
	if err != nil {
		return nil, err
	}

	if bd.CrateRoot != "" {
		flags := make([]string, 0, len(crateFlags)+4+len(extraArgs)+len(bd.RustcArgs))
		flags = append(flags, crateFlags...)
		flags = append(flags, "-L", outDir, "--out-dir", outDir)
		flags = append(flags, extraArgs...)
		flags = append(flags, bd.RustcArgs...)
		if err := b.rustc.Compile(ctx, bd.CrateRoot, flags...); err != nil {
			return nil, err
		}
	} else {
		if err := b.runBuildCmd(ctx, bd.BuildCmd, outDir, crateFlags); err != nil {
			return nil, err
		}
	}
	return []string{outDir}, nil
}

// Install runs the full pipeline for one descriptor: dependencies,
// build, then a copy of every file from every output directory into the
// library directory. It returns the copied artifact names in output
// directory order.
func (b *Builder) Install(ctx context.Context, desc *descriptor.Descriptor, extraArgs []string) ([]string, error) {
	artifacts, _, err := b.install(ctx, desc, extraArgs)
	return artifacts, err
}

func (b *Builder) install(ctx context.Context, desc *descriptor.Descriptor, extraArgs []string) (artifacts, outDirs []string, err error) {
	if err := b.InstallDeps(ctx, desc); err != nil {
		return nil, nil, err
	}
	outDirs, err = b.Build(ctx, desc, false, extraArgs)
	if err != nil {
		return nil, nil, err
	}

	libDir := b.eng.Config().LibDir
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		return nil, nil, err
	}
	for _, dir := range outDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list build output %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if err := copyFile(filepath.Join(dir, name), filepath.Join(libDir, name)); err != nil {
				return nil, nil, fmt.Errorf("failed to install %s: %w", name, err)
			}
			artifacts = append(artifacts, name)
		}
	}
	return artifacts, outDirs, nil
}

// buildSubpackages installs each sub-package in its own directory and
// collects their build output directories.
func (b *Builder) buildSubpackages(ctx context.Context, desc *descriptor.Descriptor, extraArgs []string) ([]string, error) {
	var outs []string
	for _, sub := range desc.Subpackages {
		var dirs []string
		err := engine.InDir(sub, func() error {
			subDesc, err := descriptor.Load(".")
			if err != nil {
				return err
			}
			_, dirs, err = b.install(ctx, subDesc, extraArgs)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to install sub-package %s: %w", sub, err)
		}
		outs = append(outs, dirs...)
	}
	return outs, nil
}

func (b *Builder) outputDir(bd *descriptor.Build, inPlace bool) (string, error) {
	if !inPlace {
		return b.eng.ScratchDir("crater-build-")
	}
	if bd.CrateRoot != "" {
		return filepath.Abs(filepath.Dir(bd.CrateRoot))
	}
	return os.Getwd()
}

// runBuildCmd invokes a custom build command. The command sees the same
// output contract the compiler does, through CARGO_OUT_DIR and
// CARGO_RUSTFLAGS.
func (b *Builder) runBuildCmd(ctx context.Context, name, outDir string, crateFlags []string) error {
	flags := make([]string, 0, len(crateFlags)+2)
	flags = append(flags, crateFlags...)
	flags = append(flags, "-L", outDir)

	cmd := exec.CommandContext(ctx, name)
	cmd.Env = append(os.Environ(),
		EnvOutDir+"="+outDir,
		EnvRustFlags+"="+strings.Join(flags, " "),
	)

	var stderr bytes.Buffer
	if b.verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("build command %s exited with status %d: %s", name, exitErr.ExitCode(), msg)
			}
			return fmt.Errorf("build command %s exited with status %d", name, exitErr.ExitCode())
		}
		return fmt.Errorf("build command %s: %w", name, err)
	}
	return nil
}

// singleBuildMode rejects descriptors constructed in code that bypass
// Load's validation.
func singleBuildMode(bd *descriptor.Build) error {
	if (bd.CrateRoot == "") == (bd.BuildCmd == "") {
		return descriptor.ErrBuildConflict
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
