// Copyright 2026 The crater Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pack drives the fetch → build → install pipeline for one
// named package. Dependencies recurse through the same pipeline
// in-process, using the same argument grammar as the install command.
package pack

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/crater-dev/crater/internal/builder"
	"github.com/crater-dev/crater/internal/descriptor"
	"github.com/crater-dev/crater/internal/engine"
	"github.com/crater-dev/crater/internal/vcs"
	"github.com/crater-dev/crater/x/rustc"
)

// Options select what to install and how, populated from the install
// command's flags or from a descriptor's deps entry.
type Options struct {
	Method  vcs.Method // explicit fetch method, or Unspecified
	Name    string     // package name override
	Target  string     // URL or path argument; empty means current directory
	Verbose bool
}

// ParseArgs interprets an install-style argument list: the grammar of
// the install command, reused verbatim for dependency entries so that
// dependencies recurse through the identical flow.
func ParseArgs(args []string) (Options, error) {
	fs := pflag.NewFlagSet("install", pflag.ContinueOnError)
	git := fs.Bool("git", false, "fetch with git")
	hg := fs.Bool("hg", false, "fetch with mercurial")
	local := fs.Bool("local", false, "copy from a local directory")
	name := fs.String("pkgname", "", "package name override")
	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("failed to parse dependency spec %q: %w", strings.Join(args, " "), err)
	}

	var opts Options
	switch {
	case *git:
		opts.Method = vcs.Git
	case *hg:
		opts.Method = vcs.Hg
	case *local:
		opts.Method = vcs.Local
	}
	opts.Name = *name
	if fs.NArg() > 0 {
		opts.Target = fs.Arg(0)
	}
	return opts, nil
}

// Package is the transient unit of work for one install or build. It is
// constructed per invocation (top-level or recursive dependency),
// populated from an existing registry record when one exists, and
// written back as a record when the pipeline succeeds.
type Package struct {
	Name   string
	Method vcs.Method
	Source string
	Dest   string

	eng     *engine.Context
	builder *builder.Builder
}

// New resolves a Package from opts. A previously recorded fetch method
// and source carry forward when the caller does not override them.
func New(eng *engine.Context, opts Options) (*Package, error) {
	name := opts.Name
	if name == "" {
		var err error
		if name, err = inferName(opts.Target); err != nil {
			return nil, err
		}
	}

	p := &Package{
		Name:   name,
		Method: opts.Method,
		Source: opts.Target,
		eng:    eng,
	}
	if rec, ok := eng.DB.Get(name); ok {
		if p.Method == vcs.Unspecified {
			p.Method = vcs.Method(rec.FetchWith)
		}
		// A bare name argument is a registry lookup, not a new source.
		if p.Source == "" || (p.Source == name && rec.FetchFrom != "") {
			p.Source = rec.FetchFrom
		}
	}
	if p.Source == "" {
		p.Source = "."
	}

	p.builder = builder.New(eng, p.installDep)
	p.builder.SetVerbose(opts.Verbose)
	return p, nil
}

// ForDir returns a Package rooted at an existing directory, for builds
// that operate in place without fetching.
func ForDir(eng *engine.Context, dir string, verbose bool) (*Package, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	p := &Package{
		Name:   filepath.Base(abs),
		Method: vcs.Local,
		Source: abs,
		Dest:   abs,
		eng:    eng,
	}
	p.builder = builder.New(eng, p.installDep)
	p.builder.SetVerbose(verbose)
	return p, nil
}

// ResolveMethod infers the fetch method if none is set yet. Failure to
// infer is informational only: the method stays unresolved and the
// fetch itself reports the fatal error.
func (p *Package) ResolveMethod() {
	method, ok := vcs.Infer(p.Method, p.Source)
	if !ok {
		p.eng.Log.Warn("cannot infer fetch method", "package", p.Name, "source", p.Source)
		return
	}
	p.Method = method
}

// Fetch materializes the package's source under the configured source
// directory, wiping any previous checkout first. Fetch provenance is
// recorded in the in-memory registry as soon as the fetch succeeds, so
// a later failed build still leaves provenance behind once the registry
// is saved.
func (p *Package) Fetch(ctx context.Context) error {
	p.ResolveMethod()

	cfg := p.eng.Config()
	if err := os.MkdirAll(cfg.SrcDir, 0o755); err != nil {
		return err
	}
	p.Dest = filepath.Join(cfg.SrcDir, p.Name)

	if p.Method == vcs.Local {
		abs, err := filepath.Abs(p.Source)
		if err != nil {
			return err
		}
		p.Source = abs
	}

	p.eng.Log.Info("fetching", "package", p.Name, "method", string(p.Method), "source", p.Source)
	if err := vcs.Fetch(ctx, p.Method, p.Source, p.Dest); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", p.Name, err)
	}

	rec, _ := p.eng.DB.Get(p.Name)
	rec.FetchWith = string(p.Method)
	rec.FetchFrom = p.Source
	rec.Dest = p.Dest
	p.eng.DB.Set(p.Name, rec)
	return nil
}

// Build compiles the package in place: dependencies are installed
// first, then the build runs with its artifacts landing next to the
// source. Nothing is copied to the library directory and no install
// record is written.
func (p *Package) Build(ctx context.Context, extraArgs []string) ([]string, error) {
	var outs []string
	err := p.inDest(func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		if err := p.builder.InstallDeps(ctx, desc); err != nil {
			return err
		}
		outs, err = p.builder.Build(ctx, desc, true, extraArgs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", p.Name, err)
	}
	return outs, nil
}

// Install runs the full pipeline in the fetched tree and records the
// installed artifacts, the compiler version and a build timestamp.
func (p *Package) Install(ctx context.Context, extraArgs []string) error {
	var artifacts []string
	err := p.inDest(func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		artifacts, err = p.builder.Install(ctx, desc, extraArgs)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", p.Name, err)
	}

	rec, _ := p.eng.DB.Get(p.Name)
	rec.Artifacts = artifacts
	rec.BuildDate = time.Now()
	if version, err := rustc.New().Version(ctx); err == nil {
		rec.BuiltWith = version
	} else {
		p.eng.Log.Warn("cannot determine compiler version", "err", err)
	}
	p.eng.DB.Set(p.Name, rec)

	p.eng.Log.Info("installed", "package", p.Name, "artifacts", len(artifacts))
	return nil
}

// installDep runs the full fetch → install pipeline for one dependency
// specification.
func (p *Package) installDep(ctx context.Context, args []string) error {
	opts, err := ParseArgs(args)
	if err != nil {
		return err
	}
	dep, err := New(p.eng, opts)
	if err != nil {
		return err
	}
	if err := dep.Fetch(ctx); err != nil {
		return err
	}
	return dep.Install(ctx, nil)
}

// inDest runs fn inside the package's destination directory, creating
// it if missing. Fetch normally ran first; the create is defensive.
func (p *Package) inDest(fn func() error) error {
	if p.Dest == "" {
		p.Dest = filepath.Join(p.eng.Config().SrcDir, p.Name)
	}
	if err := os.MkdirAll(p.Dest, 0o755); err != nil {
		return err
	}
	return engine.InDir(p.Dest, fn)
}

// inferName derives a package name from its source: the last path
// element, with any VCS suffix stripped. An empty target names the
// current directory.
func inferName(target string) (string, error) {
	if target == "" {
		target = "."
	}
	if u, err := url.Parse(target); err == nil && u.Scheme != "" && u.Host != "" {
		base := path.Base(strings.TrimSuffix(u.Path, "/"))
		base = strings.TrimSuffix(strings.TrimSuffix(base, ".git"), ".hg")
		if base == "" || base == "." || base == "/" {
			return "", fmt.Errorf("cannot derive a package name from %q", target)
		}
		return base, nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	base := filepath.Base(abs)
	return strings.TrimSuffix(strings.TrimSuffix(base, ".git"), ".hg"), nil
}
