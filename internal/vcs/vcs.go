// Copyright 2026 The crater Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vcs materializes package sources from version control
// repositories or local directories.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// Method identifies how a package's source is fetched.
type Method string

const (
	Git         Method = "git"
	Hg          Method = "hg"
	Local       Method = "local"
	Unspecified Method = ""
)

// ErrUnknownMethod is reported when a fetch is attempted with an
// unresolved method.
var ErrUnknownMethod = errors.New("unknown fetch method")

// matcher inspects a candidate source and reports the fetch method it
// implies, if any. Matchers run in a fixed order; the first match wins.
type matcher func(source string) (Method, bool)

var matchers = []matcher{matchURL, matchSuffix, matchLocal}

// Infer resolves the fetch method for source. An explicit method always
// wins; otherwise the matcher chain decides. ok is false when no
// matcher applies, leaving the method unresolved.
func Infer(explicit Method, source string) (method Method, ok bool) {
	if explicit != Unspecified {
		return explicit, true
	}
	if source == "" {
		return Unspecified, false
	}
	for _, m := range matchers {
		if method, ok := m(source); ok {
			return method, true
		}
	}
	return Unspecified, false
}

// matchURL handles sources with a URL scheme whose text names a
// version control system, e.g. git://host/repo or https://github.com/x/y.
func matchURL(source string) (Method, bool) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Unspecified, false
	}
	switch {
	case strings.Contains(source, "git"):
		return Git, true
	case strings.Contains(source, "hg"):
		return Hg, true
	}
	return Unspecified, false
}

func matchSuffix(source string) (Method, bool) {
	switch {
	case strings.HasSuffix(source, ".git"):
		return Git, true
	case strings.HasSuffix(source, ".hg"):
		return Hg, true
	}
	return Unspecified, false
}

func matchLocal(source string) (Method, bool) {
	if _, err := os.Stat(source); err == nil {
		return Local, true
	}
	return Unspecified, false
}

// Fetch materializes source at dest using the given method. Any
// existing tree at dest is removed first: a re-fetch always wins over
// local edits, with no merge and no dirty-check.
func Fetch(ctx context.Context, method Method, source, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dest, err)
	}
	switch method {
	case Git:
		return clone(ctx, "git", source, dest)
	case Hg:
		return clone(ctx, "hg", source, dest)
	case Local:
		return copyDir(source, dest)
	}
	return fmt.Errorf("%w: cannot fetch %q", ErrUnknownMethod, source)
}

func clone(ctx context.Context, tool, source, dest string) error {
	cmd := exec.CommandContext(ctx, tool, "clone", source, dest)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s clone %s: %w\n%s", tool, source, err, output)
	}
	return nil
}

func copyDir(source, dest string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("local source %s is not a directory", source)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return os.CopyFS(dest, os.DirFS(source))
}
