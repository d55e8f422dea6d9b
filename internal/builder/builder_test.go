package builder

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/crater-dev/crater/internal/descriptor"
	"github.com/crater-dev/crater/internal/engine"
)

func newTestEngine(t *testing.T) *engine.Context {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	eng, err := engine.New(filepath.Join(home, "db"), log.New(io.Discard))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

// stubRustc installs a fake compiler that logs its arguments and drops
// an artifact named after the entry point into --out-dir.
func stubRustc(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "rustc.log")
	script := `#!/bin/sh
echo "$@" >> "` + logPath + `"
entry="$1"
out=""
prev=""
for arg in "$@"; do
	if [ "$prev" = "--out-dir" ]; then out="$arg"; fi
	prev="$arg"
done
: > "$out/$(basename "$entry" .rs).bin"
`
	if err := os.WriteFile(filepath.Join(dir, "rustc"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return logPath
}

func writePackage(t *testing.T, dir, toml string, sources ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, descriptor.FileName), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, src := range sources {
		if err := os.WriteFile(filepath.Join(dir, src), []byte("// src\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func noDeps(ctx context.Context, args []string) error { return nil }

func TestBuildNoBuildInfo(t *testing.T) {
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	_, err := b.Build(context.Background(), &descriptor.Descriptor{}, false, nil)
	if !errors.Is(err, descriptor.ErrNoBuildInfo) {
		t.Errorf("Build = %v, want ErrNoBuildInfo", err)
	}
}

func TestBuildRejectsConflictingModes(t *testing.T) {
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	desc := &descriptor.Descriptor{Build: &descriptor.Build{
		CrateType: descriptor.CrateBinary,
		CrateRoot: "main.rs",
		BuildCmd:  "make",
	}}
	if _, err := b.Build(context.Background(), desc, false, nil); !errors.Is(err, descriptor.ErrBuildConflict) {
		t.Errorf("Build = %v, want ErrBuildConflict", err)
	}
}

func TestBuildBadCrateType(t *testing.T) {
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	desc := &descriptor.Descriptor{Build: &descriptor.Build{
		CrateType: "plugin",
		CrateRoot: "main.rs",
	}}
	if _, err := b.Build(context.Background(), desc, false, nil); err == nil {
		t.Error("Build with unknown crate type should fail")
	}
}

func TestBuildBinary(t *testing.T) {
	logPath := stubRustc(t)
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	pkg := t.TempDir()
	writePackage(t, pkg, `
[build]
crate_type = "binary"
crate_root = "main.rs"
rustc_args = ["-O"]
`, "main.rs")

	var outs []string
	err := engine.InDir(pkg, func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		outs, err = b.Build(context.Background(), desc, false, []string{"--cfg", "extra"})
		return err
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("Build returned %d output dirs, want 1", len(outs))
	}
	if _, err := os.Stat(filepath.Join(outs[0], "main.bin")); err != nil {
		t.Errorf("artifact missing in output dir: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	args := strings.TrimSpace(string(data))
	for _, want := range []string{
		"main.rs",
		"--crate-type bin",
		"-L " + outs[0],
		"--out-dir " + outs[0],
		"--cfg extra",
		"-O",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("compiler args %q missing %q", args, want)
		}
	}
}

func TestBuildLibraryFlagSet(t *testing.T) {
	logPath := stubRustc(t)
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	pkg := t.TempDir()
	writePackage(t, pkg, `
[build]
crate_type = "library"
crate_root = "lib.rs"
`, "lib.rs")

	err := engine.InDir(pkg, func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		_, err = b.Build(context.Background(), desc, false, nil)
		return err
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "--crate-type lib,rlib,dylib,staticlib") {
		t.Errorf("library build args %q missing full crate-type set", data)
	}
}

func TestBuildInPlace(t *testing.T) {
	stubRustc(t)
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	pkg := t.TempDir()
	writePackage(t, pkg, `
[build]
crate_type = "binary"
crate_root = "main.rs"
`, "main.rs")

	var outs []string
	err := engine.InDir(pkg, func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		outs, err = b.Build(context.Background(), desc, true, nil)
		return err
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := pkg
	if resolved, err := filepath.EvalSymlinks(pkg); err == nil {
		want = resolved
	}
	if len(outs) != 1 || outs[0] != want {
		t.Errorf("in-place output dirs = %v, want [%s]", outs, want)
	}
	if _, err := os.Stat(filepath.Join(pkg, "main.bin")); err != nil {
		t.Errorf("in-place artifact missing: %v", err)
	}
}

func TestBuildCommandEnvironment(t *testing.T) {
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	bin := t.TempDir()
	script := `#!/bin/sh
echo "$CARGO_RUSTFLAGS" > "$CARGO_OUT_DIR/flags.txt"
: > "$CARGO_OUT_DIR/built.a"
`
	if err := os.WriteFile(filepath.Join(bin, "custom-build"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	pkg := t.TempDir()
	writePackage(t, pkg, `
[build]
crate_type = "library"
build_cmd = "custom-build"
`)

	var outs []string
	err := engine.InDir(pkg, func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		outs, err = b.Build(context.Background(), desc, false, nil)
		return err
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outs[0], "flags.txt"))
	if err != nil {
		t.Fatalf("build command did not see CARGO_OUT_DIR: %v", err)
	}
	flags := strings.TrimSpace(string(data))
	if !strings.Contains(flags, "--crate-type lib,rlib,dylib,staticlib") {
		t.Errorf("CARGO_RUSTFLAGS %q missing crate-type flags", flags)
	}
	if !strings.Contains(flags, "-L "+outs[0]) {
		t.Errorf("CARGO_RUSTFLAGS %q missing -L %s", flags, outs[0])
	}
}

func TestBuildCommandFailure(t *testing.T) {
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	bin := t.TempDir()
	script := `#!/bin/sh
echo "configure: error: missing libfoo" >&2
exit 2
`
	if err := os.WriteFile(filepath.Join(bin, "failing-build"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	desc := &descriptor.Descriptor{Build: &descriptor.Build{
		CrateType: descriptor.CrateBinary,
		BuildCmd:  "failing-build",
	}}
	_, err := b.Build(context.Background(), desc, false, nil)
	if err == nil {
		t.Fatal("failing build command should return an error")
	}
	if !strings.Contains(err.Error(), "status 2") || !strings.Contains(err.Error(), "missing libfoo") {
		t.Errorf("error %q missing exit status or captured stderr", err)
	}
}

func TestInstallDepsOrderAndDuplicates(t *testing.T) {
	eng := newTestEngine(t)

	var got []string
	b := New(eng, func(ctx context.Context, args []string) error {
		got = append(got, strings.Join(args, " "))
		return nil
	})

	desc := &descriptor.Descriptor{Deps: [][]string{{"a"}, {"b", "--local"}, {"a"}}}
	if err := b.InstallDeps(context.Background(), desc); err != nil {
		t.Fatalf("InstallDeps: %v", err)
	}

	want := []string{"a", "b --local", "a"}
	if !slices.Equal(got, want) {
		t.Errorf("dependency installs = %v, want %v", got, want)
	}
}

func TestInstallDepsStopsOnFailure(t *testing.T) {
	eng := newTestEngine(t)

	var calls int
	b := New(eng, func(ctx context.Context, args []string) error {
		calls++
		if args[0] == "bad" {
			return errors.New("clone failed")
		}
		return nil
	})

	desc := &descriptor.Descriptor{Deps: [][]string{{"good"}, {"bad"}, {"never"}}}
	if err := b.InstallDeps(context.Background(), desc); err == nil {
		t.Fatal("InstallDeps should propagate a failing dependency")
	}
	if calls != 2 {
		t.Errorf("installed %d deps before stopping, want 2", calls)
	}
}

func TestInstallCopiesArtifacts(t *testing.T) {
	stubRustc(t)
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	pkg := t.TempDir()
	writePackage(t, pkg, `
[build]
crate_type = "binary"
crate_root = "main.rs"
`, "main.rs")

	var artifacts []string
	err := engine.InDir(pkg, func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		artifacts, err = b.Install(context.Background(), desc, nil)
		return err
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if !slices.Contains(artifacts, "main.bin") {
		t.Errorf("artifacts = %v, want main.bin included", artifacts)
	}
	for _, name := range artifacts {
		if _, err := os.Stat(filepath.Join(eng.Config().LibDir, name)); err != nil {
			t.Errorf("artifact %s not copied to library dir: %v", name, err)
		}
	}
}

func TestSubpackagesShadowParentBuild(t *testing.T) {
	stubRustc(t)
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	bin := t.TempDir()
	marker := filepath.Join(bin, "parent-built")
	script := `#!/bin/sh
: > "` + marker + `"
`
	if err := os.WriteFile(filepath.Join(bin, "parent-build"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	pkg := t.TempDir()
	writePackage(t, pkg, `
subpackages = ["suba", "subb"]

[build]
crate_type = "binary"
build_cmd = "parent-build"
`)
	writePackage(t, filepath.Join(pkg, "suba"), `
[build]
crate_type = "binary"
crate_root = "a.rs"
`, "a.rs")
	writePackage(t, filepath.Join(pkg, "subb"), `
[build]
crate_type = "binary"
crate_root = "b.rs"
`, "b.rs")

	var outs []string
	err := engine.InDir(pkg, func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		outs, err = b.Build(context.Background(), desc, false, nil)
		return err
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("parent [build] section was invoked despite sub-packages")
	}
	if len(outs) != 2 {
		t.Fatalf("Build returned %d output dirs, want 2", len(outs))
	}
	// Sub-package installs copy into the library dir as they go.
	for _, name := range []string{"a.bin", "b.bin"} {
		if _, err := os.Stat(filepath.Join(eng.Config().LibDir, name)); err != nil {
			t.Errorf("sub-package artifact %s not installed: %v", name, err)
		}
	}
}

func TestInstallArtifactsMatchOutputListings(t *testing.T) {
	stubRustc(t)
	eng := newTestEngine(t)
	b := New(eng, noDeps)

	pkg := t.TempDir()
	writePackage(t, pkg, `
subpackages = ["one", "two"]
`)
	writePackage(t, filepath.Join(pkg, "one"), `
[build]
crate_type = "binary"
crate_root = "one.rs"
`, "one.rs")
	writePackage(t, filepath.Join(pkg, "two"), `
[build]
crate_type = "binary"
crate_root = "two.rs"
`, "two.rs")

	var artifacts, outs []string
	err := engine.InDir(pkg, func() error {
		desc, err := descriptor.Load(".")
		if err != nil {
			return err
		}
		artifacts, outs, err = b.install(context.Background(), desc, nil)
		return err
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	var want []string
	for _, dir := range outs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				want = append(want, e.Name())
			}
		}
	}
	if !slices.Equal(artifacts, want) {
		t.Errorf("artifacts = %v, want concatenated listings %v", artifacts, want)
	}
}
