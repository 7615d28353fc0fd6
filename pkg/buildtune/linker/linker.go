// Package linker discovers faster drop-in linkers installed on the host.
// Candidates are a data table ordered by preference per OS family; each is
// probed with a short, timeout-bounded invocation. Probe failures of any
// kind mean "try the next candidate", never a hard error.
package linker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/jamesainslie/buildtune/pkg/buildtune/logging"
)

// probeTimeout is the maximum time to wait for a single linker probe.
const probeTimeout = 2 * time.Second

// NoneName is the sentinel linker name meaning no acceleration is available.
const NoneName = "none"

// ErrUnsupportedLinker is returned when a config fragment is requested for
// a linker that is not a candidate on the current platform.
var ErrUnsupportedLinker = errors.New("unsupported linker for this platform")

// Candidate describes one linker in the platform's preference order.
type Candidate struct {
	// Name is the linker's short name ("mold", "lld", ...).
	Name string

	// ProbeArgs is the command and arguments used to check the linker is
	// installed and functional.
	ProbeArgs []string

	// Triple is the target triple the linker config is scoped to.
	Triple string

	// template renders the .cargo/config.toml fragment for this linker.
	template string
}

// Selection is the result of linker detection.
type Selection struct {
	// Name is the chosen linker name, or NoneName when no candidate works.
	Name string

	// Triple is the target triple the selection applies to.
	Triple string
}

// None reports whether the selection is the "no acceleration" sentinel.
func (s Selection) None() bool {
	return s.Name == NoneName || s.Name == ""
}

// defaultTriple returns the Rust target triple for the given OS and arch.
func defaultTriple(goos, goarch string) string {
	arch := "x86_64"
	if goarch == "arm64" {
		arch = "aarch64"
	}
	switch goos {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	default:
		return arch + "-unknown-linux-gnu"
	}
}

// candidatesFor returns the ordered candidate table for an OS family and
// architecture. A pure function: the same inputs always yield the same
// table, so linker choice is testable without the host platform.
func candidatesFor(goos, goarch string) []Candidate {
	triple := defaultTriple(goos, goarch)

	switch goos {
	case "darwin":
		return []Candidate{
			{
				Name:      "lld",
				ProbeArgs: []string{"ld64.lld", "--version"},
				Triple:    triple,
				template: "[target.%s]\n" +
					"rustflags = [\"-C\", \"link-arg=-fuse-ld=lld\"]\n",
			},
			{
				Name:      "zld",
				ProbeArgs: []string{"zld", "-v"},
				Triple:    triple,
				template: "[target.%s]\n" +
					"rustflags = [\"-C\", \"link-arg=-fuse-ld=/usr/local/bin/zld\"]\n",
			},
		}
	case "windows":
		return []Candidate{
			{
				Name:      "lld",
				ProbeArgs: []string{"lld-link", "--version"},
				Triple:    triple,
				template:  "[target.%s]\nlinker = \"lld-link\"\n",
			},
		}
	default: // linux and other unixes
		return []Candidate{
			{
				Name:      "mold",
				ProbeArgs: []string{"mold", "--version"},
				Triple:    triple,
				template: "[target.%s]\n" +
					"linker = \"clang\"\n" +
					"rustflags = [\"-C\", \"link-arg=-fuse-ld=mold\"]\n",
			},
			{
				Name:      "lld",
				ProbeArgs: []string{"ld.lld", "--version"},
				Triple:    triple,
				template: "[target.%s]\n" +
					"linker = \"clang\"\n" +
					"rustflags = [\"-C\", \"link-arg=-fuse-ld=lld\"]\n",
			},
			{
				Name:      "gold",
				ProbeArgs: []string{"ld.gold", "--version"},
				Triple:    triple,
				template: "[target.%s]\n" +
					"rustflags = [\"-C\", \"link-arg=-fuse-ld=gold\"]\n",
			},
		}
	}
}

// DetectBest probes the platform's candidates in preference order and
// returns the first one that responds. It never returns an error: when no
// candidate works the result is the NoneName sentinel.
func DetectBest(ctx context.Context) Selection {
	return detectBest(ctx, runtime.GOOS, runtime.GOARCH, probeCommand)
}

// prober runs a probe invocation and reports whether it succeeded.
type prober func(ctx context.Context, args []string) bool

// detectBest is the testable core of DetectBest.
func detectBest(ctx context.Context, goos, goarch string, probe prober) Selection {
	logger := logging.Get("linker")

	for _, candidate := range candidatesFor(goos, goarch) {
		if probe(ctx, candidate.ProbeArgs) {
			logger.Info("linker selected", "name", candidate.Name, "triple", candidate.Triple)
			return Selection{Name: candidate.Name, Triple: candidate.Triple}
		}
		logger.Debug("linker candidate unavailable", "name", candidate.Name)
	}

	logger.Info("no linker acceleration available")
	return Selection{Name: NoneName, Triple: defaultTriple(goos, goarch)}
}

// probeCommand runs a candidate's probe invocation, bounded by
// probeTimeout. Any failure (binary absent, non-zero exit, timeout)
// reports false.
func probeCommand(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return false
	}

	path, err := exec.LookPath(args[0])
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args[1:]...)
	return cmd.Run() == nil
}

// GenerateConfig renders the .cargo/config.toml fragment binding the named
// linker to the current platform's default target triple. The name must be
// a candidate on the current platform.
func GenerateConfig(name string) (string, error) {
	return generateConfig(name, runtime.GOOS, runtime.GOARCH)
}

func generateConfig(name, goos, goarch string) (string, error) {
	for _, candidate := range candidatesFor(goos, goarch) {
		if candidate.Name == name {
			return fmt.Sprintf(candidate.template, candidate.Triple), nil
		}
	}
	return "", fmt.Errorf("%w: %q on %s/%s", ErrUnsupportedLinker, name, goos, goarch)
}
