package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/jamesainslie/buildtune/pkg/buildtune/cargo"
	"github.com/spf13/cobra"
)

func TestPrintResult(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	result := &cargo.Result{
		Outcome:        cargo.OutcomeMerged,
		Linker:         "mold",
		ProfileJobs:    map[string]int{"dev": 8, "bench": 16},
		BackupsTouched: []string{"/tmp/config.toml.backup"},
	}
	printResult(cmd, result, false)

	out := buf.String()
	for _, want := range []string{
		"outcome: merged",
		"linker:  mold",
		"jobs[bench]: 16",
		"jobs[dev]: 8",
		"backup:  /tmp/config.toml.backup",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintResult_DryRunShowsContent(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	result := &cargo.Result{
		Outcome: cargo.OutcomeCreated,
		Linker:  "lld",
		Content: "[build]\njobs = 4\n",
	}
	printResult(cmd, result, true)

	if !strings.Contains(buf.String(), "would write") {
		t.Errorf("dry-run output missing content preview:\n%s", buf.String())
	}
}

func TestApplyCommand_DryRunAgainstTempProject(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"apply", "--dry-run", "-C", dir, "--user-config", "", "-q"})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("apply --dry-run error = %v", err)
	}

	if !strings.Contains(buf.String(), "outcome: created") {
		t.Errorf("expected created outcome for fresh project:\n%s", buf.String())
	}
}
