package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/buildtune/pkg/buildtune/cargo"
	"github.com/jamesainslie/buildtune/pkg/buildtune/config"
	"github.com/jamesainslie/buildtune/pkg/buildtune/hardware"
	"github.com/jamesainslie/buildtune/pkg/buildtune/linker"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply tuned linker and parallelism settings to .cargo/config.toml",
	RunE:  runApply,
}

func runApply(cmd *cobra.Command, _ []string) error {
	if err := initLogging(); err != nil {
		return err
	}
	ctx := cmd.Context()

	cfg, err := config.Resolve(resolveOptions())
	if err != nil {
		return err
	}

	hw := hardware.Detect(ctx)
	if cfg.Global.AutoDetectHardware {
		cfg.ApplyHardwareOptimizations(hw)
	}

	selection := linker.DetectBest(ctx)

	jobs := 0
	if profileJobs := cfg.EffectiveProfile().Jobs; profileJobs != nil {
		jobs = *profileJobs
	}

	applier := cargo.NewApplier(flagBaseDir, cfg.Backup)
	applier.DryRun = flagDryRun

	result, err := applier.Apply(ctx, cargo.Plan{
		Linker:      selection,
		Jobs:        jobs,
		ProfileJobs: cfg.ResolvedJobs(),
	})
	if err != nil {
		return err
	}

	printResult(cmd, result, flagDryRun)
	return nil
}

// printResult renders the structured apply result for the terminal.
func printResult(cmd *cobra.Command, result *cargo.Result, dryRun bool) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "outcome: %s\n", result.Outcome)
	fmt.Fprintf(out, "linker:  %s\n", result.Linker)

	names := make([]string, 0, len(result.ProfileJobs))
	for name := range result.ProfileJobs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "jobs[%s]: %d\n", name, result.ProfileJobs[name])
	}

	for _, backup := range result.BackupsTouched {
		fmt.Fprintf(out, "backup:  %s\n", backup)
	}
	if result.Warning != "" {
		fmt.Fprintf(out, "warning: %s\n", result.Warning)
	}
	if dryRun && result.Content != "" {
		fmt.Fprintf(out, "\n--- would write ---\n%s", result.Content)
	}
}
