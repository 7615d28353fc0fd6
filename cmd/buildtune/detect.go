package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/buildtune/pkg/buildtune/hardware"
	"github.com/jamesainslie/buildtune/pkg/buildtune/linker"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show detected hardware and the best available linker",
	RunE:  runDetect,
}

func runDetect(cmd *cobra.Command, _ []string) error {
	if err := initLogging(); err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	hw := hardware.Detect(ctx)
	fmt.Fprintf(out, "cpu:     %s\n", hw.CPUModel)
	fmt.Fprintf(out, "cores:   %d logical, %d physical\n", hw.LogicalCores, hw.PhysicalCores)
	fmt.Fprintf(out, "memory:  %s total, %s available\n",
		humanize.IBytes(hw.TotalMemory), humanize.IBytes(hw.AvailMemory))
	fmt.Fprintf(out, "os:      %s/%s\n", hw.OS, hw.Arch)
	for _, d := range hw.Disks {
		fmt.Fprintf(out, "disk:    %s (%s) %s free of %s\n",
			d.Mountpoint, d.Filesystem, humanize.IBytes(d.Free), humanize.IBytes(d.Total))
	}
	fmt.Fprintf(out, "jobs:    %d recommended\n", hw.RecommendedParallelism())

	selection := linker.DetectBest(ctx)
	fmt.Fprintf(out, "linker:  %s (%s)\n", selection.Name, selection.Triple)

	if !selection.None() {
		fragment, err := linker.GenerateConfig(selection.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s", fragment)
	}
	return nil
}
