package main

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/buildtune/pkg/buildtune/config"
	"github.com/jamesainslie/buildtune/pkg/buildtune/hardware"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the effective layered configuration",
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, _ []string) error {
	if err := initLogging(); err != nil {
		return err
	}

	cfg, err := config.Resolve(resolveOptions())
	if err != nil {
		return err
	}

	if cfg.Global.AutoDetectHardware {
		cfg.ApplyHardwareOptimizations(hardware.Detect(cmd.Context()))
	}

	rendered, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s", rendered)
	return nil
}
