package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/buildtune/pkg/buildtune/config"
	"github.com/jamesainslie/buildtune/pkg/buildtune/logging"
)

var (
	flagBaseDir    string
	flagProfile    string
	flagEnvPrefix  string
	flagUserConfig string
	flagDryRun     bool
	flagVerbose    bool
	flagQuiet      bool

	rootCmd = &cobra.Command{
		Use:   "buildtune",
		Short: "Tune Cargo build configuration for this machine",
		Long: `Buildtune inspects the host hardware and installed linkers, resolves a
layered build configuration, and safely rewrites .cargo/config.toml to
select a faster linker and appropriate parallelism.

Examples:
  buildtune apply                 # Tune the current project
  buildtune apply -C ~/src/app    # Tune a specific project
  buildtune apply --dry-run       # Show what would change
  buildtune apply -p release      # Tune for the release profile
  buildtune detect                # Show hardware and linker facts
  buildtune resolve               # Print the effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagBaseDir, "dir", "C", ".", "project directory")
	rootCmd.PersistentFlags().StringVarP(&flagProfile, "profile", "p", "", "profile override (dev, test, release, bench)")
	rootCmd.PersistentFlags().StringVar(&flagEnvPrefix, "env-prefix", config.DefaultEnvPrefix, "environment variable prefix")
	rootCmd.PersistentFlags().StringVar(&flagUserConfig, "user-config", config.DefaultUserConfigPath(), "user-level config file (empty to disable)")
	rootCmd.PersistentFlags().BoolVarP(&flagDryRun, "dry-run", "n", false, "compute changes without writing")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "errors only")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(resolveCmd)
}

// initLogging configures logging from flags before any command runs.
func initLogging() error {
	level := "info"
	if flagVerbose {
		level = "debug"
	}
	return logging.Init(logging.Config{Level: level, Quiet: flagQuiet})
}

// resolveOptions builds the resolver inputs from flags.
func resolveOptions() config.Options {
	return config.Options{
		BaseDir:        flagBaseDir,
		UserConfigPath: flagUserConfig,
		EnvPrefix:      flagEnvPrefix,
		Profile:        flagProfile,
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
