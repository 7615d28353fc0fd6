package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jamesainslie/buildtune/pkg/buildtune/logging"
)

// ConfigFileName is the project-level configuration file name looked up
// in Options.BaseDir.
const ConfigFileName = "buildtune.toml"

// DefaultEnvPrefix is the environment variable prefix used when
// Options.EnvPrefix is empty.
const DefaultEnvPrefix = "BUILDTUNE"

// Options are the explicit inputs to Resolve. Resolution never consults
// the process working directory: every source is named here, which keeps
// concurrent resolution from different logical projects deterministic.
type Options struct {
	// BaseDir is the project directory searched for ConfigFileName.
	// Required.
	BaseDir string

	// UserConfigPath is an optional user-level config file merged below
	// the project file. Empty means no user-level file.
	UserConfigPath string

	// EnvPrefix is the environment variable prefix. Nested keys use a
	// double-underscore separator: BUILDTUNE_GLOBAL__AUTO_DETECT_HARDWARE.
	// Empty means DefaultEnvPrefix.
	EnvPrefix string

	// Profile is the requested profile override, the highest-precedence
	// layer. Empty keeps the default active profile.
	Profile string
}

// DefaultUserConfigPath returns the user-level config file location under
// the XDG config home. Callers pass it to Options.UserConfigPath when they
// want user-level settings merged in.
func DefaultUserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "buildtune", ConfigFileName)
}

// Resolve merges configuration sources in strict precedence order, lowest
// to highest: built-in defaults, the optional user-level file, the
// optional project file, environment variables, and the requested profile
// override. It is a pure function of its options: a fresh viper instance
// per call, no global state, no ambient working directory.
func Resolve(opts Options) (*Config, error) {
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("resolve: base directory is required")
	}

	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	if opts.UserConfigPath != "" {
		if err := mergeFile(v, opts.UserConfigPath); err != nil {
			return nil, fmt.Errorf("user config %s: %w", opts.UserConfigPath, err)
		}
	}

	projectPath := filepath.Join(opts.BaseDir, ConfigFileName)
	if err := mergeFile(v, projectPath); err != nil {
		return nil, fmt.Errorf("project config %s: %w", projectPath, err)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Restore invariants the unmarshal cannot express: canonical profiles
	// always exist and each profile knows its own name.
	ensureCanonicalProfiles(cfg)

	if opts.Profile != "" {
		if _, ok := cfg.Profiles[opts.Profile]; !ok {
			return nil, fmt.Errorf("unknown profile %q", opts.Profile)
		}
		cfg.ActiveProfile = opts.Profile
	}

	logging.Get("resolver").Debug("configuration resolved",
		"base_dir", opts.BaseDir,
		"profile", cfg.ActiveProfile,
		"opt_level", cfg.Global.OptLevel)

	return cfg, nil
}

// mergeFile merges a config file into v if it exists. A missing file is
// valid; a malformed one is an error.
func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := v.MergeConfig(f); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

// decodeHook composes viper's default string conversions with text
// unmarshalling so closed enums (OptLevel, CacheKind) reject unknown
// literals instead of defaulting.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// setDefaults seeds viper with every key so AutomaticEnv can see them.
// Profile job counts are deliberately not defaulted: nil means "let
// hardware optimization decide".
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("active_profile", defaults.ActiveProfile)
	v.SetDefault("global.opt_level", string(defaults.Global.OptLevel))
	v.SetDefault("global.auto_detect_hardware", defaults.Global.AutoDetectHardware)
	v.SetDefault("global.verbosity", defaults.Global.Verbosity)
	v.SetDefault("global.cache_enabled", defaults.Global.CacheEnabled)
	v.SetDefault("backup.auto_backup", defaults.Backup.AutoBackup)
	v.SetDefault("backup.max_backups", defaults.Backup.MaxBackups)
	v.SetDefault("backup.dir", defaults.Backup.Dir)

	for name, profile := range defaults.Profiles {
		key := "profiles." + name + "."
		v.SetDefault(key+"incremental", profile.Incremental)
		v.SetDefault(key+"cache.enabled", profile.Cache.Enabled)
		v.SetDefault(key+"cache.kind", string(profile.Cache.Kind))
		v.SetDefault(key+"cache.max_size_mb", profile.Cache.MaxSizeMB)
	}
}

// ensureCanonicalProfiles guarantees the four canonical profiles exist
// after any merge and that every profile carries its map key as Name.
func ensureCanonicalProfiles(cfg *Config) {
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	defaults := Default()
	for _, name := range []string{ProfileDev, ProfileTest, ProfileRelease, ProfileBench} {
		if _, ok := cfg.Profiles[name]; !ok {
			cfg.Profiles[name] = defaults.Profiles[name]
		}
	}
	for name, profile := range cfg.Profiles {
		profile.Name = name
		cfg.Profiles[name] = profile
	}
}
