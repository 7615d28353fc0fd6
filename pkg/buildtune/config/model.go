// Package config defines the buildtune configuration model and resolves
// the effective configuration from layered sources: built-in defaults, an
// optional project file, environment variables, and a requested profile.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Version is the buildtune tool version recorded in config metadata.
const Version = "0.3.0"

// Canonical profile names. Default construction always creates exactly
// these four profiles.
const (
	ProfileDev     = "dev"
	ProfileTest    = "test"
	ProfileRelease = "release"
	ProfileBench   = "bench"
)

// OptLevel is the optimization aggressiveness for hardware tuning.
// It is a closed enumeration: unknown literals fail to parse.
type OptLevel string

// Valid optimization levels.
const (
	OptConservative OptLevel = "conservative"
	OptBalanced     OptLevel = "balanced"
	OptAggressive   OptLevel = "aggressive"
)

// UnmarshalText implements encoding.TextUnmarshaler, rejecting unknown
// literals rather than defaulting silently.
func (o *OptLevel) UnmarshalText(text []byte) error {
	switch OptLevel(text) {
	case OptConservative, OptBalanced, OptAggressive:
		*o = OptLevel(text)
		return nil
	default:
		return fmt.Errorf("invalid optimization level %q", string(text))
	}
}

// CacheKind selects the compilation cache backend.
// It is a closed enumeration: unknown literals fail to parse.
type CacheKind string

// Valid cache kinds.
const (
	CacheLocal   CacheKind = "local"
	CacheSccache CacheKind = "sccache"
	CacheNone    CacheKind = "none"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CacheKind) UnmarshalText(text []byte) error {
	switch CacheKind(text) {
	case CacheLocal, CacheSccache, CacheNone:
		*c = CacheKind(text)
		return nil
	default:
		return fmt.Errorf("invalid cache kind %q", string(text))
	}
}

// GlobalSettings holds tool-wide settings shared by all profiles.
type GlobalSettings struct {
	OptLevel           OptLevel          `mapstructure:"opt_level" toml:"opt_level"`
	AutoDetectHardware bool              `mapstructure:"auto_detect_hardware" toml:"auto_detect_hardware"`
	Verbosity          string            `mapstructure:"verbosity" toml:"verbosity"`
	CacheEnabled       bool              `mapstructure:"cache_enabled" toml:"cache_enabled"`
	Env                map[string]string `mapstructure:"env" toml:"env,omitempty"`
}

// CacheSettings configures the per-profile compilation cache.
type CacheSettings struct {
	Enabled   bool      `mapstructure:"enabled" toml:"enabled"`
	Kind      CacheKind `mapstructure:"kind" toml:"kind"`
	MaxSizeMB int       `mapstructure:"max_size_mb" toml:"max_size_mb"`
}

// Profile is a named group of build settings.
type Profile struct {
	Name        string        `mapstructure:"-" toml:"-"`
	Jobs        *int          `mapstructure:"jobs" toml:"jobs,omitempty"`
	JobsPercent string        `mapstructure:"jobs_percent" toml:"jobs_percent,omitempty"`
	Incremental bool          `mapstructure:"incremental" toml:"incremental"`
	ExtraFlags  []string      `mapstructure:"extra_flags" toml:"extra_flags,omitempty"`
	Cache       CacheSettings `mapstructure:"cache" toml:"cache"`
}

// BackupSettings controls backup creation during config mutation.
type BackupSettings struct {
	AutoBackup bool   `mapstructure:"auto_backup" toml:"auto_backup"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	Dir        string `mapstructure:"dir" toml:"dir,omitempty"`
}

// Metadata records provenance for a resolved configuration.
type Metadata struct {
	Version   string    `mapstructure:"version" toml:"version"`
	CreatedAt time.Time `mapstructure:"created_at" toml:"created_at"`
	Platform  string    `mapstructure:"platform" toml:"platform"`
}

// Config is the resolved buildtune configuration.
type Config struct {
	Global        GlobalSettings     `mapstructure:"global" toml:"global"`
	Profiles      map[string]Profile `mapstructure:"profiles" toml:"profiles"`
	Backup        BackupSettings     `mapstructure:"backup" toml:"backup"`
	Meta          Metadata           `mapstructure:"meta" toml:"meta"`
	ActiveProfile string             `mapstructure:"active_profile" toml:"active_profile"`
}

// Default returns the built-in configuration: balanced settings and
// exactly the four canonical profiles.
func Default() *Config {
	return &Config{
		Global: GlobalSettings{
			OptLevel:           OptBalanced,
			AutoDetectHardware: true,
			Verbosity:          "info",
			CacheEnabled:       true,
			Env:                map[string]string{},
		},
		Profiles: map[string]Profile{
			ProfileDev: {
				Name:        ProfileDev,
				Incremental: true,
				Cache:       CacheSettings{Enabled: true, Kind: CacheLocal, MaxSizeMB: 2048},
			},
			ProfileTest: {
				Name:        ProfileTest,
				Incremental: true,
				Cache:       CacheSettings{Enabled: true, Kind: CacheLocal, MaxSizeMB: 2048},
			},
			ProfileRelease: {
				Name:        ProfileRelease,
				Incremental: false,
				Cache:       CacheSettings{Enabled: false, Kind: CacheNone},
			},
			ProfileBench: {
				Name:        ProfileBench,
				Incremental: false,
				Cache:       CacheSettings{Enabled: false, Kind: CacheNone},
			},
		},
		Backup: BackupSettings{
			AutoBackup: true,
			MaxBackups: 5,
		},
		Meta: Metadata{
			Version:   Version,
			CreatedAt: time.Now().UTC(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		ActiveProfile: ProfileDev,
	}
}

// EffectiveProfile returns the active profile. The active profile always
// exists: Resolve validates requested names against the profile map.
func (c *Config) EffectiveProfile() Profile {
	return c.Profiles[c.ActiveProfile]
}
