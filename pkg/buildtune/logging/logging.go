// Package logging provides the shared logging system for buildtune.
// All components obtain a named logger through Get, so log output can be
// filtered per component.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	logger := logging.Get("hardware")
//	logger.Info("detection complete", "cores", 16)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// toCharmLevel converts our Level to charmbracelet/log level.
func (l Level) toCharmLevel() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelInfo:
		return log.InfoLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Quiet suppresses everything below error.
	Quiet bool

	// Components maps component names to their log levels,
	// overriding the default level per component.
	Components map[string]string
}

// state holds the global logging state.
type state struct {
	mu          sync.RWMutex
	initialized bool
	level       Level
	components  map[string]Level
	loggers     map[string]*log.Logger
	out         io.Writer
}

var globalState = &state{
	components: make(map[string]Level),
	loggers:    make(map[string]*log.Logger),
	out:        os.Stderr,
}

// Init initializes the logging system with the given configuration.
// Before Init is called, loggers write at info level to stderr.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	if cfg.Quiet {
		level = LevelError
	}
	globalState.level = level

	globalState.components = make(map[string]Level)
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %q: %w", comp, err)
		}
		globalState.components[comp] = parsed
	}

	// Drop cached loggers so new levels take effect
	globalState.loggers = make(map[string]*log.Logger)
	globalState.initialized = true

	return nil
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()
	globalState.out = w
	globalState.loggers = make(map[string]*log.Logger)
}

// Get returns a logger for the given component. Loggers are cached
// per component name.
func Get(component string) *log.Logger {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}

	level := globalState.level
	if compLevel, ok := globalState.components[component]; ok {
		level = compLevel
	}

	logger := log.NewWithOptions(globalState.out, log.Options{
		ReportTimestamp: true,
		Prefix:          component,
	})
	logger.SetLevel(level.toCharmLevel())

	globalState.loggers[component] = logger
	return logger
}
