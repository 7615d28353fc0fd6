// Package cargo applies resolved linker and parallelism settings to a
// project's .cargo/config.toml without ever destroying user content.
// Existing files are edited through a format-preserving document model,
// writes are atomic, backups rotate with bounded retention, and the whole
// mutation runs under an advisory file lock so concurrent invocations
// cannot corrupt the file or race on backup slots.
package cargo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/jamesainslie/buildtune/pkg/buildtune/config"
	"github.com/jamesainslie/buildtune/pkg/buildtune/linker"
	"github.com/jamesainslie/buildtune/pkg/buildtune/logging"
)

// ConfigRelPath is the target file path relative to a project root.
const ConfigRelPath = ".cargo/config.toml"

// Lock acquisition bound. A caller that cannot acquire the lock in this
// window gets ErrLockTimeout rather than blocking indefinitely.
const (
	lockTimeout       = 3 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// ErrLockTimeout is returned when the config file lock cannot be acquired
// in time. The condition is retryable: no partial state is left on disk.
var ErrLockTimeout = errors.New("config file is locked by another process")

// Outcome classifies what an Apply call did.
type Outcome int

// Apply outcomes.
const (
	// OutcomeCreated means the target file did not exist and was created.
	OutcomeCreated Outcome = iota

	// OutcomeMerged means the new settings were merged into an existing
	// file, preserving unrelated content.
	OutcomeMerged

	// OutcomeNoOp means the file already matches the intended settings.
	OutcomeNoOp

	// OutcomeSkippedWithWarning means a conflicting linker directive was
	// found and the file was left untouched.
	OutcomeSkippedWithWarning
)

// String returns the outcome tag.
func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeMerged:
		return "merged"
	case OutcomeNoOp:
		return "noop"
	case OutcomeSkippedWithWarning:
		return "skipped-with-warning"
	default:
		return "unknown"
	}
}

// Plan is the input to Apply: the settings to put on disk.
type Plan struct {
	// Linker is the detected linker selection. The sentinel "none"
	// selection leaves linker directives alone and only manages jobs.
	Linker linker.Selection

	// Jobs is the build-wide job count written to [build]. Zero means
	// do not manage the jobs setting.
	Jobs int

	// ProfileJobs carries the resolved per-profile job counts into the
	// structured result for collaborators; it does not affect the file.
	ProfileJobs map[string]int
}

// Result is the structured outcome of an Apply call.
type Result struct {
	Outcome Outcome

	// Linker is the chosen linker name, or "none".
	Linker string

	// ProfileJobs is the per-profile resolved job counts.
	ProfileJobs map[string]int

	// BackupsTouched lists backup files created or evicted.
	BackupsTouched []string

	// Content is the file content that was (or, in dry-run, would be)
	// written. Empty for NoOp and SkippedWithWarning.
	Content string

	// Warning explains a SkippedWithWarning outcome.
	Warning string
}

// Applier mutates one target configuration file.
type Applier struct {
	// Path is the target file, normally <project>/.cargo/config.toml.
	Path string

	// Backup controls backup rotation before destructive writes.
	Backup config.BackupSettings

	// DryRun computes the decision and would-be content without
	// touching the filesystem.
	DryRun bool
}

// NewApplier returns an Applier for the project's .cargo/config.toml.
func NewApplier(projectDir string, backup config.BackupSettings) *Applier {
	return &Applier{
		Path:   filepath.Join(projectDir, ConfigRelPath),
		Backup: backup,
	}
}

// Apply runs the mutation state machine: absent file creates, missing
// directive merges, matching directive no-ops, conflicting directive
// skips with a warning. Writes happen under an exclusive advisory lock
// and go through backup rotation plus an atomic replace. Fail-closed: any
// error aborts before the file is touched.
func (a *Applier) Apply(ctx context.Context, plan Plan) (*Result, error) {
	logger := logging.Get("cargo")

	dec, err := a.decide(plan)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Outcome:     dec.outcome,
		Linker:      plan.Linker.Name,
		ProfileJobs: plan.ProfileJobs,
		Warning:     dec.warning,
	}

	switch dec.outcome {
	case OutcomeNoOp:
		logger.Debug("config already up to date", "path", a.Path)
		return result, nil
	case OutcomeSkippedWithWarning:
		logger.Warn(dec.warning, "path", a.Path)
		return result, nil
	}

	result.Content = dec.content
	if a.DryRun {
		logger.Info("dry run, skipping write", "path", a.Path, "outcome", dec.outcome)
		return result, nil
	}

	// The lock file lives next to the target, so the directory must
	// exist before the lock can be taken.
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(a.Path), err)
	}

	fl := flock.New(a.Path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil || !locked {
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquiring lock on %s: %w", a.Path, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, a.Path)
	}
	defer func() {
		_ = fl.Unlock()
	}()

	// The file may have changed while we waited for the lock: another
	// invocation can have applied the same plan already. Recompute so
	// concurrent callers converge on one write.
	dec, err = a.decide(plan)
	if err != nil {
		return nil, err
	}
	result.Outcome = dec.outcome
	result.Warning = dec.warning
	result.Content = dec.content

	switch dec.outcome {
	case OutcomeNoOp:
		return result, nil
	case OutcomeSkippedWithWarning:
		logger.Warn(dec.warning, "path", a.Path)
		return result, nil
	}

	if a.Backup.AutoBackup && dec.outcome == OutcomeMerged {
		touched, err := rotateBackups(a.Path, a.Backup)
		if err != nil {
			return nil, fmt.Errorf("backup before write: %w", err)
		}
		result.BackupsTouched = touched
	}

	if err := a.writeAtomic(dec.content); err != nil {
		return nil, err
	}

	logger.Info("config updated",
		"path", a.Path,
		"outcome", dec.outcome,
		"linker", plan.Linker.Name,
		"jobs", plan.Jobs)

	return result, nil
}

// decision is the computed action for one Apply call.
type decision struct {
	outcome Outcome
	content string
	warning string
}

// decide reads the current file state and computes the state-machine
// action without performing any writes.
func (a *Applier) decide(plan Plan) (decision, error) {
	raw, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return decision{outcome: OutcomeCreated, content: a.renderNew(plan)}, nil
		}
		return decision{}, fmt.Errorf("reading %s: %w", a.Path, err)
	}

	doc, err := parseDocument(raw)
	if err != nil {
		return decision{}, fmt.Errorf("%s: %w", a.Path, err)
	}

	changed := false

	if !plan.Linker.None() {
		sectionName := "target." + plan.Linker.Triple
		if sec, ok := doc.findSection(sectionName); ok {
			if existing, has := doc.keyValue(sec, "linker"); has {
				if existing != plan.Linker.Name {
					return decision{
						outcome: OutcomeSkippedWithWarning,
						warning: fmt.Sprintf(
							"existing linker %q for %s conflicts with detected %q, leaving file unchanged",
							existing, plan.Linker.Triple, plan.Linker.Name),
					}, nil
				}
			} else {
				doc.insertKey(sec, fmt.Sprintf("linker = %q", plan.Linker.Name))
				changed = true
			}
		} else {
			doc.appendSection("["+sectionName+"]", fmt.Sprintf("linker = %q", plan.Linker.Name))
			changed = true
		}
	}

	if plan.Jobs > 0 {
		// An existing jobs value is user intent, not a conflict; only a
		// missing key is filled in.
		if sec, ok := doc.findSection("build"); ok {
			if _, has := doc.keyValue(sec, "jobs"); !has {
				doc.insertKey(sec, fmt.Sprintf("jobs = %d", plan.Jobs))
				changed = true
			}
		} else {
			doc.appendSection("[build]", fmt.Sprintf("jobs = %d", plan.Jobs))
			changed = true
		}
	}

	if !changed {
		return decision{outcome: OutcomeNoOp}, nil
	}
	return decision{outcome: OutcomeMerged, content: doc.render()}, nil
}

// renderNew renders a complete config file for the absent-file case.
func (a *Applier) renderNew(plan Plan) string {
	doc := newDocument("# Generated by buildtune " + config.Version + "\n")
	if plan.Jobs > 0 {
		doc.appendSection("[build]", fmt.Sprintf("jobs = %d", plan.Jobs))
	}
	if !plan.Linker.None() {
		doc.appendSection(
			"[target."+plan.Linker.Triple+"]",
			fmt.Sprintf("linker = %q", plan.Linker.Name),
		)
	}
	return doc.render()
}

// writeAtomic writes content via a temp file in the target directory and
// renames it into place, so a crash mid-write never leaves a truncated
// file.
func (a *Applier) writeAtomic(content string) error {
	dir := filepath.Dir(a.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, a.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", a.Path, err)
	}
	return nil
}
