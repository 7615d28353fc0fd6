package cargo_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/buildtune/pkg/buildtune/cargo"
	"github.com/jamesainslie/buildtune/pkg/buildtune/config"
	"github.com/jamesainslie/buildtune/pkg/buildtune/linker"
)

var testSelection = linker.Selection{Name: "lld", Triple: "x86_64-unknown-linux-gnu"}

func testPlan() cargo.Plan {
	return cargo.Plan{
		Linker:      testSelection,
		Jobs:        8,
		ProfileJobs: map[string]int{"dev": 8, "release": 8, "test": 8, "bench": 16},
	}
}

func newTestApplier(t *testing.T) *cargo.Applier {
	t.Helper()
	return cargo.NewApplier(t.TempDir(), config.BackupSettings{AutoBackup: true, MaxBackups: 5})
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func requireValidTOML(t *testing.T, content string) {
	t.Helper()
	var doc map[string]any
	require.NoError(t, toml.Unmarshal([]byte(content), &doc), "file must stay valid TOML:\n%s", content)
}

// The full scenario: create, no-op on repeat, skip on conflict.
func TestApply_Scenario(t *testing.T) {
	applier := newTestApplier(t)
	ctx := context.Background()

	// Fresh project: file is created with the target section
	result, err := applier.Apply(ctx, testPlan())
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeCreated, result.Outcome)
	assert.Equal(t, "lld", result.Linker)

	content := readFile(t, applier.Path)
	requireValidTOML(t, content)
	assert.Contains(t, content, "[target.x86_64-unknown-linux-gnu]")
	assert.Contains(t, content, `linker = "lld"`)
	assert.Contains(t, content, "jobs = 8")

	// Second apply: byte-identical content, NoOp
	result, err = applier.Apply(ctx, testPlan())
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeNoOp, result.Outcome)
	assert.Equal(t, content, readFile(t, applier.Path))

	// Conflicting directive: file untouched, warning surfaced
	conflicted := strings.Replace(content, `linker = "lld"`, `linker = "other"`, 1)
	require.NoError(t, os.WriteFile(applier.Path, []byte(conflicted), 0o644))

	result, err = applier.Apply(ctx, testPlan())
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeSkippedWithWarning, result.Outcome)
	assert.NotEmpty(t, result.Warning)
	assert.Equal(t, conflicted, readFile(t, applier.Path))
}

func TestApply_MergePreservesUserContent(t *testing.T) {
	applier := newTestApplier(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(applier.Path), 0o755))

	existing := `# my cargo settings
[net]
git-fetch-with-cli = true   # corporate proxy needs this

[profile.release]
lto = "thin"
`
	require.NoError(t, os.WriteFile(applier.Path, []byte(existing), 0o644))

	result, err := applier.Apply(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeMerged, result.Outcome)

	content := readFile(t, applier.Path)
	requireValidTOML(t, content)

	// Every original line survives byte-for-byte
	for _, line := range strings.Split(strings.TrimSuffix(existing, "\n"), "\n") {
		assert.Contains(t, content, line)
	}
	assert.Contains(t, content, `linker = "lld"`)
	assert.Contains(t, content, "jobs = 8")
}

func TestApply_MergeIntoExistingTargetSection(t *testing.T) {
	applier := newTestApplier(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(applier.Path), 0o755))

	existing := `[target.x86_64-unknown-linux-gnu]
rustflags = ["-C", "target-cpu=native"]
`
	require.NoError(t, os.WriteFile(applier.Path, []byte(existing), 0o644))

	result, err := applier.Apply(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeMerged, result.Outcome)

	content := readFile(t, applier.Path)
	requireValidTOML(t, content)
	assert.Contains(t, content, `rustflags = ["-C", "target-cpu=native"]`)
	assert.Contains(t, content, `linker = "lld"`)
	// Only one target section
	assert.Equal(t, 1, strings.Count(content, "[target.x86_64-unknown-linux-gnu]"))
}

func TestApply_ExistingJobsValueIsLeftAlone(t *testing.T) {
	applier := newTestApplier(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(applier.Path), 0o755))
	require.NoError(t, os.WriteFile(applier.Path, []byte("[build]\njobs = 2\n"), 0o644))

	result, err := applier.Apply(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeMerged, result.Outcome, "linker section still gets added")

	content := readFile(t, applier.Path)
	assert.Contains(t, content, "jobs = 2")
	assert.NotContains(t, content, "jobs = 8")
}

func TestApply_MalformedFileAbortsUntouched(t *testing.T) {
	applier := newTestApplier(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(applier.Path), 0o755))

	malformed := "[build\njobs ="
	require.NoError(t, os.WriteFile(applier.Path, []byte(malformed), 0o644))

	_, err := applier.Apply(context.Background(), testPlan())
	require.Error(t, err)
	assert.Equal(t, malformed, readFile(t, applier.Path), "malformed file must be left untouched")
}

func TestApply_DryRun(t *testing.T) {
	applier := newTestApplier(t)
	applier.DryRun = true

	result, err := applier.Apply(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeCreated, result.Outcome)
	assert.Contains(t, result.Content, `linker = "lld"`)

	_, statErr := os.Stat(applier.Path)
	assert.True(t, os.IsNotExist(statErr), "dry run must not write the file")
}

func TestApply_NoneSelectionManagesOnlyJobs(t *testing.T) {
	applier := newTestApplier(t)
	plan := cargo.Plan{
		Linker: linker.Selection{Name: linker.NoneName, Triple: "x86_64-unknown-linux-gnu"},
		Jobs:   4,
	}

	result, err := applier.Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeCreated, result.Outcome)

	content := readFile(t, applier.Path)
	requireValidTOML(t, content)
	assert.Contains(t, content, "jobs = 4")
	assert.NotContains(t, content, "linker")
}

func TestApply_BackupBound(t *testing.T) {
	applier := newTestApplier(t)
	ctx := context.Background()

	_, err := applier.Apply(ctx, testPlan())
	require.NoError(t, err)

	// Force a fresh merge each round by stripping the managed lines
	for i := 0; i < 9; i++ {
		content := readFile(t, applier.Path)
		var kept []string
		for _, line := range strings.Split(content, "\n") {
			if strings.Contains(line, "linker =") || strings.Contains(line, "jobs =") {
				continue
			}
			kept = append(kept, line)
		}
		// Tag the snapshot so each backup is a distinct prior state
		stripped := strings.Join(kept, "\n") + fmt.Sprintf("# round %d\n", i)
		require.NoError(t, os.WriteFile(applier.Path, []byte(stripped), 0o644))

		result, err := applier.Apply(ctx, testPlan())
		require.NoError(t, err)
		require.Equal(t, cargo.OutcomeMerged, result.Outcome)
		require.NotEmpty(t, result.BackupsTouched)
	}

	// At most MaxBackups numbered backups remain
	var backups []string
	entries, err := os.ReadDir(filepath.Dir(applier.Path))
	require.NoError(t, err)
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".backup") {
			backups = append(backups, entry.Name())
		}
	}
	assert.LessOrEqual(t, len(backups), 5)
	assert.Contains(t, backups, "config.toml.backup")

	// FIFO: the oldest surviving backup is from a later round than the
	// evicted ones
	oldest := readFile(t, applier.Path+".backup")
	assert.Contains(t, oldest, "# round 4")
}

func TestApply_BackupsDisabled(t *testing.T) {
	dir := t.TempDir()
	applier := cargo.NewApplier(dir, config.BackupSettings{AutoBackup: false})
	ctx := context.Background()

	_, err := applier.Apply(ctx, testPlan())
	require.NoError(t, err)

	// Strip managed lines to force a merge
	content := readFile(t, applier.Path)
	stripped := strings.ReplaceAll(content, `linker = "lld"`, "")
	require.NoError(t, os.WriteFile(applier.Path, []byte(stripped), 0o644))

	result, err := applier.Apply(ctx, testPlan())
	require.NoError(t, err)
	assert.Equal(t, cargo.OutcomeMerged, result.Outcome)
	assert.Empty(t, result.BackupsTouched)

	_, statErr := os.Stat(applier.Path + ".backup")
	assert.True(t, os.IsNotExist(statErr))
}

// A held lock must surface ErrLockTimeout without leaving any state on
// disk: no target file, no backups, no stray temp files.
func TestApply_LockHeldByAnotherCaller(t *testing.T) {
	applier := newTestApplier(t)
	dir := filepath.Dir(applier.Path)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	holder := flock.New(applier.Path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() {
		require.NoError(t, holder.Unlock())
	}()

	_, err = applier.Apply(context.Background(), testPlan())
	require.Error(t, err)
	assert.ErrorIs(t, err, cargo.ErrLockTimeout)

	// Nothing was written while waiting on the lock
	_, statErr := os.Stat(applier.Path)
	assert.True(t, os.IsNotExist(statErr), "target must not exist after lock timeout")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Equal(t, filepath.Base(applier.Path)+".lock", entry.Name(),
			"no partial state besides the lock file, found %s", entry.Name())
	}
}

// A backup failure aborts the apply before any destructive step.
func TestApply_BackupFailureAbortsBeforeWrite(t *testing.T) {
	dir := t.TempDir()

	// A regular file where the backup directory should go makes
	// MkdirAll fail inside the backup step.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory\n"), 0o644))

	applier := cargo.NewApplier(dir, config.BackupSettings{
		AutoBackup: true,
		MaxBackups: 5,
		Dir:        filepath.Join(blocker, "backups"),
	})
	require.NoError(t, os.MkdirAll(filepath.Dir(applier.Path), 0o755))

	// Existing file without a linker directive forces a Merged outcome,
	// which is the only path that takes a backup.
	existing := "[profile.release]\nlto = \"thin\"\n"
	require.NoError(t, os.WriteFile(applier.Path, []byte(existing), 0o644))

	_, err := applier.Apply(context.Background(), testPlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup")

	assert.Equal(t, existing, readFile(t, applier.Path), "target must be untouched after backup failure")
}

// Concurrency safety: N concurrent applies to the same fresh file
// converge on exactly one write, and the file stays valid TOML.
func TestApply_ConcurrentCallersConverge(t *testing.T) {
	dir := t.TempDir()
	backup := config.BackupSettings{AutoBackup: true, MaxBackups: 5}
	ctx := context.Background()

	const n = 8
	outcomes := make([]cargo.Outcome, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			applier := cargo.NewApplier(dir, backup)
			result, err := applier.Apply(ctx, testPlan())
			if err != nil {
				errs[i] = err
				return
			}
			outcomes[i] = result.Outcome
		}(i)
	}
	wg.Wait()

	writes := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "caller %d", i)
		if outcomes[i] == cargo.OutcomeCreated || outcomes[i] == cargo.OutcomeMerged {
			writes++
		}
	}
	assert.Equal(t, 1, writes, "exactly one caller should write; outcomes: %v", outcomes)

	content := readFile(t, filepath.Join(dir, cargo.ConfigRelPath))
	requireValidTOML(t, content)
	assert.Equal(t, 1, strings.Count(content, `linker = "lld"`))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "created", cargo.OutcomeCreated.String())
	assert.Equal(t, "merged", cargo.OutcomeMerged.String())
	assert.Equal(t, "noop", cargo.OutcomeNoOp.String())
	assert.Equal(t, "skipped-with-warning", cargo.OutcomeSkippedWithWarning.String())
}
