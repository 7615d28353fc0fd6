package cargo

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/buildtune/pkg/buildtune/config"
)

func writeTarget(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestRotateBackups_FirstFreeSlot(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.toml")
	writeTarget(t, target, "v1\n")

	settings := config.BackupSettings{AutoBackup: true, MaxBackups: 5}

	touched, err := rotateBackups(target, settings)
	if err != nil {
		t.Fatalf("rotateBackups() error = %v", err)
	}
	if len(touched) != 1 || touched[0] != target+".backup" {
		t.Errorf("touched = %v, want [%s]", touched, target+".backup")
	}

	writeTarget(t, target, "v2\n")
	touched, err = rotateBackups(target, settings)
	if err != nil {
		t.Fatalf("rotateBackups() error = %v", err)
	}
	if touched[0] != target+".backup.1" {
		t.Errorf("second backup at %v, want %s", touched, target+".backup.1")
	}
}

func TestRotateBackups_FIFOEviction(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.toml")
	settings := config.BackupSettings{AutoBackup: true, MaxBackups: 3}

	for i := 1; i <= 5; i++ {
		writeTarget(t, target, fmt.Sprintf("v%d\n", i))
		if _, err := rotateBackups(target, settings); err != nil {
			t.Fatalf("rotateBackups() round %d error = %v", i, err)
		}
	}

	backups := listBackups(target)
	if len(backups) != 3 {
		t.Fatalf("retained %d backups, want 3: %v", len(backups), backups)
	}

	// Oldest surviving slot holds v3: v1 and v2 were evicted first
	data, err := os.ReadFile(target + ".backup")
	if err != nil {
		t.Fatalf("reading oldest backup: %v", err)
	}
	if string(data) != "v3\n" {
		t.Errorf("oldest backup = %q, want v3 (FIFO eviction)", string(data))
	}

	newest, err := os.ReadFile(target + ".backup.2")
	if err != nil {
		t.Fatalf("reading newest backup: %v", err)
	}
	if string(newest) != "v5\n" {
		t.Errorf("newest backup = %q, want v5", string(newest))
	}
}

func TestRotateBackups_SeparateDirectory(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	target := filepath.Join(dir, "config.toml")
	writeTarget(t, target, "content\n")

	settings := config.BackupSettings{AutoBackup: true, MaxBackups: 2, Dir: backupDir}

	touched, err := rotateBackups(target, settings)
	if err != nil {
		t.Fatalf("rotateBackups() error = %v", err)
	}
	want := filepath.Join(backupDir, "config.toml.backup")
	if touched[0] != want {
		t.Errorf("backup at %s, want %s", touched[0], want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("backup file missing: %v", err)
	}
}

func TestRotateBackups_MissingSource(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.toml")

	if _, err := rotateBackups(target, config.BackupSettings{MaxBackups: 3}); err == nil {
		t.Error("rotateBackups of a missing file should fail")
	}
}
