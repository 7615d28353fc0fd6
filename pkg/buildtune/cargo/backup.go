package cargo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jamesainslie/buildtune/pkg/buildtune/config"
	"github.com/jamesainslie/buildtune/pkg/buildtune/logging"
)

// backupSlot returns the backup path for slot n: `<base>.backup` for slot
// 0, `<base>.backup.N` beyond.
func backupSlot(base string, n int) string {
	if n == 0 {
		return base + ".backup"
	}
	return fmt.Sprintf("%s.backup.%d", base, n)
}

// listBackups returns the consecutive existing backup slots for base,
// oldest first. Numbering is contiguous from slot 0, so the scan stops at
// the first missing slot.
func listBackups(base string) []string {
	var backups []string
	for n := 0; ; n++ {
		path := backupSlot(base, n)
		if _, err := os.Stat(path); err != nil {
			break
		}
		backups = append(backups, path)
	}
	return backups
}

// rotateBackups copies the file at path into the first free backup slot,
// evicting the oldest backup first (FIFO) when MaxBackups slots are
// already taken. Eviction shifts every surviving backup down one slot so
// numbering stays contiguous. Returns the backup files touched.
func rotateBackups(path string, settings config.BackupSettings) ([]string, error) {
	base := path
	if settings.Dir != "" {
		if err := os.MkdirAll(settings.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating backup directory: %w", err)
		}
		base = filepath.Join(settings.Dir, filepath.Base(path))
	}

	maxBackups := settings.MaxBackups
	if maxBackups < 1 {
		maxBackups = 1
	}

	var touched []string
	existing := listBackups(base)

	if len(existing) >= maxBackups {
		// FIFO: slot 0 is the oldest backup. Drop it and renumber the
		// survivors down so the naming convention stays gap-free.
		evict := len(existing) - maxBackups + 1
		for i := 0; i < evict; i++ {
			if err := os.Remove(existing[i]); err != nil {
				return nil, fmt.Errorf("evicting backup %s: %w", existing[i], err)
			}
			touched = append(touched, existing[i])
		}
		for i := evict; i < len(existing); i++ {
			dst := backupSlot(base, i-evict)
			if err := os.Rename(existing[i], dst); err != nil {
				return nil, fmt.Errorf("renumbering backup %s: %w", existing[i], err)
			}
		}
		existing = listBackups(base)
	}

	dst := backupSlot(base, len(existing))
	if err := copyFile(path, dst); err != nil {
		return nil, fmt.Errorf("creating backup: %w", err)
	}
	touched = append(touched, dst)

	logging.Get("cargo").Debug("backup created", "path", dst, "retained", len(existing)+1)
	return touched, nil
}

// copyFile copies src to dst, preserving the source's permission bits.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
