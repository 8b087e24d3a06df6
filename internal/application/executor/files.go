package executor

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// maxModifiedFiles caps the best-effort modified-file scan.
const maxModifiedFiles = 256

// scanModifiedFiles walks the working directory and collects files whose
// modification time is at or after the task start. Best effort only: scan
// errors are swallowed and hidden directories are skipped.
func scanModifiedFiles(dir string, since time.Time) []string {
	var modified []string

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if len(modified) >= maxModifiedFiles {
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(since) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		modified = append(modified, rel)
		return nil
	})

	return modified
}
