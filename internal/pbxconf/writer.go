// Atomic artifact replacement.
//
// The daemon may re-read its configuration at any moment, so a target file
// must never be observable in a truncated state. Content is written to a
// temporary file in the target's directory (same filesystem, so the final
// substitution is a single rename) and fsynced before the rename. If any
// step before the rename fails, the target is left untouched.
package pbxconf

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces the contents of path with data such that no
// reader ever observes a partial write. The target's directory must already
// exist; the writer does not create it. Failure is total: either the target
// holds the new content or it is byte-identical to what it held before.
func WriteFileAtomic(path string, data []byte) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("target path must be absolute: %s", path)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	// Any failure past this point removes the temp file; the target is
	// never touched until the final rename.
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
