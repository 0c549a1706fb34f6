//go:build unix

package secureconfig

import (
	"fmt"
	"os"
)

// replaceLegacyConfig replaces the in-repo legacy config.toml with a
// symlink to the real file at newPath, so old binaries that only know
// about the in-repo file keep reading (and, transitively, writing
// through the symlink to) the new location. content is unused here;
// it exists only so this function has the same signature as the
// non-Unix copy-based bridge.
func replaceLegacyConfig(legacyPath, newPath string, _ []byte) error {
	if err := os.Remove(legacyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove legacy config %s: %w", legacyPath, err)
	}
	if err := os.Symlink(newPath, legacyPath); err != nil {
		return fmt.Errorf("symlink %s to %s: %w", legacyPath, newPath, err)
	}
	return nil
}
