//go:build !unix

package secureconfig

import "fmt"

// legacyConfigHeader is written above the copied content on platforms
// without symlinks, so a user who opens the old file understands it
// is no longer authoritative and edits there will not propagate.
const legacyConfigHeader = "# this file has moved; edits here are not saved\n" +
	"# the active config now lives outside the repo\n\n"

// replaceLegacyConfig overwrites the in-repo legacy config.toml with a
// static header plus the content, since this platform has no portable
// symlink to bridge the two locations. Unlike the Unix symlink bridge,
// this copy goes stale the moment the new file is edited again.
func replaceLegacyConfig(legacyPath, _ string, content []byte) error {
	out := append([]byte(legacyConfigHeader), content...)
	if err := atomicWrite(legacyPath, out, 0o644); err != nil {
		return fmt.Errorf("write legacy bridge %s: %w", legacyPath, err)
	}
	return nil
}
