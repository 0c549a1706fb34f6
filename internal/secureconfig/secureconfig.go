// Package secureconfig implements the per-repo config identity
// binding: the actual config content lives outside the repo
// directory (under a user config root, keyed by a random config id),
// so that an attacker with write access to the repo cannot inject
// executable configuration merely by committing a file. Only an
// opaque, fixed-length hex id is ever stored inside the repo.
package secureconfig

import (
	"encoding/hex"
	"fmt"
)

// ConfigIDBytes is the number of random bytes backing a [ConfigID],
// before hex-encoding.
const ConfigIDBytes = 10

// ConfigID is the hex-encoded token stored in a repo's config-id file
// and used as the directory name under the user config root.
type ConfigID string

// NewConfigID reads ConfigIDBytes of randomness from rng and encodes
// them as a ConfigID.
func NewConfigID(rng randReader) (ConfigID, error) {
	buf := make([]byte, ConfigIDBytes)
	if _, err := rng.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return ConfigID(hex.EncodeToString(buf)), nil
}

// randReader is the subset of io.Reader a config-id generator needs;
// named locally so call sites can pass crypto/rand.Reader, a
// math/rand.Rand, or a deterministic fake in tests without importing
// io just for the interface.
type randReader interface {
	Read(p []byte) (n int, err error)
}

// String returns the id's hex text verbatim.
func (id ConfigID) String() string { return string(id) }

// Valid reports whether id is exactly 2*ConfigIDBytes lowercase hex
// digits, the format required of a repo's config-id file.
func (id ConfigID) Valid() bool {
	if len(id) != 2*ConfigIDBytes {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// BadConfigIdError reports a config-id file whose contents are not a
// valid [ConfigID] (wrong length or non-hex characters).
type BadConfigIdError struct {
	Path string
	Got  string
}

func (e *BadConfigIdError) Error() string {
	return fmt.Sprintf("%s: invalid config id %q: want %d lowercase hex digits", e.Path, e.Got, 2*ConfigIDBytes)
}
