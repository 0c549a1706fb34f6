package secureconfig

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Metadata is the per-config-id sidecar record stored at
// <user_config_root>/<config-id>/metadata.binpb. It records the repo
// path the config-id was last known to be bound to, so that
// [MaybeLoadConfig] can detect a moved or copied repo.
type Metadata struct {
	// Path is the repo directory the config-id was generated for or
	// last reconciled against, encoded exactly as the filesystem
	// returns it (no normalization beyond what the caller already
	// applied).
	Path string
}

// metadataPathFieldNumber is this message's only field: a single
// bytes field holding the repo path, encoded with the standard
// protobuf wire format so the file is readable by any protobuf
// tooling even without a generated .pb.go for this one-field message.
const metadataPathFieldNumber = 1

// Marshal encodes m using the protobuf wire format.
func (m Metadata) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, metadataPathFieldNumber, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(m.Path))
	return b
}

// UnmarshalMetadata decodes a metadata.binpb payload produced by
// [Metadata.Marshal]. Unknown fields are skipped rather than
// rejected, so a future field addition doesn't break older binaries.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	var m Metadata
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Metadata{}, fmt.Errorf("decode metadata: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == metadataPathFieldNumber && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Metadata{}, fmt.Errorf("decode metadata path: %w", protowire.ParseError(n))
			}
			m.Path = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Metadata{}, fmt.Errorf("skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}
