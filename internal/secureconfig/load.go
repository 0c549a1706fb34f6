package secureconfig

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	configIDFile     = "config-id"
	legacyConfigFile = "config.toml"
	metadataFile     = "metadata.binpb"
	configFile       = "config.toml"
)

// Warning is a non-fatal condition surfaced to the caller from
// [MaybeLoadConfig]: a legacy migration, a regenerated metadata file,
// or a detected copy. At most one of these happens per call.
type Warning struct {
	// Kind names which recoverable condition fired.
	Kind WarningKind
	// Message is a human-readable description, ready to print as-is.
	Message string
}

// WarningKind enumerates the conditions [MaybeLoadConfig] recovers
// from locally rather than failing.
type WarningKind int

const (
	// WarningNone means no recoverable condition fired.
	WarningNone WarningKind = iota
	// WarningLegacyMigration means an old in-repo config.toml was
	// migrated out to the secure store.
	WarningLegacyMigration
	// WarningMetadataRegenerated means the metadata file for an
	// existing config-id was missing and has been recreated.
	WarningMetadataRegenerated
	// WarningCopiedRepo means the repo directory was determined to be
	// a copy of another repo sharing the same config-id, and a fresh
	// id was minted for this copy.
	WarningCopiedRepo
)

// Result is the outcome of [MaybeLoadConfig].
type Result struct {
	// ConfigFile is the absolute path to the resolved config.toml, or
	// empty if no config exists yet for this repo.
	ConfigFile string
	// ID is the config-id bound to repoDir, if any.
	ID ConfigID
	// Metadata is the sidecar record read or written alongside ID.
	Metadata Metadata
	// Warnings collects whatever recoverable conditions fired during
	// this call; normally at most one.
	Warnings []Warning
}

// MaybeLoadConfig resolves a repo's config binding: it
// never creates a config for a repo that has none, but it does repair
// a stale config-id binding (moved repo), detect a copied repo and
// mint a fresh id for it, and perform the one-time legacy migration of
// an old in-repo config.toml.
//
// repoDir and userConfigRoot must both be absolute, already-cleaned
// paths; rng supplies randomness for any new config-id this call
// generates.
func MaybeLoadConfig(rng randReader, repoDir, userConfigRoot string) (Result, error) {
	idPath := filepath.Join(repoDir, configIDFile)

	rawID, err := os.ReadFile(idPath)
	switch {
	case err == nil:
		id := ConfigID(trimNewline(rawID))
		if !id.Valid() {
			return Result{}, &BadConfigIdError{Path: idPath, Got: string(rawID)}
		}
		return reconcileExisting(rng, repoDir, userConfigRoot, id)

	case os.IsNotExist(err):
		return migrateLegacyOrEmpty(rng, repoDir, userConfigRoot, idPath)

	default:
		return Result{}, fmt.Errorf("read %s: %w", idPath, err)
	}
}

// LoadConfig is [MaybeLoadConfig] followed by generating an empty
// config if the repo has none at all.
func LoadConfig(rng randReader, repoDir, userConfigRoot string) (Result, error) {
	res, err := MaybeLoadConfig(rng, repoDir, userConfigRoot)
	if err != nil {
		return Result{}, err
	}
	if res.ConfigFile != "" {
		return res, nil
	}

	id, err := NewConfigID(rng)
	if err != nil {
		return Result{}, fmt.Errorf("generate config id: %w", err)
	}
	configDir := filepath.Join(userConfigRoot, id.String())
	cfgPath := filepath.Join(configDir, configFile)
	metaPath := filepath.Join(configDir, metadataFile)
	meta := Metadata{Path: repoDir}

	if err := atomicWrite(cfgPath, nil, 0o644); err != nil {
		return Result{}, fmt.Errorf("create empty config: %w", err)
	}
	if err := atomicWrite(metaPath, meta.Marshal(), 0o644); err != nil {
		return Result{}, fmt.Errorf("write metadata: %w", err)
	}
	if err := atomicWrite(filepath.Join(repoDir, configIDFile), []byte(id.String()), 0o644); err != nil {
		return Result{}, fmt.Errorf("write config-id: %w", err)
	}

	return Result{ConfigFile: cfgPath, ID: id, Metadata: meta}, nil
}

// migrateLegacyOrEmpty handles the "no config-id file" branch: either
// migrate an old in-repo config.toml out to the secure store, or
// report that this repo simply has no config yet.
func migrateLegacyOrEmpty(rng randReader, repoDir, userConfigRoot, idPath string) (Result, error) {
	legacyPath := filepath.Join(repoDir, legacyConfigFile)
	content, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("read legacy config %s: %w", legacyPath, err)
	}

	id, err := NewConfigID(rng)
	if err != nil {
		return Result{}, fmt.Errorf("generate config id: %w", err)
	}
	configDir := filepath.Join(userConfigRoot, id.String())
	cfgPath := filepath.Join(configDir, configFile)
	metaPath := filepath.Join(configDir, metadataFile)
	meta := Metadata{Path: repoDir}

	if err := atomicWrite(cfgPath, content, 0o644); err != nil {
		return Result{}, fmt.Errorf("copy legacy config: %w", err)
	}
	if err := atomicWrite(metaPath, meta.Marshal(), 0o644); err != nil {
		return Result{}, fmt.Errorf("write metadata: %w", err)
	}
	if err := atomicWrite(idPath, []byte(id.String()), 0o644); err != nil {
		return Result{}, fmt.Errorf("write config-id: %w", err)
	}
	if err := replaceLegacyConfig(legacyPath, cfgPath, content); err != nil {
		return Result{}, fmt.Errorf("bridge legacy config: %w", err)
	}

	return Result{
		ConfigFile: cfgPath,
		ID:         id,
		Metadata:   meta,
		Warnings: []Warning{{
			Kind:    WarningLegacyMigration,
			Message: fmt.Sprintf("migrated legacy config %s to %s", legacyPath, cfgPath),
		}},
	}, nil
}

// reconcileExisting handles the "config-id file present and valid"
// branch: locate the metadata, and repair it if the repo moved or was
// copied.
func reconcileExisting(rng randReader, repoDir, userConfigRoot string, id ConfigID) (Result, error) {
	configDir := filepath.Join(userConfigRoot, id.String())
	cfgPath := filepath.Join(configDir, configFile)
	metaPath := filepath.Join(configDir, metadataFile)

	rawMeta, err := os.ReadFile(metaPath)
	switch {
	case err == nil:
		meta, err := UnmarshalMetadata(rawMeta)
		if err != nil {
			return Result{}, fmt.Errorf("decode %s: %w", metaPath, err)
		}
		return reconcilePath(rng, repoDir, id, cfgPath, metaPath, meta)

	case os.IsNotExist(err):
		meta := Metadata{Path: repoDir}
		if err := atomicWrite(metaPath, meta.Marshal(), 0o644); err != nil {
			return Result{}, fmt.Errorf("regenerate metadata: %w", err)
		}
		return Result{
			ConfigFile: cfgPath,
			ID:         id,
			Metadata:   meta,
			Warnings: []Warning{{
				Kind:    WarningMetadataRegenerated,
				Message: fmt.Sprintf("config not found for %s; regenerated %s", id, metaPath),
			}},
		}, nil

	default:
		return Result{}, fmt.Errorf("read %s: %w", metaPath, err)
	}
}

// reconcilePath reconciles the recorded path: byte-exact match,
// moved-repo repair, and copy detection via the throwaway-temp-file
// aliasing check.
func reconcilePath(rng randReader, repoDir string, id ConfigID, cfgPath, metaPath string, meta Metadata) (Result, error) {
	if meta.Path == repoDir {
		return Result{ConfigFile: cfgPath, ID: id, Metadata: meta}, nil
	}

	recordedExists, err := fileExists(meta.Path)
	if err != nil {
		return Result{}, err
	}
	if !recordedExists {
		// The repo was moved: the recorded path is gone, so there is
		// no other candidate it could be aliased with.
		meta.Path = repoDir
		if err := atomicWrite(metaPath, meta.Marshal(), 0o644); err != nil {
			return Result{}, fmt.Errorf("update moved metadata: %w", err)
		}
		return Result{ConfigFile: cfgPath, ID: id, Metadata: meta}, nil
	}

	aliased, err := aliasedDirs(repoDir, meta.Path)
	if err != nil {
		return Result{}, err
	}
	if aliased {
		return Result{ConfigFile: cfgPath, ID: id, Metadata: meta}, nil
	}

	// Neither moved nor aliased: this repo directory is a copy of the
	// one recorded in metadata. Mint it a config-id of its own rather
	// than let the two repos silently share one config.
	newID, err := NewConfigID(rng)
	if err != nil {
		return Result{}, fmt.Errorf("generate config id for copy: %w", err)
	}
	newConfigDir := filepath.Join(filepath.Dir(filepath.Dir(cfgPath)), newID.String())
	newCfgPath := filepath.Join(newConfigDir, configFile)
	newMetaPath := filepath.Join(newConfigDir, metadataFile)
	newMeta := Metadata{Path: repoDir}

	content, err := os.ReadFile(cfgPath)
	if err != nil && !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("read %s: %w", cfgPath, err)
	}
	if err := atomicWrite(newCfgPath, content, 0o644); err != nil {
		return Result{}, fmt.Errorf("copy config for new id: %w", err)
	}
	if err := atomicWrite(newMetaPath, newMeta.Marshal(), 0o644); err != nil {
		return Result{}, fmt.Errorf("write metadata for new id: %w", err)
	}
	if err := atomicWrite(filepath.Join(repoDir, configIDFile), []byte(newID.String()), 0o644); err != nil {
		return Result{}, fmt.Errorf("write config-id for copy: %w", err)
	}

	return Result{
		ConfigFile: newCfgPath,
		ID:         newID,
		Metadata:   newMeta,
		Warnings: []Warning{{
			Kind:    WarningCopiedRepo,
			Message: fmt.Sprintf("repo appears to be a copy of %s; generated new config id %s", meta.Path, newID),
		}},
	}, nil
}

// aliasedDirs reports whether a and b are the same directory reached
// through two different paths (a symlink or bind mount), by creating
// a throwaway file inside a and checking whether it is also visible
// inside b.
func aliasedDirs(a, b string) (bool, error) {
	f, err := os.CreateTemp(a, ".opvc-alias-check-*")
	if err != nil {
		return false, fmt.Errorf("create alias probe in %s: %w", a, err)
	}
	name := filepath.Base(f.Name())
	_ = f.Close()
	defer os.Remove(f.Name())

	_, err = os.Stat(filepath.Join(b, name))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat alias probe in %s: %w", b, err)
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
