package secureconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqRand is a deterministic, non-cryptographic randReader for tests:
// each Read fills the buffer with a fixed repeating byte so generated
// config-ids are distinguishable and reproducible across test runs.
type seqRand struct{ b byte }

func (r *seqRand) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	r.b++
	return len(p), nil
}

func TestConfigID_Valid(t *testing.T) {
	assert.True(t, ConfigID("0123456789abcdef0123").Valid())
	assert.False(t, ConfigID("tooshort").Valid())
	assert.False(t, ConfigID("0123456789ABCDEF0123").Valid(), "uppercase hex is rejected")
	assert.False(t, ConfigID("0123456789abcdef012g").Valid(), "non-hex char is rejected")
}

func TestMetadata_RoundTrip(t *testing.T) {
	m := Metadata{Path: "/home/user/repos/myproject"}
	got, err := UnmarshalMetadata(m.Marshal())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestLoadConfig_CreatesEmptyConfigWhenNoneExists(t *testing.T) {
	repo := t.TempDir()
	root := t.TempDir()

	res, err := LoadConfig(&seqRand{b: 0xAB}, repo, root)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.ID.Valid())

	data, err := os.ReadFile(res.ConfigFile)
	require.NoError(t, err)
	assert.Empty(t, data)

	idData, err := os.ReadFile(filepath.Join(repo, configIDFile))
	require.NoError(t, err)
	assert.Equal(t, res.ID.String(), string(idData))
}

func TestMaybeLoadConfig_NoConfigIsEmptyResult(t *testing.T) {
	repo := t.TempDir()
	root := t.TempDir()

	res, err := MaybeLoadConfig(&seqRand{b: 1}, repo, root)
	require.NoError(t, err)
	assert.Empty(t, res.ConfigFile)
	assert.Empty(t, res.Warnings)
}

func TestMaybeLoadConfig_BadConfigId(t *testing.T) {
	repo := t.TempDir()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, configIDFile), []byte("not-hex!!"), 0o644))

	_, err := MaybeLoadConfig(&seqRand{b: 1}, repo, root)
	var badID *BadConfigIdError
	require.ErrorAs(t, err, &badID)
}

func TestMaybeLoadConfig_LegacyMigration(t *testing.T) {
	repo := t.TempDir()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, legacyConfigFile), []byte("key = 1\n"), 0o644))

	res, err := MaybeLoadConfig(&seqRand{b: 2}, repo, root)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarningLegacyMigration, res.Warnings[0].Kind)

	data, err := os.ReadFile(res.ConfigFile)
	require.NoError(t, err)
	assert.Equal(t, "key = 1\n", string(data))

	idData, err := os.ReadFile(filepath.Join(repo, configIDFile))
	require.NoError(t, err)
	assert.True(t, ConfigID(idData).Valid())
}

func TestMaybeLoadConfig_ReconcilesAlreadyCorrectBinding(t *testing.T) {
	repo := t.TempDir()
	root := t.TempDir()

	first, err := LoadConfig(&seqRand{b: 3}, repo, root)
	require.NoError(t, err)

	second, err := MaybeLoadConfig(&seqRand{b: 3}, repo, root)
	require.NoError(t, err)
	assert.Empty(t, second.Warnings)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ConfigFile, second.ConfigFile)
}

func TestMaybeLoadConfig_RegeneratesMissingMetadata(t *testing.T) {
	repo := t.TempDir()
	root := t.TempDir()

	first, err := LoadConfig(&seqRand{b: 4}, repo, root)
	require.NoError(t, err)

	metaPath := filepath.Join(root, first.ID.String(), metadataFile)
	require.NoError(t, os.Remove(metaPath))

	res, err := MaybeLoadConfig(&seqRand{b: 4}, repo, root)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarningMetadataRegenerated, res.Warnings[0].Kind)
	assert.Equal(t, repo, res.Metadata.Path)
}

func TestMaybeLoadConfig_MovedRepoUpdatesMetadataInPlace(t *testing.T) {
	oldRepo := t.TempDir()
	root := t.TempDir()

	first, err := LoadConfig(&seqRand{b: 5}, oldRepo, root)
	require.NoError(t, err)

	// Simulate moving the repo: the old directory no longer exists,
	// and the config-id file (along with everything else) is now
	// under a new directory.
	newRepo := t.TempDir()
	idData, err := os.ReadFile(filepath.Join(oldRepo, configIDFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(newRepo, configIDFile), idData, 0o644))
	require.NoError(t, os.RemoveAll(oldRepo))

	res, err := MaybeLoadConfig(&seqRand{b: 5}, newRepo, root)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "a moved repo is repaired silently")
	assert.Equal(t, first.ID, res.ID)
	assert.Equal(t, newRepo, res.Metadata.Path)
}

func TestMaybeLoadConfig_CopiedRepoGetsNewId(t *testing.T) {
	origRepo := t.TempDir()
	root := t.TempDir()

	first, err := LoadConfig(&seqRand{b: 6}, origRepo, root)
	require.NoError(t, err)

	// Simulate copying the repo directory: a second, still-existing
	// directory carries the same config-id file contents.
	copyRepo := t.TempDir()
	idData, err := os.ReadFile(filepath.Join(origRepo, configIDFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(copyRepo, configIDFile), idData, 0o644))

	res, err := MaybeLoadConfig(&seqRand{b: 7}, copyRepo, root)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarningCopiedRepo, res.Warnings[0].Kind)
	assert.NotEqual(t, first.ID, res.ID)
	assert.Equal(t, copyRepo, res.Metadata.Path)

	// The original repo's binding must be untouched.
	origIDData, err := os.ReadFile(filepath.Join(origRepo, configIDFile))
	require.NoError(t, err)
	assert.Equal(t, first.ID.String(), string(origIDData))
}

func TestAtomicWrite_OverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, atomicWrite(path, []byte("one"), 0o644))
	require.NoError(t, atomicWrite(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file")
}
