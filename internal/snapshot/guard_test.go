package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckNewFiles_ZeroLimitAdmitsEverything(t *testing.T) {
	err := CheckNewFiles([]FileInfo{
		{Path: "huge.bin", Size: 1 << 40},
	}, 0)
	assert.NoError(t, err)
}

func TestCheckNewFiles_RejectsOversizedNewFiles(t *testing.T) {
	err := CheckNewFiles([]FileInfo{
		{Path: "ok.txt", Size: 10},
		{Path: "big.bin", Size: 2000},
		{Path: "bigger.bin", Size: 3000},
	}, 1000)

	var tooLarge *NewFilesTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, uint64(1000), tooLarge.Limit)
	assert.Equal(t, []LargeFile{
		{Path: "big.bin", Size: 2000},
		{Path: "bigger.bin", Size: 3000},
	}, tooLarge.Files)
	assert.Contains(t, err.Error(), "big.bin")
	assert.Contains(t, err.Error(), "bigger.bin")
}

func TestCheckNewFiles_TrackedFilesBypassGuard(t *testing.T) {
	err := CheckNewFiles([]FileInfo{
		{Path: "already-tracked.bin", Size: 1 << 30, Tracked: true},
	}, 1000)
	assert.NoError(t, err)
}

func TestCheckNewFiles_ZeroByteFileAlwaysAccepted(t *testing.T) {
	err := CheckNewFiles([]FileInfo{
		{Path: "empty", Size: 0},
	}, 1)
	assert.NoError(t, err)
}

func TestCheckNewFiles_ExactlyAtLimitAccepted(t *testing.T) {
	err := CheckNewFiles([]FileInfo{
		{Path: "fits", Size: 1000},
	}, 1000)
	assert.NoError(t, err)
}
