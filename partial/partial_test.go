package partial

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathDeterministic(t *testing.T) {
	assert.Equal(t, "/tmp/data.bin.part", Path("/tmp/data.bin"))
	assert.Equal(t, Path("/tmp/data.bin"), Path("/tmp/data.bin"))
	// Siblings differing only in extension must not share a marker.
	assert.NotEqual(t, Path("/tmp/data.bin"), Path("/tmp/data.txt"))
}

func TestLocateNoMarker(t *testing.T) {
	local := filepath.Join(t.TempDir(), "file.txt")
	offset, partPath := Locate(local)
	assert.Equal(t, uint64(0), offset)
	assert.Equal(t, local+Suffix, partPath)
}

func TestLocateMarkerLengthIsOffset(t *testing.T) {
	local := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(local+Suffix, []byte("12345"), 0o644))

	offset, partPath := Locate(local)
	assert.Equal(t, uint64(5), offset)
	assert.Equal(t, local+Suffix, partPath)

	// Idempotent: no new data, same offset.
	again, _ := Locate(local)
	assert.Equal(t, offset, again)
}

func TestOpenAtSeeksToOffset(t *testing.T) {
	local := filepath.Join(t.TempDir(), "file.txt")
	partPath := Path(local)
	require.NoError(t, os.WriteFile(partPath, []byte("abcde"), 0o644))

	f, err := OpenAt(partPath, 5)
	require.NoError(t, err)
	_, err = f.Write([]byte("fgh"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(partPath)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(data))
}

func TestFinalize(t *testing.T) {
	local := filepath.Join(t.TempDir(), "file.txt")
	partPath := Path(local)
	require.NoError(t, os.WriteFile(partPath, []byte("complete"), 0o644))

	require.NoError(t, Finalize(partPath, local))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "complete", string(data))

	_, err = os.Stat(partPath)
	assert.True(t, os.IsNotExist(err), "marker should be gone after finalize")
}

func TestRemoveMissingMarker(t *testing.T) {
	// Removing a marker that never existed must be a quiet no-op.
	Remove(filepath.Join(t.TempDir(), "ghost.txt.part"))
}
