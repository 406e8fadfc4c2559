package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleNewFile(t *testing.T) {
	before := map[string]int64{"a.csv": 10}
	after := map[string]int64{"a.csv": 10, "b.csv": 20}

	got, ok := singleNewFile(before, after)
	assert.True(t, ok)
	assert.Equal(t, "b.csv", got)

	_, ok = singleNewFile(before, before)
	assert.False(t, ok)

	afterTwo := map[string]int64{"a.csv": 10, "b.csv": 20, "c.csv": 30}
	_, ok = singleNewFile(before, afterTwo)
	assert.False(t, ok)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "statement.csv"), []byte("data"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	files, err := listFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(4), files[filepath.Join(dir, "statement.csv")])
}

func TestStableSize(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.csv")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o600))
	assert.True(t, stableSize(p))
	assert.False(t, stableSize(filepath.Join(dir, "absent.csv")))
}
