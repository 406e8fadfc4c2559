package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadThresholdLadder_EmptyPathReturnsDefault(t *testing.T) {
	ladder, err := LoadThresholdLadder("")
	require.NoError(t, err)
	assert.Len(t, ladder, 5)
	assert.Equal(t, int64(50000), ladder[0].Amount)
}

func TestLoadThresholdLadder_ReadsCustomFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ladder.yaml")
	content := `
- amount: 20000
  urgency: low
  action_text: watch it
- amount: 40000
  urgency: high
  action_text: sweep now
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	ladder, err := LoadThresholdLadder(path)
	require.NoError(t, err)
	require.Len(t, ladder, 2)
	assert.Equal(t, int64(20000), ladder[0].Amount)
	assert.Equal(t, "high", ladder[1].Urgency)
}

func TestLoadThresholdLadder_RejectsEmptyLadder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ladder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))

	_, err := LoadThresholdLadder(path)
	assert.Error(t, err)
}

func TestLoadThresholdLadder_MissingFile(t *testing.T) {
	_, err := LoadThresholdLadder("/nonexistent/ladder.yaml")
	assert.Error(t, err)
}
