package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID   string `json:"id" yaml:"id"`
	Pins []int  `json:"pins" yaml:"pins"`
}

func TestFileService_JsonRoundTrip(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "state", "record.json")

	require.NoError(t, fs.WriteJsonFile(path, record{ID: "a", Pins: []int{1, 2}}))

	exists, err := fs.IsFileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	var got record
	require.NoError(t, fs.ReadJsonFile(path, &got))
	assert.Equal(t, record{ID: "a", Pins: []int{1, 2}}, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileService_ReadYamlFile(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "record.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: b\npins: [3]\n"), 0o600))

	var got record
	require.NoError(t, fs.ReadYamlFile(path, &got))
	assert.Equal(t, record{ID: "b", Pins: []int{3}}, got)

	require.NoError(t, os.WriteFile(path, []byte("id: [unterminated"), 0o600))
	assert.Error(t, fs.ReadYamlFile(path, &got))
}

func TestFileService_Missing(t *testing.T) {
	fs := NewFileService()
	path := filepath.Join(t.TempDir(), "absent")

	exists, err := fs.IsFileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	var got record
	err = fs.ReadJsonFile(path, &got)
	assert.True(t, os.IsNotExist(err))

	_, err = fs.ReadFileRaw(path)
	assert.Error(t, err)
}
