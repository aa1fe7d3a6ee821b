package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "osinthub.yaml"), nil, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b", "dir.yaml"), 0755))

	found, err := FindUp("osinthub.yaml", nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "osinthub.yaml"), found)

	found, err = FindUp("dir.yaml", nested)
	require.NoError(t, err)
	assert.Equal(t, "", found)

	found, err = FindUp("nothing-by-this-name.yaml", nested)
	require.NoError(t, err)
	assert.Equal(t, "", found)
}
