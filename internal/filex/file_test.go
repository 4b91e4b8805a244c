package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// idempotent
	require.NoError(t, EnsureDir(dir))
}

func TestJoinInside(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain name", input: "report.txt"},
		{name: "nested name", input: "docs/report.txt"},
		{name: "dot segments resolving inside", input: "docs/../report.txt"},
		{name: "parent escape", input: "../evil.txt", wantErr: true},
		{name: "deep escape", input: "docs/../../evil.txt", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path, err := JoinInside(base, tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			rel, err := filepath.Rel(base, path)
			require.NoError(t, err)
			assert.False(t, filepath.IsAbs(rel))
		})
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "out.bin")
	data := []byte{1, 2, 3}

	require.NoError(t, WriteFile(path, data, 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
