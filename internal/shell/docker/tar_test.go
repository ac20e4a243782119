package docker

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readArchive(t *testing.T, r io.ReadCloser) map[string]string {
	t.Helper()
	defer r.Close()

	entries := map[string]string{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(content)
	}
	return entries
}

// =============================================================================
// Archive Tests
// =============================================================================

func TestArchiveContext_SnapshotsProjectTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "requests==2.31.0\n")
	writeFile(t, dir, "main.py", "print('ok')\n")
	writeFile(t, dir, "pkg/utils.py", "x = 1\n")

	r, err := archiveContext(BuildSpec{
		ContextDir:   dir,
		ManifestFile: "requirements.txt",
		Dockerfile:   "FROM python:3.10-slim\n",
		Tag:          "timer-bot:latest",
	})
	require.NoError(t, err)

	entries := readArchive(t, r)
	assert.Equal(t, "requests==2.31.0\n", entries["requirements.txt"])
	assert.Equal(t, "print('ok')\n", entries["main.py"])
	assert.Equal(t, "x = 1\n", entries["pkg/utils.py"])
	assert.Contains(t, entries, "pkg/")
	assert.Equal(t, "FROM python:3.10-slim\n", entries[dockerfileName])
}

func TestArchiveContext_AppliesExclusions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "requests==2.31.0\n")
	writeFile(t, dir, "main.py", "print('ok')\n")
	writeFile(t, dir, ".env", "TOKEN=secret\n")
	writeFile(t, dir, "__pycache__/main.cpython-310.pyc", "junk")

	r, err := archiveContext(BuildSpec{
		ContextDir:      dir,
		ManifestFile:    "requirements.txt",
		ExcludePatterns: []string{".env", "__pycache__"},
	})
	require.NoError(t, err)

	entries := readArchive(t, r)
	assert.Contains(t, entries, "main.py")
	assert.NotContains(t, entries, ".env")
	assert.NotContains(t, entries, "__pycache__/")
	assert.NotContains(t, entries, "__pycache__/main.cpython-310.pyc")
}

func TestArchiveContext_MissingManifestFailsFast(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.py", "print('ok')\n")

	_, err := archiveContext(BuildSpec{
		ContextDir:   dir,
		ManifestFile: "requirements.txt",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifestMissing)
}

func TestArchiveContext_ExcludedManifestFailsFast(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "requests==2.31.0\n")

	_, err := archiveContext(BuildSpec{
		ContextDir:      dir,
		ManifestFile:    "requirements.txt",
		ExcludePatterns: []string{"*.txt"},
	})

	assert.ErrorIs(t, err, ErrManifestExcluded)
}

func TestArchiveContext_MissingContextDir(t *testing.T) {
	_, err := archiveContext(BuildSpec{ContextDir: "/does/not/exist"})

	assert.ErrorIs(t, err, ErrContextMissing)
}

func TestArchiveContext_NoManifestCheckWithoutManifestFile(t *testing.T) {
	// Stack builds with their own Dockerfile skip the manifest precheck.
	dir := t.TempDir()
	writeFile(t, dir, "Dockerfile", "FROM alpine\n")

	r, err := archiveContext(BuildSpec{ContextDir: dir, DockerfilePath: "Dockerfile"})
	require.NoError(t, err)

	entries := readArchive(t, r)
	assert.Contains(t, entries, "Dockerfile")
	assert.NotContains(t, entries, dockerfileName)
}

func TestReadIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".dockerignore", "# junk\n.git\n*.pyc\n")

	patterns := ReadIgnoreFile(dir)

	assert.Equal(t, []string{".git", "*.pyc"}, patterns)
}

func TestReadIgnoreFile_Missing(t *testing.T) {
	assert.Nil(t, ReadIgnoreFile(t.TempDir()))
}
