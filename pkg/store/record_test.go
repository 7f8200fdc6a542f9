package store

import (
	"testing"
	"time"

	"github.com/bitey-pm/bitey/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Name:         "app",
		Version:      "1.0",
		Maintainer:   "someone",
		Description:  "an app",
		Install:      manifest.Install{Commands: "true"},
		Dependencies: []string{"lib"},
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDir("app"))

	raw := []byte("# pointer kept verbatim\nurl: https://example.com/app.yml\n")
	m := testManifest()

	require.NoError(t, WriteRecord(s, "app", raw, m))

	rec, err := ReadRecord(s, "app")
	require.NoError(t, err)
	assert.Equal(t, raw, rec.RawPointer)
	assert.Equal(t, m, rec.Manifest)

	ok, err := IsInstalled(s, "app")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsInstalled(t *testing.T) {
	tests := map[string]struct {
		files []string
		want  bool
	}{
		"no directory":      {want: false},
		"empty directory":   {files: []string{}, want: false},
		"pointer only":      {files: []string{PointerFile}, want: false},
		"manifest only":     {files: []string{ManifestFile}, want: false},
		"both record files": {files: []string{PointerFile, ManifestFile}, want: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s := New(t.TempDir())
			if tc.files != nil {
				require.NoError(t, s.EnsureDir("app"))
			}
			for _, f := range tc.files {
				require.NoError(t, s.WriteFile([]byte("x"), 0o644, "app", f))
			}

			got, err := IsInstalled(s, "app")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReadManifestCorrupt(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDir("app"))
	require.NoError(t, s.WriteFile([]byte("name: [broken"), 0o644, "app", ManifestFile))

	_, err := ReadManifest(s, "app")
	require.Error(t, err)
}

func TestReceipt(t *testing.T) {
	s := New(t.TempDir())

	r, err := ReadReceipt(s, "lib")
	require.NoError(t, err)
	assert.Empty(t, r.RequiredBy)

	// Annotating a package that is not installed is a no-op.
	require.NoError(t, AddRequiredBy(s, "lib", "app"))
	ok, err := s.Exists("lib")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.EnsureDir("lib"))
	installedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, WriteReceipt(s, "lib", &Receipt{
		Remote:      "https://example.com/repo",
		InstalledAt: installedAt,
		Integrity:   "sha256:abc",
	}))

	require.NoError(t, AddRequiredBy(s, "lib", "web"))
	require.NoError(t, AddRequiredBy(s, "lib", "app"))
	require.NoError(t, AddRequiredBy(s, "lib", "app"))

	r, err = ReadReceipt(s, "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "web"}, r.RequiredBy)
	assert.Equal(t, "https://example.com/repo", r.Remote)
	assert.True(t, installedAt.Equal(r.InstalledAt))

	require.NoError(t, DropRequiredBy(s, "lib", "app"))
	require.NoError(t, DropRequiredBy(s, "lib", "missing"))

	r, err = ReadReceipt(s, "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, r.RequiredBy)
}
