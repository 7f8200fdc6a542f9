package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}

	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
		got, err := ConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-config/bitey", got)
	})

	t.Run("falls back to ~/.config when XDG unset", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		got, err := ConfigDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".config", "bitey"), got)
	})
}

func TestDataDir_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}

	t.Run("uses XDG_DATA_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
		got, err := DataDir()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/xdg-data/bitey", got)
	})

	t.Run("falls back to ~/.local/share when XDG unset", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "")
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		got, err := DataDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".local", "share", "bitey"), got)
	})
}

func TestExpandHome(t *testing.T) {
	orig := platformDir.homeDir
	platformDir.homeDir = func() (string, error) { return "/home/tester", nil }
	t.Cleanup(func() { platformDir.homeDir = orig })

	for in, want := range map[string]string{
		"~":          "/home/tester",
		"~/pkgs":     "/home/tester/pkgs",
		"/abs/path":  "/abs/path",
		"rel/~/path": "rel/~/path",
		"~other":     "~other",
	} {
		got, err := expandHome(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
