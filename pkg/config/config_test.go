package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() *Config {
	return &Config{
		StoreDir:         "/data/bitey/packages",
		RemotesDir:       "/config/bitey/remotes",
		HTTPTimeout:      30 * time.Second,
		DownloadTimeout:  10 * time.Minute,
		FetchRetries:     2,
		FetchConcurrency: 1,
		Shell:            "sh",
		LogFormat:        "text",
	}
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("store-dir", "", "")
	fs.String("remotes-dir", "", "")
	fs.Bool("insecure", false, "")
	fs.String("metrics-file", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		file  string
		env   map[string]string
		flags []string
		check func(t *testing.T, cfg *Config)
	}{
		"defaults only": {
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, testDefaults(), cfg)
			},
		},
		"file overrides defaults": {
			file: `
store_dir = "/srv/packages"
http_timeout = "5s"
fetch_concurrency = 4
install_prefix = "/opt/root"
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/srv/packages", cfg.StoreDir)
				assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
				assert.Equal(t, 4, cfg.FetchConcurrency)
				assert.Equal(t, "/opt/root", cfg.InstallPrefix)
				assert.Equal(t, "/config/bitey/remotes", cfg.RemotesDir)
			},
		},
		"env overrides file": {
			file: "fetch_retries = 1\nshell = \"bash\"\n",
			env:  map[string]string{"BITEY_FETCH_RETRIES": "5", "BITEY_INSECURE": "true"},
			check: func(t *testing.T, cfg *Config) {
				assert.EqualValues(t, 5, cfg.FetchRetries)
				assert.True(t, cfg.Insecure)
				assert.Equal(t, "bash", cfg.Shell)
			},
		},
		"flags override env": {
			env:   map[string]string{"BITEY_STORE_DIR": "/from/env"},
			flags: []string{"--store-dir", "/from/flag", "--insecure"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/from/flag", cfg.StoreDir)
				assert.True(t, cfg.Insecure)
			},
		},
		"unset flags do not override file": {
			file:  "remotes_dir = \"/from/file\"\n",
			flags: []string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/from/file", cfg.RemotesDir)
				assert.Equal(t, "/data/bitey/packages", cfg.StoreDir)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if tc.file != "" {
				require.NoError(t, os.WriteFile(path, []byte(tc.file), 0o644))
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			var flags *pflag.FlagSet
			if tc.flags != nil {
				flags = testFlags(t, tc.flags...)
			}

			cfg, err := load(testDefaults(), path, false, flags)
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]struct {
		file     string
		explicit bool
	}{
		"explicit file missing":   {explicit: true},
		"bad toml":                {file: "store_dir = [unclosed"},
		"zero concurrency":        {file: "fetch_concurrency = 0\n"},
		"bad log format":          {file: "log_format = \"xml\"\n"},
		"negative script timeout": {file: "script_timeout = \"-1s\"\n"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if tc.file != "" {
				require.NoError(t, os.WriteFile(path, []byte(tc.file), 0o644))
			}
			_, err := load(testDefaults(), path, tc.explicit, nil)
			require.Error(t, err)
		})
	}
}

func TestLoadExpandsHome(t *testing.T) {
	orig := platformDir.homeDir
	platformDir.homeDir = func() (string, error) { return "/home/tester", nil }
	t.Cleanup(func() { platformDir.homeDir = orig })

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("store_dir = \"~/pkgs\"\n"), 0o644))

	cfg, err := load(testDefaults(), path, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/pkgs", cfg.StoreDir)
}

func TestWriteDefault(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "config", "bitey", "config.toml"), path)

	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "http_timeout = '30s'")

	cfg, err := Load(LoadOptions{File: path})
	require.NoError(t, err)
	want, err := Default()
	require.NoError(t, err)
	assert.Equal(t, want, cfg)
	assert.Equal(t, filepath.Join(root, "data", "bitey", "packages"), cfg.StoreDir)

	require.ErrorIs(t, WriteDefault(path, false), ErrConfigExists)
	require.NoError(t, WriteDefault(path, true))
}
