package shell

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T) *Runner {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not in PATH, skipping")
	}
	return &Runner{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestRun(t *testing.T) {
	tests := map[string]struct {
		script     string
		env        map[string]string
		wantStdout string
		wantCode   int
		wantStderr string
	}{
		"success": {
			script:     "echo hello",
			wantStdout: "hello\n",
		},
		"env is visible": {
			script:     `echo "$BITEY_PACKAGE $BITEY_VERSION"`,
			env:        map[string]string{"BITEY_PACKAGE": "app", "BITEY_VERSION": "1.0"},
			wantStdout: "app 1.0\n",
		},
		"multi line script": {
			script:     "a=1\nb=2\necho $((a+b))",
			wantStdout: "3\n",
		},
		"non-zero exit": {
			script:     "echo boom >&2; exit 3",
			wantCode:   3,
			wantStderr: "boom",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := newRunner(t)
			res, err := r.Run(context.Background(), t.TempDir(), tc.script, tc.env)

			if tc.wantCode != 0 {
				var ee *ExitError
				require.ErrorAs(t, err, &ee)
				assert.Equal(t, tc.wantCode, ee.Code)
				assert.Equal(t, tc.wantStderr, ee.Stderr)
				require.NotNil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStdout, res.Stdout)
		})
	}
}

func TestRunWorkingDirectory(t *testing.T) {
	r := newRunner(t)
	dir := t.TempDir()

	_, err := r.Run(context.Background(), dir, "touch marker", nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "marker"))
}

func TestRunEnvLayering(t *testing.T) {
	r := newRunner(t)
	r.Env = map[string]string{"LAYER": "runner", "ONLY_RUNNER": "yes"}

	res, err := r.Run(context.Background(), t.TempDir(), `echo "$LAYER $ONLY_RUNNER"`, map[string]string{"LAYER": "call"})
	require.NoError(t, err)
	assert.Equal(t, "call yes\n", res.Stdout)
}

func TestRunTimeout(t *testing.T) {
	r := newRunner(t)
	r.Timeout = 50 * time.Millisecond

	_, err := r.Run(context.Background(), t.TempDir(), "sleep 5", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var ee *ExitError
	assert.False(t, errors.As(err, &ee))
}

func TestRunMissingShell(t *testing.T) {
	r := &Runner{Shell: "no-such-shell-abc123"}
	_, err := r.Run(context.Background(), t.TempDir(), "true", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("  short\n", 10))
	assert.Equal(t, "..."+strings.Repeat("b", 4), tail(strings.Repeat("a", 6)+strings.Repeat("b", 4), 4))
}
