// Package shell runs package install scripts.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const (
	DefaultShell = "sh"

	// stderrTail is how much trailing stderr an ExitError keeps.
	stderrTail = 2 << 10
)

// ExitError is a script that ran but exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
}

// Result is the captured output of a script run.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes scripts with "<shell> -c".
type Runner struct {
	// Shell is the interpreter; it is looked up in PATH when not absolute.
	Shell string
	// Env is appended to the process environment for every run.
	Env map[string]string
	// Timeout bounds a run; zero means no limit beyond the context.
	Timeout time.Duration
	Logger  *slog.Logger
}

// LookPath resolves the configured shell, mirroring what Run will execute.
func (r *Runner) LookPath() (string, error) {
	name := r.Shell
	if name == "" {
		name = DefaultShell
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("shell %q not found: %w", name, err)
	}
	return path, nil
}

// Run executes script in dir with env layered over the runner's environment.
// A non-zero exit is returned as *ExitError alongside the captured output.
func (r *Runner) Run(ctx context.Context, dir, script string, env map[string]string) (*Result, error) {
	shellPath, err := r.LookPath()
	if err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shellPath, "-c", script)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), r.Env, env)
	cmd.Stdout = io.MultiWriter(&stdout, &lineLogger{logger: logger, stream: "stdout"})
	cmd.Stderr = io.MultiWriter(&stderr, &lineLogger{logger: logger, stream: "stderr"})
	cmd.WaitDelay = time.Second

	start := time.Now()
	err = cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("running script: %w", ctxErr)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return res, &ExitError{Code: ee.ExitCode(), Stderr: tail(res.Stderr, stderrTail)}
	}
	return res, fmt.Errorf("running script: %w", err)
}

// mergeEnv appends the layers to base in order, later keys winning. Layer
// keys are added in sorted order so the result is deterministic.
func mergeEnv(base []string, layers ...map[string]string) []string {
	out := append([]string(nil), base...)
	for _, layer := range layers {
		keys := make([]string, 0, len(layer))
		for k := range layer {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, k+"="+layer[k])
		}
	}
	return out
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// lineLogger forwards complete output lines to the logger at debug level.
type lineLogger struct {
	logger *slog.Logger
	stream string
	buf    []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.logger.Debug("script output", "stream", l.stream, "line", string(l.buf[:i]))
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}
