// Package external drives archive tools installed on the host: 7-Zip for
// formats without a native driver or for operations the native drivers lack,
// and cabextract for cabinet files.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds every subprocess when no timeout is configured.
const DefaultTimeout = 5 * time.Minute

// Command runs one external binary with a timeout, capturing stderr into
// returned errors.
type Command struct {
	Binary  string
	Timeout time.Duration
	Logger  *zap.Logger
}

func (c Command) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Command) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Run executes the binary in dir and returns its stdout.
func (c Command) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	timeout := c.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = dir
	cmd.Env = safeEnviron()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log().Debug("invoking command",
		zap.String("program", c.Binary),
		zap.Strings("args", redact(args)),
		zap.Duration("timeout", timeout),
		zap.String("working_dir", dir),
	)
	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	c.log().Debug("command finished",
		zap.String("program", c.Binary),
		zap.Int("exit_code", exitCode),
		zap.Duration("duration", duration),
	)

	if err != nil {
		return nil, commandError(ctx, timeout, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Stream starts the binary and returns its stdout. The timeout covers the
// whole read; Close releases the process.
func (c Command) Stream(ctx context.Context, args ...string) (io.ReadCloser, error) {
	timeout := c.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Env = safeEnviron()
	stderr := new(bytes.Buffer)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}

	c.log().Debug("streaming command",
		zap.String("program", c.Binary),
		zap.Strings("args", redact(args)),
		zap.Duration("timeout", timeout),
	)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", c.Binary, err)
	}
	return &streamReader{
		ReadCloser: stdout,
		ctx:        ctx,
		cancel:     cancel,
		cmd:        cmd,
		stderr:     stderr,
		timeout:    timeout,
		logger:     c.log(),
	}, nil
}

type streamReader struct {
	io.ReadCloser
	ctx     context.Context
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	timeout time.Duration
	logger  *zap.Logger
	eof     bool
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if errors.Is(err, io.EOF) {
		s.eof = true
	}
	return n, err
}

// Close waits for the process. Exit errors are reported only when the output
// was read to the end; an early Close kills the process on purpose.
func (s *streamReader) Close() error {
	_ = s.ReadCloser.Close()
	err := s.cmd.Wait()
	defer s.cancel()

	exitCode := -1
	if s.cmd.ProcessState != nil {
		exitCode = s.cmd.ProcessState.ExitCode()
	}
	s.logger.Debug("command finished",
		zap.String("program", s.cmd.Path),
		zap.Int("exit_code", exitCode),
	)
	if s.eof && err != nil {
		return commandError(s.ctx, s.timeout, err, s.stderr.String())
	}
	return nil
}

func commandError(ctx context.Context, timeout time.Duration, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("command timed out after %s: %s", timeout, stderr)
	}
	if stderr != "" {
		return fmt.Errorf("command failed: %w: %s", err, stderr)
	}
	return fmt.Errorf("command failed: %w", err)
}

// safeEnvVars are the only variables passed to subprocesses.
var safeEnvVars = []string{
	"PATH", "HOME", "TMPDIR", "TMP", "TEMP",
	"LANG", "LC_ALL", "LC_CTYPE",
	"SYSTEMROOT", "USERPROFILE",
}

func safeEnviron() []string {
	env := make([]string, 0, len(safeEnvVars))
	for _, name := range safeEnvVars {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

// redact hides 7-Zip password switches from logs.
func redact(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "-p") && len(a) > 2 {
			a = "-p***"
		}
		out[i] = a
	}
	return out
}

// findBinary returns the first of names found on PATH, or configured when set.
func findBinary(configured string, names ...string) string {
	if configured != "" {
		if p, err := exec.LookPath(configured); err == nil {
			return p
		}
		return ""
	}
	for _, name := range names {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}
