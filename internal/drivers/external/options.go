package external

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/archivekit/archivekit/internal/engine"
	"go.uber.org/zap"
)

type config struct {
	binary  string
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures an external driver kind.
type Option func(*config)

// WithBinary sets the executable instead of searching PATH.
func WithBinary(path string) Option {
	return func(c *config) {
		c.binary = path
	}
}

// WithTimeout bounds every subprocess call.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for subprocess invocations.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) config {
	c := config{timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// stage lays sources out below a fresh temporary directory under their
// archive names and returns the directory with its top-level names. The
// caller removes the directory.
func stage(sources []engine.Source, progress engine.ProgressFunc) (dir string, names []string, err error) {
	dir, err = os.MkdirTemp("", "archivekit-stage-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	seen := make(map[string]struct{})
	for i, src := range sources {
		if progress != nil {
			progress(i+1, len(sources), src.Path, src.Name)
		}
		target, err := engine.SafeJoin(dir, engine.NormalizePath(src.Name))
		if err != nil {
			return "", nil, err
		}
		if src.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", nil, fmt.Errorf("failed to stage %s: %w", src.Name, err)
			}
		} else if err := stageFile(src.Path, target); err != nil {
			return "", nil, fmt.Errorf("failed to stage %s: %w", src.Name, err)
		}

		top, _, _ := strings.Cut(engine.NormalizePath(src.Name), "/")
		if _, ok := seen[top]; !ok {
			seen[top] = struct{}{}
			names = append(names, top)
		}
	}
	return dir, names, nil
}

// stageFile hard-links src to dst, copying when linking is not possible.
func stageFile(src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, in.Close())
	}()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()
	_, err = io.Copy(out, in)
	return err
}
