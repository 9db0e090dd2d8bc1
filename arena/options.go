package arena

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DefaultDir is where POSIX shared memory objects live on Linux.
const DefaultDir = "/dev/shm"

type options struct {
	dir  string
	mode os.FileMode
}

type Option func(*options)

// WithDir places the backing object in dir instead of DefaultDir.
func WithDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.dir = dir
		}
	}
}

// WithMode sets the permission bits of a newly created backing object.
func WithMode(mode os.FileMode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		dir:  DefaultDir,
		mode: 0600,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Path resolves a bus name such as "/roxy_brain" to its backing file.
func Path(name string, opts ...Option) (string, error) {
	return newOptions(opts).path(name)
}

func (o *options) path(name string) (string, error) {
	base := strings.TrimPrefix(name, "/")

	if base == "" || strings.ContainsRune(base, '/') || base == "." || base == ".." {
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}

	return filepath.Join(o.dir, base), nil
}
