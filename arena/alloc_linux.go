package arena

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// preallocate reserves the pages up front, so an exhausted tmpfs fails here
// with ENOSPC instead of raising SIGBUS on first touch.
func preallocate(f *os.File, size int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)

	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return nil
	}

	return err
}
