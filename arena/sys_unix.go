//go:build unix

package arena

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func outOfSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT) || errors.Is(err, unix.ENOMEM)
}

// ProcessAlive reports whether pid names a running process. A process we may
// not signal still counts as alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
