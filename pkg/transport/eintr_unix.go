//go:build unix

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// interrupted reports whether err is an interrupted system call.
func interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}
