//go:build linux

package mounts

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const maxPollSlice = 250 * time.Millisecond

// waitForChange blocks until the kernel flags the mount table as changed or
// interval elapses. Procfs mount tables raise POLLPRI on change; other files
// simply time out.
func waitForChange(ctx context.Context, file *os.File, interval time.Duration) error {
	conn, err := file.SyscallConn()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(interval)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		slice := min(remaining, maxPollSlice)

		var ready bool
		var pollErr error
		controlErr := conn.Control(func(fd uintptr) {
			fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLPRI | unix.POLLERR}}
			count, err := unix.Poll(fds, int(slice/time.Millisecond))
			if err != nil {
				if !errors.Is(err, unix.EINTR) {
					pollErr = err
				}
				return
			}
			ready = count > 0 && fds[0].Revents&(unix.POLLPRI|unix.POLLERR) != 0
		})
		if controlErr != nil {
			return controlErr
		}
		if pollErr != nil {
			return pollErr
		}
		if ready {
			return nil
		}
	}
}
