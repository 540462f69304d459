//go:build !linux

package mounts

import (
	"context"
	"os"
	"time"
)

func waitForChange(ctx context.Context, _ *os.File, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
