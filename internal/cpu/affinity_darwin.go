//go:build darwin

package cpu

import "runtime"

// Pin locks the calling goroutine to its OS thread.
// CPU pinning is not available on macOS, so the thread may still migrate.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, ErrUnsupported
}
