//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and restricts that
// thread to one logical CPU, chosen as workerID modulo the CPU count.
// The returned release func must be called from the same goroutine.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()
	release = runtime.UnlockOSThread

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(coreFor(workerID))

	if err := unix.SchedSetaffinity(0, &mask); err != nil { // 0 = current thread
		return release, err
	}
	return release, nil
}
