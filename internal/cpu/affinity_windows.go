//go:build windows

package cpu

import (
	"runtime"
	"syscall"
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
	getCurrentThread      = kernel32.NewProc("GetCurrentThread")
)

// Pin locks the calling goroutine to its OS thread and restricts that
// thread to one logical CPU, chosen as workerID modulo the CPU count.
// The returned release func must be called from the same goroutine.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()
	release = runtime.UnlockOSThread

	handle, _, _ := getCurrentThread.Call()

	// Bit N = CPU N
	mask := uintptr(1) << uint(coreFor(workerID))

	prevMask, _, callErr := setThreadAffinityMask.Call(handle, mask)
	if prevMask == 0 {
		return release, callErr
	}
	return release, nil
}
