// Package cpu pins worker goroutines to logical CPUs.
package cpu

import (
	"errors"
	"runtime"
)

// ErrUnsupported is returned by Pin on platforms without thread affinity.
// The goroutine is still locked to its OS thread.
var ErrUnsupported = errors.New("cpu affinity is not supported on this platform")

// NumCPU returns the number of logical CPUs available.
func NumCPU() int {
	return runtime.NumCPU()
}

func coreFor(workerID int) int {
	n := runtime.NumCPU()
	id := workerID % n
	if id < 0 {
		id += n
	}
	return id
}
