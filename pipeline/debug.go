//go:build debug

package pipeline

import (
	"fmt"
	"log"
	"os"
)

var debugLogger = log.New(os.Stderr, "[PIPELINE DEBUG] ", log.Ltime|log.Lmicroseconds|log.Lshortfile)

// debugLog logs debug messages when built with -tags debug
func debugLog(format string, args ...interface{}) {
	_ = debugLogger.Output(2, fmt.Sprintf(format, args...))
}
