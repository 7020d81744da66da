//go:build !debug

package pipeline

func debugLog(string, ...interface{}) {}
