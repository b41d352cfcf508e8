//go:build !linux && !darwin

package logger

// isTerminal always reports false; colors are only emitted on unix terminals.
func isTerminal(fd uintptr) bool {
	return false
}
