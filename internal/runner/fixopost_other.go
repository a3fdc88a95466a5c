//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package runner

// fixOutputProcessing is a no-op where raw input mode leaves output
// translation alone (Windows consoles) or termios is unavailable.
func fixOutputProcessing(fd int) {}
