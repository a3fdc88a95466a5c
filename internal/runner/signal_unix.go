//go:build unix

package runner

import "golang.org/x/sys/unix"

// raiseInterrupt delivers SIGINT to this process so signal.NotifyContext
// sees a Ctrl+C typed while the terminal was raw.
func raiseInterrupt() {
	_ = unix.Kill(unix.Getpid(), unix.SIGINT)
}
