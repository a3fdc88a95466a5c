package runner

import (
	"fmt"
	"os"
	"time"

	"github.com/failwarn/corstester/internal/scanner"
	"golang.org/x/term"
)

// startStdinToggle puts the terminal in raw mode and toggles a Pauser on
// Enter or Space. The returned cleanup restores the terminal. When stdin
// is not a terminal, or quiet is set, the pauser is nil and cleanup is a
// no-op.
func startStdinToggle(quiet bool) (pauser *scanner.Pauser, cleanup func()) {
	fd := int(os.Stdin.Fd())

	if quiet || !term.IsTerminal(fd) {
		return nil, func() {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[!] Could not enable raw terminal: %v\n", err)
		return nil, func() {}
	}

	// MakeRaw also clears OPOST, which breaks \n -> \r\n on output.
	fixOutputProcessing(fd)

	pauser = scanner.NewPauser()
	cleanup = func() {
		_ = term.Restore(fd, oldState)
	}

	go func() {
		buf := make([]byte, 1)
		var pausedAt time.Time
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}

			switch key := buf[0]; key {
			case 0x03:
				// Ctrl+C: raw mode swallowed the signal, so restore the
				// terminal and raise it ourselves.
				_ = term.Restore(fd, oldState)
				raiseInterrupt()
				return
			case '\r', '\n', ' ':
				if pauser.Toggle() {
					pausedAt = time.Now()
					fmt.Fprintf(os.Stderr, "\r\033[K[*] Scan PAUSED, press Enter or Space to resume\n")
				} else {
					fmt.Fprintf(os.Stderr, "\r\033[K[*] Scan RESUMED after %s\n", time.Since(pausedAt).Round(time.Second))
				}
			}
		}
	}()

	return pauser, cleanup
}
