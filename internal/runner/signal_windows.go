//go:build windows

package runner

import "golang.org/x/sys/windows"

// raiseInterrupt sends CTRL_C_EVENT to this console's process group.
func raiseInterrupt() {
	_ = windows.GenerateConsoleCtrlEvent(windows.CTRL_C_EVENT, 0)
}
