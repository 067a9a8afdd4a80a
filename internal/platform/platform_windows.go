//go:build windows

package platform

import (
	"golang.org/x/sys/windows"
)

// isWindowsAdmin reports whether the process token is elevated, which is
// what ProgramData writes require.
func isWindowsAdmin() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
