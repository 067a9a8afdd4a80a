// Package platform resolves per-OS locations for relaycache's config file
// and default SQLite database.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

// OS returns the current operating system (linux, darwin or windows)
func OS() string {
	return runtime.GOOS
}

// IsLinux returns true if running on Linux
func IsLinux() bool {
	return runtime.GOOS == "linux"
}

// IsDarwin returns true if running on macOS
func IsDarwin() bool {
	return runtime.GOOS == "darwin"
}

// IsWindows returns true if running on Windows
func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// IsRoot checks if the current user has root/admin privileges
func IsRoot() bool {
	if IsLinux() || IsDarwin() {
		return os.Geteuid() == 0
	}
	if IsWindows() {
		return isWindowsAdmin()
	}
	return false
}

// ConfigDir returns the appropriate config directory for the OS.
// Uses system-wide paths when running as root, user-local paths otherwise.
func ConfigDir() string {
	if !IsRoot() {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, ".relaycache")
		}
	}

	if IsLinux() {
		return "/etc/relaycache"
	}
	if IsDarwin() {
		// Homebrew convention
		return "/usr/local/etc/relaycache"
	}
	return `C:\ProgramData\RelayCache`
}

// DataDir returns the directory holding the default SQLite database.
func DataDir() string {
	if !IsRoot() {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, ".relaycache", "data")
		}
	}

	if IsLinux() {
		return "/var/lib/relaycache"
	}
	if IsDarwin() {
		return "/usr/local/var/relaycache"
	}
	return `C:\ProgramData\RelayCache\data`
}

// DefaultConfigFile is the config file read when --config is not given.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultDatabasePath is the SQLite file used when no DSN is configured.
func DefaultDatabasePath() string {
	return filepath.Join(DataDir(), "relaycache.db")
}
