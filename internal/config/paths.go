package config

import "runtime"

// DefaultSocketPath is where the daemon listens unless configured otherwise.
func DefaultSocketPath() string {
	if runtime.GOOS == "darwin" {
		return "/tmp/wgenrolld.sock"
	}
	return "/var/run/wgenrolld.sock"
}

// DefaultStorePath is the SQLite database location.
func DefaultStorePath() string {
	if runtime.GOOS == "darwin" {
		return "/usr/local/var/lib/wgenroll/enroll.db"
	}
	return "/var/lib/wgenroll/enroll.db"
}
