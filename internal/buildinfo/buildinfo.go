// Package buildinfo carries values stamped at link time.
package buildinfo

// Version is overridden with -ldflags "-X wgenroll/internal/buildinfo.Version=...".
var Version = "dev"
