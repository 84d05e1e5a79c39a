package system

var (
	// The current version of this software.
	Version = "0.0.1"
)
