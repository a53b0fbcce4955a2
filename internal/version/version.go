package version

import "os"

// current is overridden at build time:
//
//	go build -ldflags "-X cuecast/internal/version.current=v1.2.3"
var current = "dev"

// Current reports the running server version, preferring the build-time
// value and falling back to the CUECAST_VERSION environment variable.
func Current() string {
	if current != "dev" {
		return current
	}
	if v := os.Getenv("CUECAST_VERSION"); v != "" {
		return v
	}
	return current
}
