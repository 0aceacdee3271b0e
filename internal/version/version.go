// Package version reports the shipline build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time with -ldflags "-X github.com/ShayCichocki/shipline/internal/version.Version=v1.2.3".
var (
	Version = ""
	Commit  = ""
)

// Get returns the version, falling back to the module version recorded in
// the binary and then to "dev".
func Get() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// Info returns a one-line description for "shipline version".
func Info() string {
	s := fmt.Sprintf("shipline %s", Get())
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return s + fmt.Sprintf(" %s/%s %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}
