// Package buildinfo carries version metadata, stamped at link time with
// -ldflags "-X github.com/aalvaropc/vgate/internal/buildinfo.Version=v1.2.3".
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String falls back to what the toolchain recorded (module version, VCS
// revision and time) for fields that were not stamped.
func String() string {
	v, c, d := Version, Commit, Date

	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if c == "none" && s.Value != "" {
					c = s.Value[:min(12, len(s.Value))]
				}
			case "vcs.time":
				if d == "unknown" && s.Value != "" {
					d = s.Value
				}
			}
		}
	}

	return fmt.Sprintf("vgate %s (commit=%s, date=%s, %s)", v, c, d, runtime.Version())
}
