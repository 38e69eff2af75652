// Package version reports framelink build metadata.
//
// Release builds set the variables with the linker:
//
//	go build -ldflags "-X github.com/rickgao/framelink/internal/version.Version=v0.3.0 \
//	                   -X github.com/rickgao/framelink/internal/version.Commit=$(git rev-parse --short HEAD)" \
//	         ./cmd/framelink
//
// Anything left unset is filled from the module version and VCS stamp the go
// command embeds in the binary.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the resolved build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the linker-set values, completed from the embedded build info.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = fill(info, bi)
	}
	return info
}

func fill(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value[:min(7, len(s.Value))]
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" && info.Commit != "unknown" {
				info.Commit += "-dirty"
			}
		}
	}
	return info
}

func (i Info) String() string {
	return i.Version + " (" + i.Commit + ") built " + i.BuildTime + " with " + i.GoVersion
}

// String returns the formatted build metadata.
func String() string {
	return Get().String()
}
