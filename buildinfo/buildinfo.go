// Package buildinfo provides build-time properties injected via ldflags:
//
//	go build -ldflags "-X github.com/nomis52/nodegraph/buildinfo.version=v1.2.0 \
//	  -X github.com/nomis52/nodegraph/buildinfo.gitCommit=$(git rev-parse --short HEAD)"
package buildinfo

import (
	"fmt"
	"runtime"
)

// Properties holds build-time properties injected via ldflags.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// String formats the properties for a version banner.
func (p Properties) String() string {
	return fmt.Sprintf("nodegraph %s\nBuilt: %s\nCommit: %s\nGo: %s",
		p.Version, p.BuildTime, p.GitCommit, p.GoVersion)
}

// Package-level variables for ldflags injection (unexported).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
	}
}
