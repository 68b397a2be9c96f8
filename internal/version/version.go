// Package version carries the build identity stamped into the binary.
// The exported variables are overwritten at link time:
//
//	go build -ldflags "-X .../internal/version.Version=1.4.0 ..."
//
// and default to development placeholders otherwise.
package version

import "runtime"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info is the full build identity served by /api/version.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Get combines the stamped variables with the toolchain's runtime
// facts.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the bare version for banners and the OpenAPI document.
func String() string {
	return Version
}
