// Package version provides build information for procscope and the label set
// exported as the procscope_build_info metric.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time, e.g.
//
//	-X github.com/jongio/procscope/version.Version=1.2.3
var (
	Version   = "0.0.0-dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info holds version information for a binary embedding procscope.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
	GoVersion string `json:"goVersion"`
	Name      string `json:"name"`
}

// New creates an Info for name from the ldflags-provided package variables.
func New(name string) *Info {
	return &Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Name:      name,
	}
}

// String returns a human-readable version string.
func (i *Info) String() string {
	return fmt.Sprintf("%s version %s (commit: %s, built: %s)", i.Name, i.Version, i.GitCommit, i.BuildDate)
}

// Labels returns the build info as metric labels.
func (i *Info) Labels() map[string]string {
	return map[string]string{
		"name":       i.Name,
		"version":    i.Version,
		"commit":     i.GitCommit,
		"build_date": i.BuildDate,
		"goversion":  i.GoVersion,
	}
}
