package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X archpub/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
	GoVersion string
	Platform  string
}

func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (b BuildInfo) String() string {
	result := fmt.Sprintf("archpub version %s", b.Version)

	if b.GitCommit != "" {
		result += fmt.Sprintf(" (%s)", b.GitCommit)
	}

	if b.BuildDate != "" {
		result += fmt.Sprintf(" built on %s", b.BuildDate)
	}

	result += fmt.Sprintf(" %s %s", b.GoVersion, b.Platform)

	return result
}

// UserAgent is sent on every outbound API request.
func UserAgent() string {
	return "archpub/" + Version
}
