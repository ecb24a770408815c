package version

import "runtime"

// Set via -ldflags "-X github.com/pscheid92/hoodpulse/internal/platform/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// UserAgent identifies the crawler to upstream sites.
func UserAgent() string {
	return "hoodpulse/" + Version + " (+https://github.com/pscheid92/hoodpulse)"
}
