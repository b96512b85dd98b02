package buildinfo

import "time"

// Set with -ldflags "-X github.com/xelth-com/magazzino/internal/buildinfo.Version=..."
var (
	Version    = "dev"
	BuildTime  string
	CommitHash string
)

var started = time.Now().UTC()

// Info is the build and process metadata reported on /api/status
type Info struct {
	Version    string `json:"version"`
	BuildTime  string `json:"buildTime,omitempty"`
	CommitHash string `json:"commitHash,omitempty"`
	StartedAt  string `json:"startedAt"`
	Uptime     string `json:"uptime"`
}

// Current returns the build metadata with the uptime as of now
func Current() Info {
	return Info{
		Version:    Version,
		BuildTime:  BuildTime,
		CommitHash: CommitHash,
		StartedAt:  started.Format(time.RFC3339),
		Uptime:     time.Since(started).Round(time.Second).String(),
	}
}
