// Package version carries build metadata for the loginguard binaries. The
// variables are set with -ldflags at build time.
package version

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or commit hash.
	// Set via: -ldflags "-X loginguard/internal/version.Version=..."
	Version = "unknown"

	// BuildDate is the ISO 8601 UTC build timestamp.
	// Set via: -ldflags "-X loginguard/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the source commit SHA.
	// Set via: -ldflags "-X loginguard/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info holds build metadata and the identity of the running process.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the build metadata. The instance ID and hostname are
// resolved once per process.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.NewString(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("loginguard %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
