// Package build holds the version metadata stamped into the binary at build time.
package build

const (
	// GitHubLink is the static HTTPS URL for the btrfs-utils public GitHub repository.
	GitHubLink = "https://github.com/rockstor/btrfs-utils"

	// devVersion is reported by binaries built without version ldflags.
	devVersion = "dev"
)

var (
	// CommitDate is the date of the latest commit in the repository. This variable gets set at build-time.
	CommitDate string

	// Version is the latest version of the utility. This variable gets set at build-time.
	Version string
)

// VersionString returns Version, or "dev" for a binary built without version information.
func VersionString() string {
	if Version == "" {
		return devVersion
	}
	return Version
}
