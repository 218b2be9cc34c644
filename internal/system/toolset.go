package system

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver"
)

// Release is used to define btrfs-progs output generations in an enumerated constant.
type Release uint8

const (
	Unknown Release = iota
	// Legacy covers btrfs-progs releases that report scrub status as "key: value" statistics and device
	// usage under the "Unallocated:" label with the old field layout.
	Legacy
	// Current covers btrfs-progs releases that report scrub status with "Status:" and "Duration:" rows.
	Current
)

func (r Release) String() string {
	switch r {
	case Legacy:
		return "legacy"
	case Current:
		return "current"
	default:
		return "unknown"
	}
}

var (
	// legacyConstraints are the constraints used to identify btrfs-progs releases with the old scrub layout.
	legacyConstraints = mustInitConstraint(semver.NewConstraint("< 5.1.2"))
	// currentConstraints are the constraints used to identify btrfs-progs releases with the current layout.
	currentConstraints = mustInitConstraint(semver.NewConstraint(">= 5.1.2"))
)

// mustInitConstraint ensures that a semver.Constraints can be initialized and used.
func mustInitConstraint(c *semver.Constraints, err error) *semver.Constraints {
	if err != nil {
		panic(fmt.Errorf("must initialize semver constraint: %w", err))
	}
	return c
}

// Toolset identifies the installed btrfs-progs release and version (e.g. current 6.1.3).
type Toolset struct {
	Release
	Version semver.Version
}

func (t Toolset) String() string {
	return fmt.Sprintf("btrfs-progs %s v%s", t.Release, t.Version.String())
}

// IsLegacy reports whether the tool output follows the legacy field layout.
func (t Toolset) IsLegacy() bool {
	return t.Release == Legacy
}

// versionRx extracts the version from "btrfs version" output, e.g. "btrfs-progs v6.1.3".
var versionRx = regexp.MustCompile(`btrfs-progs v(\d+(?:\.\d+){0,2})`)

// newToolset initializes a new Toolset given the "btrfs version" output as input. It attempts to parse the version
// into a new semver.Version and then checks the version's constraints to identify the Release.
func newToolset(output string) (*Toolset, error) {
	m := versionRx.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("no btrfs-progs version found in %q", output)
	}

	ver, err := semver.NewVersion(m[1])
	if err != nil {
		return nil, err
	}

	return &Toolset{
		Release: getVersionRelease(*ver),
		Version: *ver,
	}, nil
}

// getVersionRelease checks all known release constraints to determine which Release the version belongs to.
func getVersionRelease(version semver.Version) Release {
	switch {
	case legacyConstraints.Check(&version):
		return Legacy
	case currentConstraints.Check(&version):
		return Current
	default:
		return Unknown
	}
}
