package btrfs

import (
	"strings"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
)

// outputSchema holds the parts of btrfs-progs output whose layout changed between releases.
type outputSchema struct {
	// parseScrub decodes "btrfs scrub status -R" output.
	parseScrub func(lines []string) types.ScrubStatus
	// extendedScrub is set when "btrfs scrub status" reports rate, ETA and time left.
	extendedScrub bool
	// missingMarker ends a "btrfs filesystem show" devid row of a missing device. It is matched case-insensitively.
	missingMarker string
}

// schemas is keyed by Toolset.IsLegacy.
var schemas = map[bool]outputSchema{
	true: {
		parseScrub:    parseLegacyScrubStatus,
		extendedScrub: false,
		missingMarker: "MISSING",
	},
	false: {
		parseScrub:    parseScrubStatus,
		extendedScrub: true,
		missingMarker: "missing",
	},
}

func (c *Controller) schema() outputSchema {
	return schemas[c.toolset.IsLegacy()]
}

// isMissingRow reports whether a devid row describes a missing device.
func (s outputSchema) isMissingRow(line string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(line)), strings.ToLower(s.missingMarker))
}
