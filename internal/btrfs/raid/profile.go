// Package raid models the btrfs RAID profiles a pool can be created with or converted to, and the capacity each
// profile yields over a set of devices.
package raid

import (
	"sort"
	"strings"
)

// Unknown is the fail-safe profile key used whenever a reported data/metadata combination has no table entry.
const Unknown = "unknown"

// Profile describes one data/metadata level combination.
type Profile struct {
	// Key names the profile, e.g. "raid1" or the mixed "raid1-1c3".
	Key string
	// MinDevices is the smallest device count the profile can be created on.
	MinDevices int
	// MaxMissing is the number of devices that can be absent with the pool still mountable degraded.
	MaxMissing int
	// DataRaid and MetadataRaid are the levels passed to mkfs.btrfs and balance convert filters.
	DataRaid     string
	MetadataRaid string
	// DataCopies is the number of copies of each data chunk.
	DataCopies int
	// DataParity is the number of parity blocks per stripe.
	DataParity int
}

var profiles = map[string]Profile{
	Unknown:      {Key: Unknown, MinDevices: 4, MaxMissing: 0, DataRaid: Unknown, MetadataRaid: Unknown, DataCopies: 1, DataParity: 0},
	"single":     {Key: "single", MinDevices: 1, MaxMissing: 0, DataRaid: "single", MetadataRaid: "single", DataCopies: 1, DataParity: 0},
	"single-dup": {Key: "single-dup", MinDevices: 1, MaxMissing: 0, DataRaid: "single", MetadataRaid: "dup", DataCopies: 1, DataParity: 0},
	"raid0":      {Key: "raid0", MinDevices: 2, MaxMissing: 0, DataRaid: "raid0", MetadataRaid: "raid0", DataCopies: 1, DataParity: 0},
	"raid1":      {Key: "raid1", MinDevices: 2, MaxMissing: 1, DataRaid: "raid1", MetadataRaid: "raid1", DataCopies: 2, DataParity: 0},
	"raid1c3":    {Key: "raid1c3", MinDevices: 3, MaxMissing: 2, DataRaid: "raid1c3", MetadataRaid: "raid1c3", DataCopies: 3, DataParity: 0},
	"raid1c4":    {Key: "raid1c4", MinDevices: 4, MaxMissing: 3, DataRaid: "raid1c4", MetadataRaid: "raid1c4", DataCopies: 4, DataParity: 0},
	"raid10":     {Key: "raid10", MinDevices: 4, MaxMissing: 1, DataRaid: "raid10", MetadataRaid: "raid10", DataCopies: 2, DataParity: 0},
	"raid5":      {Key: "raid5", MinDevices: 2, MaxMissing: 1, DataRaid: "raid5", MetadataRaid: "raid5", DataCopies: 1, DataParity: 1},
	"raid6":      {Key: "raid6", MinDevices: 3, MaxMissing: 2, DataRaid: "raid6", MetadataRaid: "raid6", DataCopies: 1, DataParity: 2},
	"raid1-1c3":  {Key: "raid1-1c3", MinDevices: 3, MaxMissing: 1, DataRaid: "raid1", MetadataRaid: "raid1c3", DataCopies: 2, DataParity: 0},
	"raid1-1c4":  {Key: "raid1-1c4", MinDevices: 4, MaxMissing: 1, DataRaid: "raid1", MetadataRaid: "raid1c4", DataCopies: 2, DataParity: 0},
	"raid10-1c3": {Key: "raid10-1c3", MinDevices: 4, MaxMissing: 1, DataRaid: "raid10", MetadataRaid: "raid1c3", DataCopies: 2, DataParity: 0},
	"raid10-1c4": {Key: "raid10-1c4", MinDevices: 4, MaxMissing: 1, DataRaid: "raid10", MetadataRaid: "raid1c4", DataCopies: 2, DataParity: 0},
	"raid5-1":    {Key: "raid5-1", MinDevices: 2, MaxMissing: 1, DataRaid: "raid5", MetadataRaid: "raid1", DataCopies: 1, DataParity: 1},
	"raid5-1c3":  {Key: "raid5-1c3", MinDevices: 3, MaxMissing: 1, DataRaid: "raid5", MetadataRaid: "raid1c3", DataCopies: 1, DataParity: 1},
	"raid6-1c3":  {Key: "raid6-1c3", MinDevices: 3, MaxMissing: 2, DataRaid: "raid6", MetadataRaid: "raid1c3", DataCopies: 1, DataParity: 2},
	"raid6-1c4":  {Key: "raid6-1c4", MinDevices: 4, MaxMissing: 2, DataRaid: "raid6", MetadataRaid: "raid1c4", DataCopies: 1, DataParity: 2},
}

// Lookup returns the profile for key, or the Unknown profile when key is not in the table.
func Lookup(key string) Profile {
	if p, ok := profiles[key]; ok {
		return p
	}
	return profiles[Unknown]
}

// Known reports whether key names a profile in the table. Unknown itself is not considered known.
func Known(key string) bool {
	_, ok := profiles[key]
	return ok && key != Unknown
}

// Keys returns every profile key in the table, sorted.
func Keys() []string {
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClassifyProfile maps the data and metadata levels reported by the filesystem onto a profile key. Equal levels map
// to that level's key, e.g. raid1/raid1 is "raid1". Unequal levels map to "<data>-<metadata without raid prefix>",
// e.g. raid1/raid1c3 is "raid1-1c3". Combinations absent from the table are Unknown.
//
// Levels are matched case-insensitively as "btrfs fi df" reports them upper case (RAID1, DUP).
func ClassifyProfile(data, metadata string) string {
	data = strings.ToLower(data)
	metadata = strings.ToLower(metadata)

	key := data
	if data != metadata {
		key = data + "-" + strings.TrimPrefix(metadata, "raid")
	}

	if _, ok := profiles[key]; !ok {
		return Unknown
	}
	return key
}

// DominantLevel picks the level to classify from the levels reported for one block group type. A conversion
// balance leaves "single" chunks behind alongside the target level; those are ignored whenever another level is
// present. When several other levels remain the first one reported wins.
func DominantLevel(levels []string) string {
	var single bool
	for _, l := range levels {
		if strings.EqualFold(l, "single") {
			single = true
			continue
		}
		return strings.ToLower(l)
	}

	if single {
		return "single"
	}
	return ""
}
