package output

import (
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/rockstor/btrfs-utils/internal/btrfs/raid"
	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	disktypes "github.com/rockstor/btrfs-utils/internal/disk/types"
)

// Disks renders a device scan.
type Disks []disktypes.Disk

func (d Disks) Header() []string {
	return []string{"NAME", "SERIAL", "SIZE", "TYPE", "FSTYPE", "LABEL", "ROOT", "PARTED"}
}

func (d Disks) Rows() [][]string {
	rows := make([][]string, 0, len(d))
	for _, disk := range d {
		rows = append(rows, []string{
			disk.Name,
			disk.Serial,
			humanize.IBytes(uint64(disk.Size) * 1024),
			disk.Type,
			disk.FSType,
			disk.Label,
			strconv.FormatBool(disk.Root),
			strconv.FormatBool(disk.Parted),
		})
	}
	return rows
}

// Devs renders pool members.
type Devs []types.Dev

func (d Devs) Header() []string {
	return []string{"NAME", "DEVID", "SIZE", "ALLOCATED"}
}

func (d Devs) Rows() [][]string {
	rows := make([][]string, 0, len(d))
	for _, dev := range d {
		rows = append(rows, []string{
			dev.Name,
			strconv.Itoa(dev.DevID),
			humanize.IBytes(uint64(dev.Size)),
			humanize.IBytes(uint64(dev.Allocated)),
		})
	}
	return rows
}

// Shares renders share names and quota groups, sorted by name.
type Shares map[string]string

func (s Shares) Header() []string {
	return []string{"NAME", "QGROUP"}
}

func (s Shares) Rows() [][]string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(s))
	for _, name := range names {
		rows = append(rows, []string{name, s[name]})
	}
	return rows
}

// Snapshots renders the snapshots of a share.
type Snapshots []types.Snapshot

func (s Snapshots) Header() []string {
	return []string{"NAME", "SHARE", "ID", "QGROUP", "WRITABLE"}
}

func (s Snapshots) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, snap := range s {
		rows = append(rows, []string{snap.Name, snap.Share, strconv.Itoa(snap.ID), snap.Qgroup, strconv.FormatBool(snap.Writable)})
	}
	return rows
}

// Profiles renders RAID profiles.
type Profiles []raid.Profile

func (p Profiles) Header() []string {
	return []string{"KEY", "DATA", "METADATA", "MIN_DEVICES", "MAX_MISSING"}
}

func (p Profiles) Rows() [][]string {
	rows := make([][]string, 0, len(p))
	for _, profile := range p {
		rows = append(rows, []string{
			profile.Key,
			profile.DataRaid,
			profile.MetadataRaid,
			strconv.Itoa(profile.MinDevices),
			strconv.Itoa(profile.MaxMissing),
		})
	}
	return rows
}
