// Package types holds the typed state parsed from btrfs tool output.
package types

import "strings"

// RoleRoot marks the pool that hosts the operating system.
const RoleRoot = "root"

// QuotasDisabled is the qgroup id used whenever quotas are disabled or their state is indeterminate.
const QuotasDisabled = "-1/-1"

// Dev is a pool member device.
type Dev struct {
	// Name is the by-id name when ByID is set, otherwise the transient kernel name (e.g. sda) or a
	// "detached-" placeholder for a device that is no longer attached.
	Name string `yaml:"name"`
	ByID bool   `yaml:"by_id"`
	// DevID is the btrfs devid within the pool.
	DevID int `yaml:"devid,omitempty"`
	// Size and Allocated are in bytes.
	Size      int64 `yaml:"size,omitempty"`
	Allocated int64 `yaml:"allocated,omitempty"`
}

// DetachedPrefix is the name prefix of a placeholder for a missing pool member.
const DetachedPrefix = "detached-"

// Detached reports whether d is a placeholder for a member that is no longer attached.
func (d Dev) Detached() bool {
	return strings.HasPrefix(d.Name, DetachedPrefix)
}

// Pool is a btrfs filesystem as described by the persisted record store.
type Pool struct {
	// Name is the filesystem label.
	Name string `yaml:"name"`
	UUID string `yaml:"uuid,omitempty"`
	// Raid is the profile key, e.g. raid1 or raid1-1c3.
	Raid string `yaml:"raid"`
	// Role is RoleRoot for the system pool and empty otherwise.
	Role string `yaml:"role,omitempty"`
	// MntOptions are comma separated mount options.
	MntOptions  string `yaml:"mnt_options,omitempty"`
	Compression string `yaml:"compression,omitempty"`
	Disks       []Dev  `yaml:"disks"`
}

// IsRoot reports whether p hosts the operating system.
func (p Pool) IsRoot() bool {
	return p.Role == RoleRoot
}

// AttachedDisks returns the members that are not detached placeholders.
func (p Pool) AttachedDisks() []Dev {
	var devs []Dev
	for _, d := range p.Disks {
		if !d.Detached() {
			devs = append(devs, d)
		}
	}
	return devs
}

// PoolInfo is the state reported by "btrfs filesystem show" for one filesystem.
type PoolInfo struct {
	Label       string `yaml:"label"`
	UUID        string `yaml:"uuid"`
	Disks       []Dev  `yaml:"disks"`
	TotalDevs   int    `yaml:"total_devices"`
	MissingDevs int    `yaml:"missing_devices"`
}

// PoolRaid is the level of each block group type from "btrfs filesystem df".
type PoolRaid struct {
	Data     string `yaml:"data"`
	Metadata string `yaml:"metadata"`
	System   string `yaml:"system,omitempty"`
	// Profile is the profile key classified from Data and Metadata.
	Profile string `yaml:"profile"`
}

// PoolUsage is the pool wide usage from "btrfs filesystem usage" in KiB.
type PoolUsage struct {
	Size      int64 `yaml:"size"`
	Allocated int64 `yaml:"allocated"`
	Used      int64 `yaml:"used"`
	Free      int64 `yaml:"free"`
}

// DevStats are the error counters of one device from "btrfs device stats".
type DevStats struct {
	Device         string `yaml:"device"`
	WriteIOErrs    int64  `yaml:"write_io_errs"`
	ReadIOErrs     int64  `yaml:"read_io_errs"`
	FlushIOErrs    int64  `yaml:"flush_io_errs"`
	CorruptionErrs int64  `yaml:"corruption_errs"`
	GenerationErrs int64  `yaml:"generation_errs"`
}

// DefaultSubvol is the subvolume mounted when no subvol option is given.
type DefaultSubvol struct {
	ID   int    `yaml:"id"`
	Path string `yaml:"path"`
	// BootToSnap is set when / is mounted from a snapshot rather than the top level tree.
	BootToSnap bool `yaml:"boot_to_snap"`
}
