// Package types holds the Disk record produced by a device inventory scan.
package types

import "strings"

// Device types as reported by lsblk. MD composite devices report their personality (raid0, raid1, linear...)
// as their type.
const (
	TypeDisk      = "disk"
	TypePartition = "part"
	TypeCrypt     = "crypt"
	TypeMD        = "md"
	TypeRom       = "rom"
)

// FakeSerialPrefix marks a serial synthesized for a drive that reported none, a placeholder, or a duplicate.
const FakeSerialPrefix = "fake-serial-"

// Partition is one child partition of a Disk.
type Partition struct {
	Name   string `yaml:"name"`
	FSType string `yaml:"fstype"`
}

// Disk is a block device record. Records are rebuilt on every scan and compared by value.
type Disk struct {
	// Name is the by-id name without a path, or the transient name when no by-id link exists.
	Name   string `yaml:"name"`
	Model  string `yaml:"model"`
	Serial string `yaml:"serial"`
	// Size is in KiB.
	Size      int64  `yaml:"size"`
	Transport string `yaml:"transport"`
	Vendor    string `yaml:"vendor"`
	HCTL      string `yaml:"hctl"`
	Type      string `yaml:"type"`
	FSType    string `yaml:"fstype"`
	Label     string `yaml:"label"`
	UUID      string `yaml:"uuid"`
	Parted    bool   `yaml:"parted"`
	Root      bool   `yaml:"root"`
	// Partitions is ordered as the partitions were listed.
	Partitions []Partition `yaml:"partitions,omitempty"`
}

// IsRaidPersonality reports whether t is an MD composite device type such as raid1 or linear.
func IsRaidPersonality(t string) bool {
	return strings.HasPrefix(t, "raid") || t == "linear"
}

// HasFakeSerial reports whether the serial was synthesized during the scan.
func (d Disk) HasFakeSerial() bool {
	return strings.HasPrefix(d.Serial, FakeSerialPrefix)
}

// AddPartition records a child partition, keeping the first filesystem type seen for a name.
func (d *Disk) AddPartition(name, fstype string) {
	for _, p := range d.Partitions {
		if p.Name == name {
			return
		}
	}
	d.Partitions = append(d.Partitions, Partition{Name: name, FSType: fstype})
}

// PartitionMap returns the partitions keyed by name.
func (d Disk) PartitionMap() map[string]string {
	m := make(map[string]string, len(d.Partitions))
	for _, p := range d.Partitions {
		m[p.Name] = p.FSType
	}
	return m
}
