// Package identifier applies the kernel's block device naming families to derive base devices from partitions.
package identifier

import (
	"regexp"
	"strings"
)

var (
	// mdMmcRootExp keeps an MD or MMC name through its first digit run, e.g. /dev/md126p3 -> /dev/md126.
	mdMmcRootExp = regexp.MustCompile(`^(.*/(?:md|mmcblk)\d+)`)
	// nvmeRootExp keeps an NVMe name through its namespace marker, e.g. /dev/nvme0n1p2 -> /dev/nvme0n1.
	nvmeRootExp = regexp.MustCompile(`^(.*/nvme\d+n1)`)
	// pFamilyExp matches the families whose partitions are separated from the base by a "p", e.g. nvme0n1p1.
	pFamilyExp = regexp.MustCompile(`^(.*/)?(nvme\d+n\d+|mmcblk\d+|md\d+|loop\d+)p\d+$`)
	// trailingDigitsExp matches the partition number of the plain families, e.g. sda12 or vdb1.
	trailingDigitsExp = regexp.MustCompile(`\d+$`)
)

// IsMapped reports whether dev is a device mapper name such as /dev/mapper/luks-<uuid> or /dev/dm-0. These have no
// base/partition relationship.
func IsMapped(dev string) bool {
	if strings.HasPrefix(dev, "/dev/mapper/") {
		return true
	}
	base := dev[strings.LastIndex(dev, "/")+1:]
	return strings.HasPrefix(base, "dm-")
}

// RootBase derives the base device of the device hosting /:
//   - mapped devices are returned verbatim
//   - MMC and MD devices keep their first digit run
//   - NVMe devices keep everything through the first "n1"
//   - all other families (ATA, SCSI, virtio) drop exactly one trailing character
func RootBase(dev string) string {
	if dev == "" || IsMapped(dev) {
		return dev
	}

	if m := mdMmcRootExp.FindStringSubmatch(dev); m != nil {
		return m[1]
	}

	if m := nvmeRootExp.FindStringSubmatch(dev); m != nil {
		return m[1]
	}

	return dev[:len(dev)-1]
}

// PartitionBase returns the base device of the partition name, e.g. /dev/sda3 -> /dev/sda and
// /dev/nvme0n1p2 -> /dev/nvme0n1. Names without a partition suffix are returned unchanged.
func PartitionBase(name string) string {
	if m := pFamilyExp.FindStringSubmatch(name); m != nil {
		return m[1] + m[2]
	}

	base := name[strings.LastIndex(name, "/")+1:]
	if strings.HasPrefix(base, "nvme") || strings.HasPrefix(base, "mmcblk") ||
		strings.HasPrefix(base, "md") || strings.HasPrefix(base, "loop") || IsMapped(name) {
		// whole devices of the "p" families end in digits too
		return name
	}

	return trailingDigitsExp.ReplaceAllString(name, "")
}

// OnRootBase reports whether dev is rootBase or one of its partitions. rootBase is taken from RootBase, which keeps
// the first digit of a multi-digit partition number, e.g. /dev/sda12 -> /dev/sda1.
func OnRootBase(dev, rootBase string) bool {
	if dev == rootBase || PartitionBase(dev) == rootBase {
		return true
	}
	return RootBase(dev) == rootBase && PartitionBase(dev) == PartitionBase(rootBase)
}
