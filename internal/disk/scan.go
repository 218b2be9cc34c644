package disk

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/disk/identifier"
	"github.com/rockstor/btrfs-utils/internal/disk/types"
	"github.com/rockstor/btrfs-utils/internal/util"
)

// lsblkColumns is the column set requested from lsblk, in output order.
const lsblkColumns = "NAME,MODEL,SERIAL,SIZE,TRAN,VENDOR,HCTL,TYPE,FSTYPE,LABEL,UUID"

var (
	// pairExp matches one KEY="value" pair of lsblk -P output.
	pairExp = regexp.MustCompile(`([A-Z:-]+)="([^"]*)"`)
	// sizeExp matches an lsblk size such as 5G, 2.7T, 500.5M or 5.00GiB.
	sizeExp = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([BKMGTPE])(?:i?B)?$`)
	// bcacheExp matches the virtual device bcache exposes over a backing device.
	bcacheExp = regexp.MustCompile(`(^|/)bcache\d+$`)
)

// lsblkDevice is one row of lsblk -P output.
type lsblkDevice struct {
	Name   string
	Model  string
	Serial string
	Size   string
	Tran   string
	Vendor string
	HCTL   string
	Type   string
	FSType string
	Label  string
	UUID   string
}

// parseLsblk decodes lsblk -P -p output. Values are trimmed as lsblk pads vendor and model columns.
//
// Command output from "lsblk -P -p -o NAME,MODEL,SERIAL,SIZE,TRAN,VENDOR,HCTL,TYPE,FSTYPE,LABEL,UUID" should
// look like:
//
//	NAME="/dev/sda" MODEL="WDC WD30EFRX-68E" SERIAL="WD-WMC4N0912345" SIZE="2.7T" TRAN="sata" VENDOR="ATA     " HCTL="0:0:0:0" TYPE="disk" FSTYPE="btrfs" LABEL="data" UUID="b8f2a6a4-2b4e-4f7a-9a0d-7d9e2c1f0a11"
//	NAME="/dev/sdb" MODEL="QEMU HARDDISK" SERIAL="QM00002" SIZE="8G" TRAN="sata" VENDOR="ATA     " HCTL="1:0:0:0" TYPE="disk" FSTYPE="" LABEL="" UUID=""
//	NAME="/dev/sdb1" MODEL="" SERIAL="" SIZE="7G" TRAN="" VENDOR="" HCTL="" TYPE="part" FSTYPE="btrfs" LABEL="ROOT" UUID="2e2a4ad4-8f3d-4caa-9b4a-3b3b8a1f0c22"
func parseLsblk(text string) []lsblkDevice {
	var devs []lsblkDevice
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		kv := map[string]string{}
		for _, m := range pairExp.FindAllStringSubmatch(line, -1) {
			kv[m[1]] = strings.TrimSpace(m[2])
		}
		if kv["NAME"] == "" {
			continue
		}

		devs = append(devs, lsblkDevice{
			Name:   kv["NAME"],
			Model:  kv["MODEL"],
			Serial: kv["SERIAL"],
			Size:   kv["SIZE"],
			Tran:   kv["TRAN"],
			Vendor: kv["VENDOR"],
			HCTL:   kv["HCTL"],
			Type:   kv["TYPE"],
			FSType: kv["FSTYPE"],
			Label:  kv["LABEL"],
			UUID:   kv["UUID"],
		})
	}
	return devs
}

// parseSizeKiB converts an lsblk size into KiB. lsblk reports binary units without the "iB" suffix.
func parseSizeKiB(size string) (int64, error) {
	m := sizeExp.FindStringSubmatch(strings.TrimSpace(size))
	if m == nil {
		return 0, fmt.Errorf("unparseable size %q", size)
	}

	unit := m[2]
	if unit == "B" {
		unit = ""
	} else {
		unit += "iB"
	}

	b, err := humanize.ParseBytes(m[1] + unit)
	if err != nil {
		return 0, err
	}

	return int64(b / 1024), nil
}

// rootIdentity is the hardware identity of the physical root disk. lsblk only reports it on the whole device, so it
// is held until the partition or container that hosts / is reached.
type rootIdentity struct {
	set       bool
	serial    string
	model     string
	transport string
	vendor    string
	hctl      string
}

// scanState is the state carried across one ordered pass over the inventory. The pass relies on lsblk listing
// every base device before its partitions; a partition listed first is never back-ported to its base.
type scanState struct {
	rootBase string

	// disks holds the recorded devices by transient name, order holds the recording order.
	disks map[string]*types.Disk
	order []string
	// seen holds every name processed, recorded or not.
	seen map[string]bool
	// serials holds the serials assigned so far.
	serials map[string]bool

	stash rootIdentity
	// rootFound is set once a btrfs device has claimed the root identity.
	rootFound bool
	// bcacheSerial is the serial of the last bcache formatted device, inherited by the following bcache device.
	bcacheSerial string

	// udev caches property lookups for the duration of the pass.
	udev map[string]map[string]string
}

func newScanState(rootBase string) *scanState {
	return &scanState{
		rootBase: rootBase,
		disks:    map[string]*types.Disk{},
		seen:     map[string]bool{},
		serials:  map[string]bool{},
		udev:     map[string]map[string]string{},
	}
}

// ScanDisks lists every block device and classifies it into a Disk record. Disks under the configured minimum
// size, optical drives, swap and duplicate listings are excluded. Exactly one record is flagged root.
//
// This is done through the following steps:
//  1. The base device hosting / is resolved.
//  2. lsblk lists every device with its hardware and filesystem fields.
//  3. Each row is classified in order, back-porting partition details to the already recorded base device.
//  4. Each recorded device receives a serial, synthesized when missing, fake or duplicated.
//  5. Names are converted to their by-id form.
func (s *Scanner) ScanDisks(ctx context.Context) ([]types.Disk, error) {
	// Resolve the root base device
	rootBase, err := s.RootDisk(ctx)
	if err != nil {
		return nil, err
	}
	logrus.WithField("root_base", rootBase).Debug("Resolved root base device")

	// List the block device inventory
	c := []string{s.cfg.Commands.Lsblk, "-P", "-p", "-o", lsblkColumns}
	out, err := s.runner.Run(ctx, c, util.Options{Log: true})
	if err != nil {
		return nil, fmt.Errorf("disk: failed to list block devices: %w", err)
	}

	// Classify every row in a single pass
	st := newScanState(rootBase)
	for _, dev := range parseLsblk(out.Stdout) {
		s.classify(ctx, st, dev)
	}

	// Convert to stable names
	disks := make([]types.Disk, 0, len(st.order))
	for _, name := range st.order {
		d := *st.disks[name]
		d.Name, _ = selectByID(name, s.cachedUdev(ctx, st, name)["DEVLINKS"], true)
		for i, p := range d.Partitions {
			d.Partitions[i].Name, _ = selectByID(p.Name, s.cachedUdev(ctx, st, p.Name)["DEVLINKS"], true)
		}
		disks = append(disks, d)
	}

	return disks, nil
}

// classify applies the exclusion and classification rules to one lsblk row.
func (s *Scanner) classify(ctx context.Context, st *scanState, dev lsblkDevice) {
	log := logrus.WithField("device", dev.Name)

	// Exclusions
	if st.seen[dev.Name] {
		log.Debug("Skipping device listed more than once")
		return
	}
	st.seen[dev.Name] = true

	if dev.Type == types.TypeRom || dev.FSType == "swap" {
		return
	}

	size, err := parseSizeKiB(dev.Size)
	if err != nil {
		log.WithError(err).Debug("Skipping device with unknown size")
		return
	}
	if size < s.cfg.MinDiskSizeKiB {
		log.WithField("size", size).Debug("Skipping device below minimum size")
		return
	}

	rec := &types.Disk{
		Model:     dev.Model,
		Serial:    dev.Serial,
		Size:      size,
		Transport: dev.Tran,
		Vendor:    dev.Vendor,
		HCTL:      dev.HCTL,
		Type:      dev.Type,
		FSType:    dev.FSType,
		Label:     dev.Label,
		UUID:      dev.UUID,
	}

	// md composite devices get a summary of their members as model
	if types.IsRaidPersonality(dev.Type) {
		if summary := mdMemberSummary(s.cachedUdev(ctx, st, dev.Name), dev.Type); summary != "" {
			rec.Model = summary
		}
	}

	// Stash the physical root disk identity
	if dev.Name == st.rootBase {
		st.stash = rootIdentity{
			set:       true,
			serial:    dev.Serial,
			model:     rec.Model,
			transport: dev.Tran,
			vendor:    dev.Vendor,
			hctl:      dev.HCTL,
		}
		rec.Root = true
	}

	isPartition := dev.Type == types.TypePartition || dev.Type == types.TypeMD
	isBtrfs := dev.FSType == "btrfs"

	if isPartition {
		s.backport(st, dev, size)
	}

	if isPartition && !isBtrfs {
		return
	}

	inherited := false
	if isBtrfs && st.rootBase != "" && !st.rootFound && identifier.OnRootBase(dev.Name, st.rootBase) {
		// This device hosts /: it takes over the physical disk identity and the root flag.
		st.rootFound = true
		if st.stash.set {
			rec.Serial = st.stash.serial
			rec.Model = st.stash.model
			rec.Transport = st.stash.transport
			rec.Vendor = st.stash.vendor
			rec.HCTL = st.stash.hctl
			inherited = true
		}
		if base, ok := st.disks[st.rootBase]; ok && st.rootBase != dev.Name {
			base.Root = false
		}
		rec.Root = true
	} else if isBtrfs && isPartition {
		// non-root btrfs partitions are represented by their base device
		return
	}

	rec.Serial = s.resolveSerial(ctx, st, dev, rec.Serial, inherited)

	st.disks[dev.Name] = rec
	st.order = append(st.order, dev.Name)
}

// backport copies partition details onto the recorded base device without overwriting an existing filesystem.
func (s *Scanner) backport(st *scanState, dev lsblkDevice, size int64) {
	base, ok := st.disks[identifier.PartitionBase(dev.Name)]
	if !ok || base == nil {
		logrus.WithField("device", dev.Name).Debug("No recorded base device for partition")
		return
	}

	base.Parted = true
	base.AddPartition(dev.Name, dev.FSType)

	switch dev.FSType {
	case "linux_raid_member", "crypto_LUKS":
		if base.FSType == "" {
			base.FSType = dev.FSType
			base.UUID = dev.UUID
		}
	case "btrfs":
		if base.FSType == "" {
			base.Size = size
			base.Type = dev.Type
			base.FSType = dev.FSType
			base.Label = dev.Label
			base.UUID = dev.UUID
		}
	}
}

// resolveSerial picks the serial for a recorded device and replaces it with a placeholder when it is empty, a
// known fake, or already assigned in this pass. An inherited root serial is exempt from the duplicate check as the
// base device it came from is the same hardware.
func (s *Scanner) resolveSerial(ctx context.Context, st *scanState, dev lsblkDevice, serial string, inherited bool) string {
	if serial == "" {
		serial = udevSerial(s.cachedUdev(ctx, st, dev.Name), dev.Type)
	}

	if dev.FSType == "bcache" {
		st.bcacheSerial = serial
	} else if serial == "" && bcacheExp.MatchString(dev.Name) && st.bcacheSerial != "" {
		serial = "bcache-" + st.bcacheSerial
	}

	fake := serial == "" || s.isFakeSerial(serial) || (st.serials[serial] && !inherited)
	if fake {
		placeholder := types.FakeSerialPrefix + s.newSerial()
		logrus.WithFields(logrus.Fields{
			"device":      dev.Name,
			"serial":      serial,
			"placeholder": placeholder,
		}).Warn("Device has no usable serial, assigning a placeholder")
		serial = placeholder
	}

	st.serials[serial] = true
	return serial
}

func (s *Scanner) isFakeSerial(serial string) bool {
	for _, f := range s.cfg.FakeSerials {
		if strings.EqualFold(serial, f) {
			return true
		}
	}
	return false
}

func (s *Scanner) cachedUdev(ctx context.Context, st *scanState, name string) map[string]string {
	if props, ok := st.udev[name]; ok {
		return props
	}
	props := s.udevProperties(ctx, name)
	st.udev[name] = props
	return props
}

// udevSerial picks the serial from udev properties: the array UUID for md devices, the mapping UUID for device
// mapper devices, otherwise the first drive serial found.
func udevSerial(props map[string]string, devType string) string {
	switch {
	case types.IsRaidPersonality(devType) || devType == types.TypeMD:
		return props["MD_UUID"]
	case devType == types.TypeCrypt:
		return props["DM_UUID"]
	}

	for _, key := range []string{"ID_SCSI_SERIAL", "ID_SERIAL_SHORT", "ID_SERIAL"} {
		if v := props[key]; v != "" {
			return v
		}
	}
	return ""
}

// mdMemberSummary describes an md array by its members and level, e.g. "[sda,sdb] raid1".
//
// The udev properties of an md array should include:
//
//	MD_LEVEL=raid1
//	MD_DEVICE_ev_sda_DEV=/dev/sda
//	MD_DEVICE_ev_sdb_DEV=/dev/sdb
func mdMemberSummary(props map[string]string, devType string) string {
	var members []string
	for k, v := range props {
		if strings.HasPrefix(k, "MD_DEVICE_") && strings.HasSuffix(k, "_DEV") {
			members = append(members, strings.TrimPrefix(v, "/dev/"))
		}
	}
	if len(members) == 0 {
		return ""
	}
	sort.Strings(members)

	level := props["MD_LEVEL"]
	if level == "" {
		level = devType
	}

	return fmt.Sprintf("[%s] %s", strings.Join(members, ","), level)
}
