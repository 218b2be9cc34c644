package btrfs

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/btrfs/raid"
	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/task"
	"github.com/rockstor/btrfs-utils/internal/util"
)

var (
	// fsLabelExp matches the header of a "btrfs filesystem show" entry.
	fsLabelExp = regexp.MustCompile(`^Label:\s+(?:'(.*)'|(none))\s+uuid:\s+(\S+)`)
	// fsTotalExp matches the device count of a "btrfs filesystem show" entry.
	fsTotalExp = regexp.MustCompile(`^\s*Total devices\s+(\d+)`)
	// fsDevidExp matches a member row of a "btrfs filesystem show" entry.
	fsDevidExp = regexp.MustCompile(`^\s*devid\s+(\d+)\s+size\s+(\S+)\s+used\s+(\S+)\s+path\s+(.+)$`)
	// fiDFExp matches a "btrfs filesystem df" row.
	fiDFExp = regexp.MustCompile(`^(\w+),\s+(\w+):`)
	// fiUsageExp matches a "btrfs filesystem usage -b" overall row.
	fiUsageExp = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z ()]*?):\s+(-?\d+)`)
	// devStatsExp matches a "btrfs device stats" row.
	devStatsExp = regexp.MustCompile(`^\[(.+)\]\.(\w+)\s+(-?\d+)$`)
)

// CreatePool formats the pool's member devices with its RAID profile and label, then enables quotas on it. A
// quota enable ending in a known, non fatal condition is logged and its output returned with a nil error.
func (c *Controller) CreatePool(ctx context.Context, pool types.Pool) (util.CommandOutput, error) {
	if !raid.Known(pool.Raid) {
		return util.CommandOutput{}, fmt.Errorf("btrfs: unknown raid profile %q", pool.Raid)
	}
	profile := raid.Lookup(pool.Raid)

	// Build the mkfs.btrfs command:
	// * -f overwrites any existing filesystem signature
	// * -d and -m set the data and metadata levels
	// * -L labels the filesystem with the pool name
	c1 := []string{c.cfg.Commands.MkfsBtrfs, "-f", "-d", profile.DataRaid, "-m", profile.MetadataRaid, "-L", pool.Name}
	for _, d := range pool.Disks {
		c1 = append(c1, devPath(d.Name))
	}

	out, err := c.runner.Run(ctx, c1, util.Options{Log: true})
	if err != nil {
		return out, err
	}

	qout, err := c.EnableQuota(ctx, pool)
	if err != nil {
		return qout, err
	}
	if qout.ReturnCode != 0 {
		logrus.WithFields(logrus.Fields{
			"pool":   pool.Name,
			"rc":     qout.ReturnCode,
			"stdout": qout.Stdout,
			"stderr": qout.Stderr,
		}).Error("Enabling quota on newly created pool returned a non-zero code")
		return qout, nil
	}

	return out, nil
}

// fsShow is one parsed "btrfs filesystem show" entry.
type fsShow struct {
	label   string
	uuid    string
	total   int
	devs    []fsShowDev
	missing int
}

type fsShowDev struct {
	devid   int
	size    string
	used    string
	path    string
	missing bool
}

// parseFilesystemShow decodes "btrfs filesystem show" output for a single filesystem. Warning lines printed before
// the header are skipped.
//
// Command output from "btrfs filesystem show --raw" should look like:
//
//	warning, device 4 is missing
//	Label: 'rock-pool'  uuid: 5b2b0fe5-5c8e-4b8a-9a9b-1b0c7a3d2e41
//		Total devices 4 FS bytes used 1245184
//		devid    1 size 5368709120 used 2155872256 path /dev/sdb
//		devid    2 size 5368709120 used 1073741824 path /dev/sdc
//		devid    3 size 5368709120 used 1073741824 path /dev/sdd
//		*** Some devices missing
func (s outputSchema) parseFilesystemShow(lines []string) fsShow {
	var fs fsShow
	attached := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "warning, device") {
			continue
		}
		if m := fsLabelExp.FindStringSubmatch(line); m != nil {
			fs.label = m[1]
			fs.uuid = m[3]
			continue
		}
		if m := fsTotalExp.FindStringSubmatch(line); m != nil {
			fs.total, _ = strconv.Atoi(m[1])
			continue
		}
		if m := fsDevidExp.FindStringSubmatch(line); m != nil {
			devid, _ := strconv.Atoi(m[1])
			d := fsShowDev{devid: devid, size: m[2], used: m[3], path: strings.TrimSpace(m[4]), missing: s.isMissingRow(line)}
			if !d.missing {
				attached++
			}
			fs.devs = append(fs.devs, d)
		}
	}

	fs.missing = fs.total - attached
	return fs
}

// PoolMissingDevCount returns how many member devices of the filesystem labelled label are missing. The label is
// used rather than a mount point so that degraded, unmountable pools can be evaluated.
func (c *Controller) PoolMissingDevCount(ctx context.Context, label string) (int, error) {
	if label == "" {
		return 0, nil
	}

	out, err := c.runner.Run(ctx, c.btrfs("filesystem", "show", "--raw", label), util.Options{AllowFail: true})
	if err != nil {
		return 0, err
	}

	return c.schema().parseFilesystemShow(out.StdoutLines()).missing, nil
}

// PoolInfo returns the label, uuid and members of the filesystem device belongs to.
func (c *Controller) PoolInfo(ctx context.Context, device string) (types.PoolInfo, error) {
	out, err := c.runner.Run(ctx, c.btrfs("filesystem", "show", "--raw", devPath(device)), util.Options{Log: true})
	if err != nil {
		return types.PoolInfo{}, err
	}

	fs := c.schema().parseFilesystemShow(out.StdoutLines())
	info := types.PoolInfo{
		Label:       fs.label,
		UUID:        fs.uuid,
		TotalDevs:   fs.total,
		MissingDevs: fs.missing,
	}
	for _, d := range fs.devs {
		if d.missing {
			continue
		}
		size, _ := strconv.ParseInt(d.size, 10, 64)
		used, _ := strconv.ParseInt(d.used, 10, 64)
		name, byID := c.namer.GetDevByIdName(ctx, filepath.Base(d.path), true)
		info.Disks = append(info.Disks, types.Dev{
			Name:      name,
			ByID:      byID,
			DevID:     d.devid,
			Size:      size,
			Allocated: used,
		})
	}

	return info, nil
}

// CurrentDevices returns the by-id names of the attached members of the pool mounted at mnt.
func (c *Controller) CurrentDevices(ctx context.Context, mnt string) ([]string, error) {
	out, err := c.runner.Run(ctx, c.btrfs("filesystem", "show", mnt), util.Options{Log: true})
	if err != nil {
		return nil, err
	}

	var devs []string
	for _, d := range c.schema().parseFilesystemShow(out.StdoutLines()).devs {
		if d.missing {
			continue
		}
		name, _ := c.namer.GetDevByIdName(ctx, filepath.Base(d.path), true)
		devs = append(devs, name)
	}
	return devs, nil
}

// DeviceScan registers member devices with the kernel. With no devices every block device is scanned. Detached
// placeholders and members whose by-id path is gone are skipped.
func (c *Controller) DeviceScan(ctx context.Context, devs []types.Dev) (util.CommandOutput, error) {
	if len(devs) == 0 {
		return c.runner.Run(ctx, c.btrfs("device", "scan"), util.Options{Log: true})
	}

	var out util.CommandOutput
	for _, d := range devs {
		if d.Detached() {
			continue
		}
		path := devPath(d.Name)
		if !c.exists(path) {
			logrus.WithField("device", path).Debug("Skipping scan of absent device")
			continue
		}

		var err error
		out, err = c.runner.Run(ctx, c.btrfs("device", "scan", path), util.Options{Log: true})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// ResizePoolCmd builds the command that adds devs to, or deletes devs from, pool. Devices that fail the membership
// check are skipped: an added device must not be a member already, a deleted device must be a member. When the
// pool is degraded "missing" may be deleted, and a detached placeholder stands for it. ErrNoop is returned when no
// device passes.
func (c *Controller) ResizePoolCmd(ctx context.Context, pool types.Pool, devs []string, add bool) ([]string, error) {
	if len(devs) == 0 {
		return nil, ErrNoop
	}

	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return nil, err
	}

	current, err := c.CurrentDevices(ctx, mnt)
	if err != nil {
		return nil, err
	}
	members := map[string]bool{}
	for _, d := range current {
		members[d] = true
	}

	flag := "delete"
	if add {
		flag = "add"
	}
	cmd := c.btrfs("device", flag)
	base := len(cmd)

	degraded := false
	if !add {
		missing, err := c.PoolMissingDevCount(ctx, pool.Name)
		if err != nil {
			return nil, err
		}
		degraded = missing > 0
	}

	missingQueued := false
	for _, d := range devs {
		log := logrus.WithFields(logrus.Fields{"pool": pool.Name, "device": d, "op": flag})
		switch {
		case add && !members[d]:
			cmd = append(cmd, devPath(d))
		case add:
			log.Warn("Device is already a pool member, skipping")
		case members[d]:
			cmd = append(cmd, devPath(d))
		case d == "missing" || strings.HasPrefix(d, types.DetachedPrefix):
			if !degraded {
				log.Warn("Pool is not degraded, skipping removal of missing device")
				continue
			}
			if missingQueued {
				continue
			}
			cmd = append(cmd, "missing")
			missingQueued = true
		default:
			log.Warn("Device is not a pool member, skipping")
		}
	}

	if len(cmd) == base {
		return nil, ErrNoop
	}

	return append(cmd, mnt), nil
}

// StartResize submits the resize of pool to the background dispatcher and returns the task id.
func (c *Controller) StartResize(ctx context.Context, pool types.Pool, devs []string, add bool) (string, error) {
	cmd, err := c.ResizePoolCmd(ctx, pool, devs, add)
	if err != nil {
		return "", err
	}

	return c.tasks.Submit(ctx, task.Task{Name: "resize " + pool.Name, Command: cmd})
}

// PoolRaid returns the level of each block group type of pool and the profile they classify as.
//
// Command output from "btrfs filesystem df" should look like:
//
//	Data, RAID1: total=1.00GiB, used=512.00KiB
//	Data, single: total=8.00MiB, used=0.00B
//	System, RAID1: total=8.00MiB, used=16.00KiB
//	Metadata, RAID1C3: total=256.00MiB, used=112.00KiB
//	GlobalReserve, single: total=3.25MiB, used=0.00B
func (c *Controller) PoolRaid(ctx context.Context, pool types.Pool) (types.PoolRaid, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return types.PoolRaid{}, err
	}

	out, err := c.runner.Run(ctx, c.btrfs("filesystem", "df", mnt), util.Options{Log: true})
	if err != nil {
		return types.PoolRaid{}, err
	}

	return parseFilesystemDF(out.StdoutLines()), nil
}

func parseFilesystemDF(lines []string) types.PoolRaid {
	levels := map[string][]string{}
	for _, line := range lines {
		m := fiDFExp.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		block := strings.ToLower(m[1])
		levels[block] = append(levels[block], m[2])
	}

	pr := types.PoolRaid{
		Data:     raid.DominantLevel(levels["data"]),
		Metadata: raid.DominantLevel(levels["metadata"]),
		System:   raid.DominantLevel(levels["system"]),
	}
	pr.Profile = raid.ClassifyProfile(pr.Data, pr.Metadata)
	return pr
}

// PoolUsage returns the overall size and usage of pool in KiB.
//
// Command output from "btrfs filesystem usage -b" should start like:
//
//	Overall:
//	    Device size:		  16106127360
//	    Device allocated:		   2702180352
//	    Device unallocated:		  13403947008
//	    Device missing:		            0
//	    Used:			       917504
//	    Free (estimated):		   7774846976	(min: 7774846976)
func (c *Controller) PoolUsage(ctx context.Context, pool types.Pool) (types.PoolUsage, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return types.PoolUsage{}, err
	}

	out, err := c.runner.Run(ctx, c.btrfs("filesystem", "usage", "-b", mnt), util.Options{Log: true})
	if err != nil {
		return types.PoolUsage{}, err
	}

	return parseFilesystemUsage(out.StdoutLines()), nil
}

func parseFilesystemUsage(lines []string) types.PoolUsage {
	var u types.PoolUsage
	for _, line := range lines {
		m := fiUsageExp.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		switch m[1] {
		case "Device size":
			u.Size = v / 1024
		case "Device allocated":
			u.Allocated = v / 1024
		case "Used":
			u.Used = v / 1024
		case "Free (estimated)":
			u.Free = v / 1024
		}
	}
	return u
}

// DevStats returns the error counters of each member of the pool mounted at mnt.
//
// Command output from "btrfs device stats" should look like:
//
//	[/dev/sdb].write_io_errs    0
//	[/dev/sdb].read_io_errs     0
//	[/dev/sdb].flush_io_errs    0
//	[/dev/sdb].corruption_errs  0
//	[/dev/sdb].generation_errs  0
func (c *Controller) DevStats(ctx context.Context, mnt string) ([]types.DevStats, error) {
	out, err := c.runner.Run(ctx, c.btrfs("device", "stats", mnt), util.Options{Log: true})
	if err != nil {
		return nil, err
	}

	return parseDevStats(out.StdoutLines()), nil
}

func parseDevStats(lines []string) []types.DevStats {
	var stats []types.DevStats
	index := map[string]int{}
	for _, line := range lines {
		m := devStatsExp.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		i, ok := index[m[1]]
		if !ok {
			i = len(stats)
			index[m[1]] = i
			stats = append(stats, types.DevStats{Device: m[1]})
		}
		v, _ := strconv.ParseInt(m[3], 10, 64)
		switch m[2] {
		case "write_io_errs":
			stats[i].WriteIOErrs = v
		case "read_io_errs":
			stats[i].ReadIOErrs = v
		case "flush_io_errs":
			stats[i].FlushIOErrs = v
		case "corruption_errs":
			stats[i].CorruptionErrs = v
		case "generation_errs":
			stats[i].GenerationErrs = v
		}
	}
	return stats
}

// DefaultSubvol returns the default subvolume of the filesystem mounted at /.
//
// Command output from "btrfs subvolume get-default /" should look like:
//
//	ID 268 gen 1563 top level 267 path @/.snapshots/1/snapshot
//
// or, when the top level tree is the default:
//
//	ID 5 (FS_TREE)
func (c *Controller) DefaultSubvol(ctx context.Context) (types.DefaultSubvol, error) {
	out, err := c.runner.Run(ctx, c.btrfs("subvolume", "get-default", "/"), util.Options{Log: true})
	if err != nil {
		return types.DefaultSubvol{}, err
	}

	lines := out.StdoutLines()
	if len(lines) == 0 {
		return types.DefaultSubvol{}, fmt.Errorf("btrfs: empty get-default output")
	}

	return parseDefaultSubvol(lines[0], c.cfg.RootSubvolume)
}

// parseDefaultSubvol decodes a get-default line. The system is booted to a snapshot unless the default is the top
// level tree or rootSubvol.
func parseDefaultSubvol(line, rootSubvol string) (types.DefaultSubvol, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "ID" {
		return types.DefaultSubvol{}, fmt.Errorf("btrfs: unexpected get-default output %q", line)
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return types.DefaultSubvol{}, fmt.Errorf("btrfs: unexpected get-default id %q: %w", fields[1], err)
	}

	path := fields[len(fields)-1]
	if _, after, ok := strings.Cut(line, " path "); ok {
		path = strings.TrimSpace(after)
	}

	return types.DefaultSubvol{
		ID:         id,
		Path:       path,
		BootToSnap: path != "(FS_TREE)" && path != rootSubvol,
	}, nil
}
