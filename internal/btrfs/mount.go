package btrfs

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/util"
)

// notMountedExp matches the umount complaint about a path that is not a mount point.
var notMountedExp = regexp.MustCompile(`not mounted\.?$`)

// Mount mounts the top level of pool at its mount point and returns that mount point. A mounted pool is left as
// is.
//
// This is done through the following steps:
//  1. The mount point is created and made immutable so nothing is written to it while unmounted.
//  2. The member devices are scanned so the kernel knows every member of a multi device pool.
//  3. The pool is mounted by label.
//  4. When that fails each attached member is tried in turn, failing only when the last device fails.
func (c *Controller) Mount(ctx context.Context, pool types.Pool) (string, error) {
	mnt := c.MountPoint(pool)
	log := logrus.WithFields(logrus.Fields{"pool": pool.Name, "mount_point": mnt})

	mounted, err := c.mounts.IsMounted(mnt)
	if err != nil {
		return "", err
	}
	if mounted {
		return mnt, nil
	}

	// Create the immutable mount point
	if err := c.mkdirAll(mnt); err != nil {
		return "", fmt.Errorf("btrfs: failed to create mount point %s: %w", mnt, err)
	}
	if err := c.setImmutable(ctx, mnt, true); err != nil {
		return "", err
	}

	// Scan the members
	if _, err := c.DeviceScan(ctx, pool.AttachedDisks()); err != nil {
		log.WithError(err).Warn("Device scan before mount failed")
	}

	opts := c.mountOptions(pool)
	withOpts := func(dev string) []string {
		cmd := []string{c.cfg.Commands.Mount, dev, mnt}
		if opts != "" {
			cmd = append(cmd, "-o", opts)
		}
		return cmd
	}

	// Mount by label
	byLabel := "/dev/disk/by-label/" + pool.Name
	if c.exists(byLabel) {
		_, err := c.runner.Run(ctx, withOpts(byLabel), util.Options{})
		if err == nil {
			return mnt, nil
		}
		log.WithError(err).Warn("Mount by label failed, trying member devices")
	}

	// Mount by device
	devs := pool.AttachedDisks()
	if len(pool.Disks) == 0 || len(devs) == 0 {
		return "", &NoDisksError{Pool: pool.Name}
	}

	var last []string
	for i, d := range devs {
		dev := devPath(d.Name)
		if !c.exists(dev) {
			log.WithField("device", dev).Debug("Member device path missing, skipping")
			continue
		}

		last = withOpts(dev)
		_, err := c.runner.Run(ctx, last, util.Options{})
		if err == nil {
			return mnt, nil
		}
		if i == len(devs)-1 {
			return "", err
		}
		log.WithError(err).WithField("device", dev).Error("Mount by device failed, trying next member")
	}

	return "", &MountError{Pool: pool.Name, Cmd: last}
}

// mountOptions joins the pool's mount options with its compression setting and, for the root pool, the root
// subvolume.
func (c *Controller) mountOptions(pool types.Pool) string {
	var opts []string
	if pool.MntOptions != "" {
		opts = append(opts, pool.MntOptions)
	}

	if pool.Compression != "" && pool.Compression != "no" && !strings.Contains(pool.MntOptions, "compress") {
		opts = append(opts, "compress="+pool.Compression)
	}

	if pool.IsRoot() && c.MountPoint(pool) != "/" && !strings.Contains(pool.MntOptions, "subvol=") {
		opts = append(opts, "subvol="+c.cfg.RootSubvolume)
	}

	return strings.Join(opts, ",")
}

// Unmount lazily unmounts mnt and removes the mount point once the kernel reports it gone. When the configured
// number of polls is exhausted the unmount is forced. A path that is not mounted is not an error.
func (c *Controller) Unmount(ctx context.Context, mnt string) error {
	if !c.exists(mnt) {
		return nil
	}

	_, err := c.runner.Run(ctx, []string{c.cfg.Commands.Umount, "-l", mnt}, util.Options{})
	if ce, ok := util.AsCommandError(err); ok && ce.ReturnCode() == 32 {
		for _, line := range ce.Output.StderrLines() {
			if notMountedExp.MatchString(strings.TrimSpace(line)) {
				return nil
			}
		}
	}
	if err != nil {
		return err
	}

	for i := 0; i < c.cfg.Unmount.Attempts; i++ {
		mounted, err := c.mounts.IsMounted(mnt)
		if err != nil {
			return err
		}
		if !mounted {
			return c.removeMountPoint(ctx, mnt)
		}
		c.sleep(c.cfg.Unmount.Interval)
	}

	logrus.WithField("mount_point", mnt).Warn("Lazy unmount did not complete, forcing")
	if _, err := c.runner.Run(ctx, []string{c.cfg.Commands.Umount, "-f", mnt}, util.Options{Log: true}); err != nil {
		return err
	}

	return c.removeMountPoint(ctx, mnt)
}

func (c *Controller) removeMountPoint(ctx context.Context, mnt string) error {
	if err := c.setImmutable(ctx, mnt, false); err != nil {
		return err
	}
	_, err := c.runner.Run(ctx, []string{c.cfg.Commands.Rmdir, mnt}, util.Options{Log: true})
	return err
}

// setImmutable sets or clears the immutable attribute of path.
func (c *Controller) setImmutable(ctx context.Context, path string, immutable bool) error {
	flag := "-i"
	if immutable {
		flag = "+i"
	}
	_, err := c.runner.Run(ctx, []string{c.cfg.Commands.Chattr, flag, path}, util.Options{Log: true})
	return err
}

// IsMounted reports whether anything is mounted at path.
func (c *Controller) IsMounted(path string) (bool, error) {
	return c.mounts.IsMounted(path)
}
