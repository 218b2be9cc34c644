package btrfs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/util"
)

// Known benign conditions reported by the quota commands.
const (
	quotaReadOnly        = "ERROR: quota command failed: Read-only file system"
	rescanInProgress     = "ERROR: quota rescan failed: Operation now in progress"
	rescanReadOnly       = "ERROR: quota rescan failed: Read-only file system"
	qgroupsDisabled      = "ERROR: can't list qgroups: quotas not enabled"
	createReadOnly       = "ERROR: unable to create quota group: Read-only file system"
	assignReadOnly       = "ERROR: unable to assign quota group: Read-only file system"
	assignInvalid        = "ERROR: unable to assign quota group: Invalid argument"
	quotaInconsistent    = "WARNING: quotas may be inconsistent, rescan needed"
	rescanScheduled      = "rescan scheduled"
	limitReadOnly        = "ERROR: unable to limit requested quota group: Read-only file system"
	limitInvalidArgument = "ERROR: unable to limit requested quota group: Invalid argument"
)

// EnableQuota enables quotas on pool.
func (c *Controller) EnableQuota(ctx context.Context, pool types.Pool) (util.CommandOutput, error) {
	return c.SwitchQuota(ctx, pool, true)
}

// DisableQuota disables quotas on pool.
func (c *Controller) DisableQuota(ctx context.Context, pool types.Pool) (util.CommandOutput, error) {
	return c.SwitchQuota(ctx, pool, false)
}

// SwitchQuota enables or disables quotas on pool. A read-only pool is logged and its output returned with a nil
// error.
func (c *Controller) SwitchQuota(ctx context.Context, pool types.Pool, enable bool) (util.CommandOutput, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return util.CommandOutput{}, err
	}

	op := "disable"
	if enable {
		op = "enable"
	}

	out, err := c.runner.Run(ctx, c.btrfs("quota", op, mnt), util.Options{})
	if _, msg := firstStderr(err); msg == quotaReadOnly {
		logrus.WithFields(logrus.Fields{
			"pool":        pool.Name,
			"mount_point": mnt,
		}).Errorf("Failed to %s quotas as the pool is read-only, remount it read-write and retry", op)
		return out, nil
	}

	return out, err
}

// RescanQuotas starts a quota rescan of the pool mounted at mnt. A rescan that is already running or a read-only
// pool is logged and its output returned with a nil error.
func (c *Controller) RescanQuotas(ctx context.Context, mnt string) (util.CommandOutput, error) {
	out, err := c.runner.Run(ctx, c.btrfs("quota", "rescan", mnt), util.Options{})

	log := logrus.WithField("mount_point", mnt)
	switch _, msg := firstStderr(err); msg {
	case rescanInProgress:
		log.Info("Quota rescan already in progress")
		return out, nil
	case rescanReadOnly:
		log.Error("Failed to rescan quotas as the pool is read-only, remount it read-write and retry")
		return out, nil
	}

	return out, err
}

// showQgroups runs "btrfs qgroup show" with args against mnt. enabled is false when quotas are disabled on the
// pool, in which case lines is empty and err is nil.
func (c *Controller) showQgroups(ctx context.Context, mnt string, args ...string) (lines []string, enabled bool, err error) {
	cmd := c.btrfs("qgroup", "show")
	cmd = append(cmd, args...)
	cmd = append(cmd, mnt)

	out, err := c.runner.Run(ctx, cmd, util.Options{})
	if ce, _ := firstStderr(err); ce != nil && ce.ReturnCode() == 1 && strings.Contains(ce.Output.Stderr, qgroupsDisabled) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return out.StdoutLines(), true, nil
}

// QgroupMax returns the highest id in the reserved quota group namespace of the pool mounted at mnt, 0 when the
// namespace is empty, or -1 when quotas are disabled.
//
// Command output from "btrfs qgroup show" should look like:
//
//	qgroupid         rfer         excl
//	--------         ----         ----
//	0/5          16.00KiB     16.00KiB
//	0/257         1.50GiB      1.50GiB
//	2015/1        1.50GiB      1.50GiB
//	2015/4          0.00B        0.00B
func (c *Controller) QgroupMax(ctx context.Context, mnt string) (int, error) {
	lines, enabled, err := c.showQgroups(ctx, mnt)
	if err != nil {
		return 0, err
	}
	if !enabled {
		return -1, nil
	}

	prefix := c.cfg.QgroupPrefix + "/"
	highest := 0
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(fields[0], prefix))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}

	return highest, nil
}

// QgroupCreate creates a quota group in the reserved namespace of pool and returns its id. When qid names a
// specific group it is created as given, otherwise the next free id is allocated. QuotasDisabled is returned when
// quotas are disabled or the pool is read-only.
func (c *Controller) QgroupCreate(ctx context.Context, pool types.Pool, qid string) (string, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return "", err
	}

	highest, err := c.QgroupMax(ctx, mnt)
	if err != nil {
		return "", err
	}
	if highest == -1 {
		return types.QuotasDisabled, nil
	}

	if qid == "" || qid == types.QuotasDisabled {
		qid = fmt.Sprintf("%s/%d", c.cfg.QgroupPrefix, highest+1)
	}

	_, err = c.runner.Run(ctx, c.btrfs("qgroup", "create", qid, mnt), util.Options{})
	if _, msg := firstStderr(err); msg == createReadOnly {
		logrus.WithFields(logrus.Fields{
			"pool":   pool.Name,
			"qgroup": qid,
		}).Error("Failed to create quota group as the pool is read-only")
		return types.QuotasDisabled, nil
	}
	if err != nil {
		return "", err
	}

	return qid, nil
}

// QgroupDestroy destroys the quota group qid of the pool mounted at mnt. It reports whether a group was destroyed;
// a missing group and disabled quotas are not errors.
func (c *Controller) QgroupDestroy(ctx context.Context, qid, mnt string) (bool, error) {
	lines, enabled, err := c.showQgroups(ctx, mnt)
	if err != nil || !enabled {
		return false, err
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != qid {
			continue
		}
		if _, err := c.runner.Run(ctx, c.btrfs("qgroup", "destroy", qid, mnt), util.Options{Log: true}); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

// QgroupIsAssigned reports whether qid has pqid among its parents in the pool mounted at mnt.
//
// Command output from "btrfs qgroup show -pc" should look like:
//
//	qgroupid         rfer         excl     parent     child
//	--------         ----         ----     ------     -----
//	0/5          16.00KiB     16.00KiB     ---        ---
//	0/257         1.50GiB      1.50GiB     2015/1,2015/2 ---
//	2015/1        1.50GiB      1.50GiB     ---        0/257
func (c *Controller) QgroupIsAssigned(ctx context.Context, qid, pqid, mnt string) (bool, error) {
	lines, enabled, err := c.showQgroups(ctx, mnt, "-pc")
	if err != nil || !enabled {
		return false, err
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != qid {
			continue
		}
		for _, parent := range strings.Split(fields[3], ",") {
			if parent == pqid {
				return true, nil
			}
		}
	}

	return false, nil
}

// QgroupAssign makes pqid a parent of qid in the pool mounted at mnt and reports whether the assignment holds.
//
// This is done through the following steps:
//  1. An existing assignment is returned as is.
//  2. The assign command is run.
//  3. A read-only pool, or an invalid argument from an indeterminate quota state, is logged and reported false.
//  4. A warning that quotas are inconsistent starts a rescan; the assignment itself was made.
func (c *Controller) QgroupAssign(ctx context.Context, qid, pqid, mnt string) (bool, error) {
	assigned, err := c.QgroupIsAssigned(ctx, qid, pqid, mnt)
	if err != nil {
		return false, err
	}
	if assigned {
		return true, nil
	}

	log := logrus.WithFields(logrus.Fields{
		"qgroup":      qid,
		"pqgroup":     pqid,
		"mount_point": mnt,
	})

	out, err := c.runner.Run(ctx, c.btrfs("qgroup", "assign", qid, pqid, mnt), util.Options{})
	if ce, msg := firstStderr(err); ce != nil {
		switch {
		case msg == assignReadOnly:
			log.Error("Failed to assign quota group as the pool is read-only")
			return false, nil
		case msg == assignInvalid:
			log.Error("Failed to assign quota group, quota state is indeterminate. Disable and re-enable quotas on the pool")
			return false, nil
		case ce.ReturnCode() == 1 && strings.Contains(ce.Output.Stdout+ce.Output.Stderr, quotaInconsistent):
			log.Info("Quotas may be inconsistent after assignment, starting a rescan")
			if _, err := c.RescanQuotas(ctx, mnt); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, err
	}
	if err != nil {
		return false, err
	}

	if strings.Contains(out.Stdout+out.Stderr, rescanScheduled) {
		log.Info("Quota rescan scheduled after assignment")
	}

	return true, nil
}

// UpdateQuota limits the referenced size of qgroup in pool to size bytes. QuotasDisabled is a no-op. A read-only
// pool or an invalid argument is logged and its output returned with a nil error.
func (c *Controller) UpdateQuota(ctx context.Context, pool types.Pool, qgroup string, size int64) (util.CommandOutput, error) {
	if qgroup == types.QuotasDisabled {
		return util.CommandOutput{}, nil
	}

	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return util.CommandOutput{}, err
	}

	out, err := c.runner.Run(ctx, c.btrfs("qgroup", "limit", strconv.FormatInt(size, 10), qgroup, mnt), util.Options{})
	switch _, msg := firstStderr(err); msg {
	case limitReadOnly, limitInvalidArgument:
		logrus.WithFields(logrus.Fields{
			"pool":   pool.Name,
			"qgroup": qgroup,
			"stderr": msg,
		}).Error("Failed to update quota group limit")
		return out, nil
	}

	return out, err
}

// VolumeUsage returns [rfer, excl] of qgroup in KiB, or [rfer, excl, parent rfer, parent excl] when pqgroup is
// set. Groups absent from the listing, and pools without quotas, report zero usage.
func (c *Controller) VolumeUsage(ctx context.Context, pool types.Pool, qgroup, pqgroup string) ([]int64, error) {
	u, err := c.VolumeUsageOf(ctx, pool, qgroup, pqgroup)
	if err != nil {
		return nil, err
	}
	return u.Tuple(), nil
}

// VolumeUsageOf is VolumeUsage in typed form.
//
// Command output from "btrfs qgroup show --raw" should look like:
//
//	qgroupid         rfer         excl
//	--------         ----         ----
//	0/5             16384        16384
//	0/257      1610612736   1610612736
//	2015/1     1610612736   1610612736
func (c *Controller) VolumeUsageOf(ctx context.Context, pool types.Pool, qgroup, pqgroup string) (types.VolumeUsage, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return types.VolumeUsage{}, err
	}

	lines, _, err := c.showQgroups(ctx, mnt, "--raw")
	if err != nil {
		return types.VolumeUsage{}, err
	}

	var u types.VolumeUsage
	if pqgroup != "" {
		u.Parent = &types.QgroupUsage{}
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		switch {
		case fields[0] == qgroup:
			u.QgroupUsage = parseQgroupUsage(fields)
		case pqgroup != "" && fields[0] == pqgroup:
			*u.Parent = parseQgroupUsage(fields)
		}
	}

	return u, nil
}

func parseQgroupUsage(fields []string) types.QgroupUsage {
	rfer, _ := strconv.ParseInt(fields[1], 10, 64)
	excl, _ := strconv.ParseInt(fields[2], 10, 64)
	return types.QgroupUsage{Rfer: rfer / 1024, Excl: excl / 1024}
}
