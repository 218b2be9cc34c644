package btrfs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/btrfs/raid"
	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/task"
	"github.com/rockstor/btrfs-utils/internal/util"
)

// BalanceCmd builds the balance command for the pool mounted at mnt. convert, when set, is the profile key to
// convert data and metadata to; otherwise a full balance is requested.
func BalanceCmd(btrfsPath, mnt string, force bool, convert string) ([]string, error) {
	cmd := []string{btrfsPath, "balance", "start", mnt}

	if force {
		cmd = insertAt(cmd, 3, "-f")
	}

	if convert == "" {
		return insertAt(cmd, 3, "--full-balance"), nil
	}

	if !raid.Known(convert) {
		return nil, fmt.Errorf("btrfs: unknown raid profile %q", convert)
	}
	profile := raid.Lookup(convert)
	cmd = insertAt(cmd, 3, "-dconvert="+profile.DataRaid)
	return insertAt(cmd, 3, "-mconvert="+profile.MetadataRaid), nil
}

func insertAt(s []string, i int, v string) []string {
	out := make([]string, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	return append(out, s[i:]...)
}

// StartBalance submits a balance of pool to the background dispatcher and returns the task id.
func (c *Controller) StartBalance(ctx context.Context, pool types.Pool, force bool, convert string) (string, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return "", err
	}

	cmd, err := BalanceCmd(c.cfg.Commands.Btrfs, mnt, force, convert)
	if err != nil {
		return "", err
	}

	return c.tasks.Submit(ctx, task.Task{Name: "balance " + pool.Name, Command: cmd})
}

// BalanceStatus returns the balance state of pool as reported by "btrfs balance status".
func (c *Controller) BalanceStatus(ctx context.Context, pool types.Pool) (types.BalanceStatus, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return types.BalanceStatus{}, err
	}

	out, err := c.runner.Run(ctx, c.btrfs("balance", "status", mnt), util.Options{AllowFail: true})
	if err != nil {
		return types.BalanceStatus{}, err
	}

	return parseBalanceStatus(out.StdoutLines()), nil
}

// parseBalanceStatus decodes "btrfs balance status" output. Unrecognised output is StatusUnknown.
//
// Command output from "btrfs balance status" should look like:
//
//	Balance on '/mnt2/rock-pool' is running
//	3 out of about 12 chunks balanced (4 considered),  75% left
//
// or, once done:
//
//	No balance found on '/mnt2/rock-pool'
func parseBalanceStatus(lines []string) types.BalanceStatus {
	st := types.BalanceStatus{Status: types.StatusUnknown}
	if len(lines) == 0 {
		return st
	}

	first := lines[0]
	switch {
	case strings.HasPrefix(first, "Balance"):
		switch {
		case strings.Contains(first, "cancel requested"):
			st.Status = types.StatusCancelling
		case strings.Contains(first, "pause requested"):
			st.Status = types.StatusPausing
		case strings.Contains(first, "paused"):
			st.Status = types.StatusPaused
		default:
			st.Status = types.StatusRunning
		}

		if len(lines) > 1 && strings.Contains(lines[1], "chunks balanced") {
			fields := strings.Fields(lines[1])
			if len(fields) >= 2 {
				left, err := strconv.Atoi(strings.TrimSuffix(fields[len(fields)-2], "%"))
				if err == nil {
					st.PercentDone = 100 - left
				}
			}
		}
	case strings.HasPrefix(first, "No balance"):
		st.Status = types.StatusFinished
		st.PercentDone = 100
	}

	return st
}

// BalanceStatusInternal infers a balance from negative unallocated space, which a device removal produces while it
// moves chunks off the device. "btrfs balance status" does not report these.
func (c *Controller) BalanceStatusInternal(ctx context.Context, pool types.Pool) (types.BalanceStatus, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return types.BalanceStatus{}, err
	}

	out, err := c.runner.Run(ctx, c.btrfs("device", "usage", "-b", mnt), util.Options{AllowFail: true})
	if err != nil {
		return types.BalanceStatus{}, err
	}

	return parseDeviceUsage(out.StdoutLines()), nil
}

// parseDeviceUsage returns StatusRunning when any device reports negative unallocated space, StatusFinished when
// every device reports it, and StatusUnknown when none is reported.
//
// Command output from "btrfs device usage -b" should look like:
//
//	/dev/sdb, ID: 1
//	   Device size:          5368709120
//	   Device slack:                  0
//	   Data,RAID1:           1073741824
//	   Unallocated:          4294967296
//
//	/dev/sdc, ID: 2
//	   Device size:                   0
//	   Unallocated:         -1073741824
func parseDeviceUsage(lines []string) types.BalanceStatus {
	st := types.BalanceStatus{Status: types.StatusUnknown}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "Unallocated:" {
			continue
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			return types.BalanceStatus{Status: types.StatusRunning}
		}
		st.Status = types.StatusFinished
	}

	if st.Status == types.StatusFinished {
		st.PercentDone = 100
	}
	return st
}

// BalanceStatusAll combines BalanceStatus and BalanceStatusInternal. An internal balance is reported only when the
// regular status shows nothing in progress.
func (c *Controller) BalanceStatusAll(ctx context.Context, pool types.Pool) (types.BalanceStatusAll, error) {
	st, err := c.BalanceStatus(ctx, pool)
	if err != nil {
		return types.BalanceStatusAll{}, err
	}

	if st.Status != types.StatusUnknown && st.Status != types.StatusFinished {
		return types.BalanceStatusAll{Active: true, Status: st}, nil
	}

	internal, err := c.BalanceStatusInternal(ctx, pool)
	if err != nil {
		return types.BalanceStatusAll{}, err
	}
	if internal.Status == types.StatusRunning {
		logrus.WithField("pool", pool.Name).Debug("Internal balance detected")
		return types.BalanceStatusAll{Active: true, Internal: true, Status: internal}, nil
	}

	return types.BalanceStatusAll{Status: st}, nil
}
