// Package system provides the functionality necessary for identifying the btrfs tooling installed on the host.
package system

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/util"
)

// Scan runs "btrfs version" and returns the detected Toolset. A version that cannot be determined is treated as
// Current since newer tools are the common case; the condition is logged as a warning.
func Scan(ctx context.Context, runner util.Runner, btrfsPath string) *Toolset {
	out, err := runner.Run(ctx, []string{btrfsPath, "version"}, util.Options{AllowFail: true})
	if err == nil && out.ReturnCode == 0 {
		var toolset *Toolset
		toolset, err = newToolset(out.Stdout)
		if err == nil {
			logrus.WithField("toolset", toolset.String()).Debug("Detected btrfs tooling")
			return toolset
		}
	}

	logrus.WithError(err).WithField("stdout", out.Stdout).Warn("Unable to determine btrfs-progs version, assuming current output layout")

	return &Toolset{Release: Current}
}
