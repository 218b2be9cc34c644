// Package disk discovers block devices and assigns each one a stable identity, a root/partition classification and
// a usable serial number.
package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/config"
	"github.com/rockstor/btrfs-utils/internal/util"
)

// ByIDDir is the directory of stable device names.
const ByIDDir = "/dev/disk/by-id/"

// NonBTRFSRootError is returned when / is not mounted from a btrfs filesystem.
type NonBTRFSRootError struct {
	MountsFile string
}

func (e *NonBTRFSRootError) Error() string {
	return fmt.Sprintf("no btrfs filesystem mounted at / found in %s", e.MountsFile)
}

// Scanner runs the device inventory tools and classifies their output.
type Scanner struct {
	runner util.Runner
	cfg    *config.Config

	// readFile, evalSymlinks and newSerial are replaced in tests.
	readFile     func(string) ([]byte, error)
	evalSymlinks func(string) (string, error)
	newSerial    func() string
}

// NewScanner returns a Scanner running commands through runner with the paths and thresholds in cfg.
func NewScanner(runner util.Runner, cfg *config.Config) *Scanner {
	return &Scanner{
		runner:       runner,
		cfg:          cfg,
		readFile:     os.ReadFile,
		evalSymlinks: filepath.EvalSymlinks,
		newSerial:    func() string { return uuid.New().String() },
	}
}

// udevProperties returns the udev database properties of dev. Lookup failures are logged and yield an empty map.
func (s *Scanner) udevProperties(ctx context.Context, dev string) map[string]string {
	c := []string{s.cfg.Commands.Udevadm, "info", "--query=property", "--name", dev}
	out, err := s.runner.Run(ctx, c, util.Options{AllowFail: true})
	if err != nil {
		logrus.WithError(err).WithField("device", dev).Warn("Unable to query udev properties")
		return map[string]string{}
	}
	if out.ReturnCode != 0 {
		logrus.WithFields(logrus.Fields{
			"device": dev,
			"stderr": out.FirstStderr(),
		}).Debug("No udev properties for device")
		return map[string]string{}
	}

	return util.ExtractKeyValues([]byte(out.Stdout), "=", nil)
}

// DevicePath returns the transient device path a by-id name currently points at.
func (s *Scanner) DevicePath(byID string) (string, error) {
	link := byID
	if !filepath.IsAbs(link) {
		link = ByIDDir + byID
	}

	path, err := s.evalSymlinks(link)
	if err != nil {
		return "", fmt.Errorf("disk: failed to resolve %s: %w", link, err)
	}

	return path, nil
}
