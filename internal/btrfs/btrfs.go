// Package btrfs drives the btrfs tools to manage pools, shares, snapshots and quota groups, and parses their
// output into typed state.
package btrfs

//go:generate mockgen -destination mocks/mock_btrfs.go github.com/rockstor/btrfs-utils/internal/btrfs DeviceNamer,MountTable

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/config"
	"github.com/rockstor/btrfs-utils/internal/system"
	"github.com/rockstor/btrfs-utils/internal/task"
	"github.com/rockstor/btrfs-utils/internal/util"
)

const byIDDir = "/dev/disk/by-id/"

// ErrNoop is returned when a requested change results in no command, e.g. a resize whose devices all failed the
// membership check.
var ErrNoop = errors.New("btrfs: nothing to do")

// NoDisksError is returned when a pool has no known member devices to mount from.
type NoDisksError struct {
	Pool string
}

func (e *NoDisksError) Error() string {
	return fmt.Sprintf("cannot mount pool %s as it has no disks in it", e.Pool)
}

// MountError is returned when every mount method for a pool was tried without success or a clear cause.
type MountError struct {
	Pool string
	Cmd  []string
}

func (e *MountError) Error() string {
	return fmt.Sprintf("failed to mount pool %s due to an unknown reason, last command: %v", e.Pool, e.Cmd)
}

// DeviceNamer resolves transient kernel device names to stable by-id names.
type DeviceNamer interface {
	// GetDevByIdName returns the by-id name of name and whether one was found.
	GetDevByIdName(ctx context.Context, name string, stripPath bool) (string, bool)
}

// MountTable reports the kernel's current mounts.
type MountTable interface {
	// IsMounted reports whether anything is mounted at path.
	IsMounted(path string) (bool, error)
}

// Controller manages pools through the btrfs command line tools. It holds no state between calls: every query is
// answered from fresh command output.
type Controller struct {
	runner  util.Runner
	cfg     *config.Config
	toolset *system.Toolset
	namer   DeviceNamer
	mounts  MountTable
	tasks   task.Dispatcher

	// exists, mkdirAll and sleep are replaced in tests.
	exists   func(string) bool
	mkdirAll func(string) error
	sleep    func(time.Duration)
}

// NewController returns a Controller running commands through runner. toolset selects the output layout of the
// installed btrfs-progs; a nil toolset is treated as current.
func NewController(runner util.Runner, cfg *config.Config, toolset *system.Toolset, namer DeviceNamer, tasks task.Dispatcher) *Controller {
	if toolset == nil {
		toolset = &system.Toolset{Release: system.Current}
	}

	return &Controller{
		runner:   runner,
		cfg:      cfg,
		toolset:  toolset,
		namer:    namer,
		mounts:   &procMounts{path: cfg.MountsFile},
		tasks:    tasks,
		exists:   pathExists,
		mkdirAll: func(p string) error { return os.MkdirAll(p, 0o755) },
		sleep:    time.Sleep,
	}
}

// MountPoint returns where the top level of pool is mounted.
func (c *Controller) MountPoint(pool types.Pool) string {
	return c.cfg.MountDir + pool.Name
}

// btrfs prefixes args with the btrfs binary.
func (c *Controller) btrfs(args ...string) []string {
	return append([]string{c.cfg.Commands.Btrfs}, args...)
}

// devPath returns the by-id path of a member device.
func devPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return byIDDir + name
}

// procMounts is the MountTable backed by the kernel's mount table file.
type procMounts struct {
	path string
}

// Type assertion to ensure procMounts implements the MountTable interface.
var _ MountTable = (*procMounts)(nil)

// IsMounted scans the mount table for a row whose mount point is path.
func (m *procMounts) IsMounted(path string) (bool, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return false, fmt.Errorf("btrfs: failed to read mount table: %w", err)
	}

	return mountedIn(data, path), nil
}

// mountedIn reports whether a mount table row has path as its mount point.
func mountedIn(table []byte, path string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(table))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 1 && fields[1] == path {
			return true
		}
	}
	return false
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// firstStderr returns the first stderr line of a failed command error, or "" when err is not a command failure.
func firstStderr(err error) (*util.CommandError, string) {
	ce, ok := util.AsCommandError(err)
	if !ok {
		return nil, ""
	}
	return ce, ce.FirstStderr()
}
