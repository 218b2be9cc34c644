package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/btrfs"
	"github.com/rockstor/btrfs-utils/internal/btrfs/raid"
	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/output"
)

// poolCommand groups the pool lifecycle subcommands.
func poolCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "create, mount and maintain btrfs pools",
		Long: strings.TrimSpace(`
pool manages btrfs filesystems spanning one or more devices. The pool is
described with --pool and its members with repeated --disk flags, using the
by-id names reported by 'disks scan'.
`),
	}

	cmd.AddCommand(
		poolCreateCommand(g),
		poolMountCommand(g),
		poolUnmountCommand(g),
		poolScanCommand(g),
		poolMissingCommand(g),
		poolInfoCommand(g),
		poolUsageCommand(g),
		poolRaidCommand(g),
		poolStatsCommand(g),
		poolDefaultSubvolCommand(g),
		poolResizeCommand(g),
		poolBalanceCommand(g),
		poolBalanceStatusCommand(g),
		poolScrubCommand(g),
		poolScrubStatusCommand(g),
	)

	return cmd
}

// poolRunE builds the env and pool for a pool subcommand and hands them to fn.
func poolRunE(g *globals, pf *poolFlags, fn func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		pool, err := pf.pool()
		if err != nil {
			return err
		}

		e, err := newEnv(cmd, g)
		if err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"pool":  pool.Name,
			"raid":  pool.Raid,
			"disks": len(pool.Disks),
		}).Debug("Running pool command")

		return fn(cmd, args, e, pool)
	}
}

func poolCreateCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "format devices into a new pool and enable quotas",
		Long: strings.TrimSpace(`
create formats every --disk with the data and metadata levels of the --raid
profile, labels the filesystem with the pool name and enables quotas.

NOTE: any existing filesystem on the devices is overwritten
`),
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			if len(pool.Disks) == 0 {
				return errors.New("at least one --disk is required")
			}
			if p := raid.Lookup(pool.Raid); len(pool.Disks) < p.MinDevices {
				return fmt.Errorf("raid profile %s needs at least %d devices, got %d", p.Key, p.MinDevices, len(pool.Disks))
			}

			logrus.WithField("pool", pool.Name).Info("Creating pool...")
			if _, err := e.ctrl.CreatePool(cmd.Context(), pool); err != nil {
				return err
			}
			logrus.WithField("pool", pool.Name).Info("Successfully created pool")

			return nil
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func poolMountCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:     "mount",
		Short:   "mount the top level of a pool",
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			mnt, err := e.ctrl.Mount(cmd.Context(), pool)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(e.out, mnt)
			return err
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func poolUnmountCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:     "unmount",
		Short:   "unmount a pool and remove its mount point",
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			return e.ctrl.Unmount(cmd.Context(), e.ctrl.MountPoint(pool))
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func poolScanCommand(g *globals) *cobra.Command {
	var disks []string
	cmd := &cobra.Command{
		Use:     "scan",
		Short:   "register member devices with the kernel",
		Long:    "scan runs 'btrfs device scan' on each --disk, or on every block device when none is given.",
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}

			var devs []types.Dev
			for _, d := range disks {
				devs = append(devs, diskDev(d))
			}

			_, err = e.ctrl.DeviceScan(cmd.Context(), devs)
			return err
		},
	}
	cmd.Flags().StringArrayVar(&disks, "disk", nil, "by-id name of a device to scan (repeatable)")

	return cmd
}

func poolMissingCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "missing",
		Short: "print how many member devices are missing",
		Args:  cobra.NoArgs,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			n, err := e.ctrl.PoolMissingDevCount(cmd.Context(), pool.Name)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(e.out, n)
			return err
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func poolInfoCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "info <device>",
		Short: "print the pool a device belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}

			info, err := e.ctrl.PoolInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output.Format(g.format) == output.FormatTable {
				return e.print(output.Devs(info.Disks))
			}
			return e.print(info)
		},
	}
}

func poolUsageCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "print pool size and usage in KiB",
		Args:  cobra.NoArgs,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			usage, err := e.ctrl.PoolUsage(cmd.Context(), pool)
			if err != nil {
				return err
			}
			return e.print(usage)
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func poolRaidCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "raid",
		Short: "print the RAID levels in use and the profile they form",
		Args:  cobra.NoArgs,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			r, err := e.ctrl.PoolRaid(cmd.Context(), pool)
			if err != nil {
				return err
			}
			return e.print(r)
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func poolStatsCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "print the error counters of each member device",
		Args:  cobra.NoArgs,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			mnt, err := e.ctrl.Mount(cmd.Context(), pool)
			if err != nil {
				return err
			}

			stats, err := e.ctrl.DevStats(cmd.Context(), mnt)
			if err != nil {
				return err
			}
			return e.print(stats)
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func poolDefaultSubvolCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "default-subvol",
		Short: "print the default subvolume of the filesystem mounted at /",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}

			def, err := e.ctrl.DefaultSubvol(cmd.Context())
			if err != nil {
				return err
			}
			return e.print(def)
		},
	}
}

// resizeArgs holds the devices passed to the resize command.
type resizeArgs struct {
	add    []string
	remove []string
}

// validate checks that exactly one direction was requested and that every device name is usable.
func (a resizeArgs) validate() ([]string, bool, error) {
	if len(a.add) > 0 && len(a.remove) > 0 {
		return nil, false, errors.New("--add and --remove are mutually exclusive")
	}
	if len(a.add) == 0 && len(a.remove) == 0 {
		return nil, false, errors.New("one of --add or --remove is required")
	}

	add := len(a.add) > 0
	devs := a.remove
	if add {
		devs = a.add
	}

	names := make([]string, 0, len(devs))
	for _, d := range devs {
		d = strings.TrimPrefix(strings.TrimSpace(d), "/dev/disk/by-id/")
		if d == "" {
			return nil, false, errors.New("empty device name")
		}
		if add && d == "missing" {
			return nil, false, errors.New("cannot add the missing device")
		}
		names = append(names, d)
	}

	return names, add, nil
}

func poolResizeCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	ra := resizeArgs{}
	cmd := &cobra.Command{
		Use:   "resize",
		Short: "add devices to or remove devices from a pool",
		Long: strings.TrimSpace(`
resize adds the --add devices to, or deletes the --remove devices from, the
pool. Devices that are already members are not added again and devices that
are not members are not removed. When the pool is degraded 'missing' removes
the absent member.

The device change runs in the background; its progress is reported by
'balance-status'.
`),
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			devs, add, err := ra.validate()
			if err != nil {
				return fmt.Errorf("cannot resize pool: %w", err)
			}

			id, err := e.ctrl.StartResize(cmd.Context(), pool, devs, add)
			if errors.Is(err, btrfs.ErrNoop) {
				logrus.WithField("pool", pool.Name).Warn("No device change to make")
				return nil
			}
			if err != nil {
				return err
			}

			e.wait(id)
			logrus.WithField("pool", pool.Name).Info("Finished resizing pool")

			return nil
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().StringArrayVar(&ra.add, "add", nil, "by-id name of a device to add (repeatable)")
	cmd.Flags().StringArrayVar(&ra.remove, "remove", nil, "by-id name of a member to remove, or 'missing' (repeatable)")

	return cmd
}

func poolBalanceCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var (
		force   bool
		convert string
	)
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "rebalance a pool, optionally converting its RAID profile",
		Long: strings.TrimSpace(`
balance rewrites every chunk of the pool. With --convert the data and metadata
levels of the given profile are applied; metadata reduction needs --force.
`),
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			if convert != "" && !raid.Known(convert) {
				return fmt.Errorf("unknown raid profile %q", convert)
			}

			id, err := e.ctrl.StartBalance(cmd.Context(), pool, force, convert)
			if err != nil {
				return err
			}

			e.wait(id)
			logrus.WithField("pool", pool.Name).Info("Finished balancing pool")

			return nil
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().BoolVar(&force, "force", false, "allow reducing metadata redundancy")
	cmd.Flags().StringVar(&convert, "convert", "", "RAID profile key to convert to")

	return cmd
}

func poolBalanceStatusCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "balance-status",
		Short: "print the state of a regular or device removal balance",
		Args:  cobra.NoArgs,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			st, err := e.ctrl.BalanceStatusAll(cmd.Context(), pool)
			if err != nil {
				return err
			}
			return e.print(st)
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func poolScrubCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var force bool
	cmd := &cobra.Command{
		Use:     "scrub",
		Short:   "start a scrub of a pool",
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			_, err := e.ctrl.StartScrub(cmd.Context(), pool, force)
			return err
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().BoolVar(&force, "force", false, "start even when a scrub state file says one is running")

	return cmd
}

func poolScrubStatusCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "scrub-status",
		Short: "print the state and counters of the last scrub",
		Args:  cobra.NoArgs,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			st, err := e.ctrl.ScrubStatusAll(cmd.Context(), pool)
			if err != nil {
				return err
			}
			return e.print(st)
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}
