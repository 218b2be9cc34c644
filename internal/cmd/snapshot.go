package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/output"
)

// snapshotCommand groups the snapshot subcommands.
func snapshotCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "create, list and delete snapshots of shares",
	}

	cmd.AddCommand(
		snapshotListCommand(g),
		snapshotCreateCommand(g),
		snapshotDeleteCommand(g),
	)

	return cmd
}

func snapshotListCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "list <share>",
		Short: "list the snapshots of a share",
		Args:  cobra.ExactArgs(1),
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			snaps, err := e.ctrl.SnapshotsInfo(cmd.Context(), pool, args[0])
			if err != nil {
				return err
			}
			return e.print(output.Snapshots(snaps))
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func snapshotCreateCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var writable bool
	cmd := &cobra.Command{
		Use:     "create <share> <snapshot>",
		Short:   "snapshot a share, read-only unless --writable",
		Args:    cobra.ExactArgs(2),
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			if _, err := e.ctrl.CreateSnapshot(cmd.Context(), pool, args[0], args[1], writable); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"pool":     pool.Name,
				"share":    args[0],
				"snapshot": args[1],
			}).Info("Created snapshot")

			return nil
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().BoolVar(&writable, "writable", false, "create a writable snapshot")

	return cmd
}

func snapshotDeleteCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var qgroup string
	cmd := &cobra.Command{
		Use:     "delete <share> <snapshot>",
		Short:   "delete a snapshot and its quota group",
		Args:    cobra.ExactArgs(2),
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			ctx := cmd.Context()
			share, snap := args[0], args[1]

			if qgroup == "" {
				var err error
				if qgroup, err = e.ctrl.SnapshotQgroupID(ctx, pool, share, snap); err != nil {
					logrus.WithError(err).WithField("snapshot", snap).Debug("No quota group found for snapshot")
					qgroup = types.QuotasDisabled
				}
			}

			return e.ctrl.RemoveSnapshot(ctx, pool, share, snap, qgroup)
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().StringVar(&qgroup, "qgroup", "", "quota group of the snapshot, looked up when empty")

	return cmd
}
