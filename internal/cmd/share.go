package cmd

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/output"
)

// shareCommand groups the share subcommands. A share is a subvolume at the top level of a pool.
func shareCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "create, list and delete shares",
	}

	cmd.AddCommand(
		shareListCommand(g),
		shareCreateCommand(g),
		shareDeleteCommand(g),
		shareUsageCommand(g),
	)

	return cmd
}

func shareListCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list the shares of a pool with their quota groups",
		Long: strings.TrimSpace(`
list prints every share of the pool. Snapshots, nested subvolumes and the
reserved system subvolumes of the root pool are not shares; writable
snapshots at the top level of the pool (clones) are.
`),
		Args: cobra.NoArgs,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			shares, err := e.ctrl.SharesInfo(cmd.Context(), pool)
			if err != nil {
				return err
			}
			return e.print(output.Shares(shares))
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func shareCreateCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var size string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "create a share with its own parent quota group",
		Long: strings.TrimSpace(`
create allocates a parent quota group in the pool's reserved namespace,
creates the share subvolume inside it and, with --size, limits the parent
group to that size.
`),
		Args:    cobra.ExactArgs(1),
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			ctx := cmd.Context()
			name := args[0]

			var limit int64
			if size != "" {
				var err error
				if limit, err = parseSize(size); err != nil {
					return err
				}
			}

			pqgroup, err := e.ctrl.QgroupCreate(ctx, pool, "")
			if err != nil {
				return err
			}

			if _, err := e.ctrl.AddShare(ctx, pool, name, pqgroup); err != nil {
				return err
			}

			qgroup, err := e.ctrl.QgroupID(ctx, pool, name)
			if err != nil {
				return err
			}

			if limit > 0 {
				if _, err := e.ctrl.UpdateQuota(ctx, pool, pqgroup, limit); err != nil {
					return err
				}
			}

			logrus.WithFields(logrus.Fields{
				"pool":    pool.Name,
				"share":   name,
				"qgroup":  qgroup,
				"pqgroup": pqgroup,
			}).Info("Created share")

			return e.print(types.Share{Name: name, Qgroup: qgroup, Pqgroup: pqgroup, Pool: pool.Name})
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().StringVar(&size, "size", "", "limit of the share's parent quota group, e.g. 10GiB")

	return cmd
}

func shareDeleteCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var (
		pqgroup string
		force   bool
	)
	cmd := &cobra.Command{
		Use:     "delete <name>",
		Short:   "delete a share and its quota groups",
		Args:    cobra.ExactArgs(1),
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			return e.ctrl.RemoveShare(cmd.Context(), pool, args[0], pqgroup, force)
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().StringVar(&pqgroup, "pqgroup", types.QuotasDisabled, "parent quota group of the share")
	cmd.Flags().BoolVar(&force, "force", false, "delete nested subvolumes too")

	return cmd
}

func shareUsageCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var pqgroup string
	cmd := &cobra.Command{
		Use:   "usage <name>",
		Short: "print the referenced and exclusive usage of a share in KiB",
		Args:  cobra.ExactArgs(1),
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			ctx := cmd.Context()

			qgroup, err := e.ctrl.QgroupID(ctx, pool, args[0])
			if err != nil {
				return err
			}

			usage, err := e.ctrl.VolumeUsageOf(ctx, pool, qgroup, pqgroup)
			if err != nil {
				return err
			}
			return e.print(usage)
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().StringVar(&pqgroup, "pqgroup", "", "also report the usage of this parent quota group")

	return cmd
}
