package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
)

// quotaCommand groups the quota and quota group subcommands.
func quotaCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "manage pool quotas and quota groups",
		Long: strings.TrimSpace(`
quota switches quota accounting on a pool and manages the quota groups that
limit shares. Conditions such as a read-only pool or an already running rescan
are reported in the log and do not fail the command.
`),
	}

	cmd.AddCommand(
		quotaSwitchCommand(g, true),
		quotaSwitchCommand(g, false),
		quotaRescanCommand(g),
		quotaCreateCommand(g),
		quotaAssignCommand(g),
		quotaLimitCommand(g),
	)

	return cmd
}

func quotaSwitchCommand(g *globals, enable bool) *cobra.Command {
	pf := &poolFlags{}
	use, short := "disable", "disable quotas on a pool"
	if enable {
		use, short = "enable", "enable quotas on a pool"
	}
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			_, err := e.ctrl.SwitchQuota(cmd.Context(), pool, enable)
			return err
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func quotaRescanCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:     "rescan",
		Short:   "start a quota rescan of a pool",
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			mnt, err := e.ctrl.Mount(cmd.Context(), pool)
			if err != nil {
				return err
			}
			_, err = e.ctrl.RescanQuotas(cmd.Context(), mnt)
			return err
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func quotaCreateCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var qgroup string
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "create a quota group in the reserved namespace",
		Args:    cobra.NoArgs,
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			qid, err := e.ctrl.QgroupCreate(cmd.Context(), pool, qgroup)
			if err != nil {
				return err
			}
			if qid == types.QuotasDisabled {
				logrus.WithField("pool", pool.Name).Warn("Quotas are disabled, no quota group created")
			}

			_, err = fmt.Fprintln(e.out, qid)
			return err
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().StringVar(&qgroup, "qgroup", "", "quota group to create, the next free id when empty")

	return cmd
}

func quotaAssignCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	cmd := &cobra.Command{
		Use:     "assign <qgroup> <parent qgroup>",
		Short:   "make a quota group the child of another",
		Args:    cobra.ExactArgs(2),
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			mnt, err := e.ctrl.Mount(cmd.Context(), pool)
			if err != nil {
				return err
			}

			assigned, err := e.ctrl.QgroupAssign(cmd.Context(), args[0], args[1], mnt)
			if err != nil {
				return err
			}
			if !assigned {
				return fmt.Errorf("quota group %s was not assigned to %s", args[0], args[1])
			}

			return nil
		}),
	}
	addPoolFlags(cmd, pf)

	return cmd
}

func quotaLimitCommand(g *globals) *cobra.Command {
	pf := &poolFlags{}
	var size string
	cmd := &cobra.Command{
		Use:     "limit <qgroup>",
		Short:   "limit the referenced size of a quota group",
		Args:    cobra.ExactArgs(1),
		PreRunE: assertRootPrivileges,
		RunE: poolRunE(g, pf, func(cmd *cobra.Command, args []string, e *env, pool types.Pool) error {
			limit, err := parseSize(size)
			if err != nil {
				return err
			}

			_, err = e.ctrl.UpdateQuota(cmd.Context(), pool, args[0], limit)
			return err
		}),
	}
	addPoolFlags(cmd, pf)
	cmd.Flags().StringVar(&size, "size", "", "limit, e.g. 10GiB or 500MB")
	cmd.MarkFlagRequired("size")

	return cmd
}
