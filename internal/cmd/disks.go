package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/output"
)

// disksCommand groups the block device discovery subcommands.
func disksCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disks",
		Short: "discover and manage block devices",
	}

	cmd.AddCommand(
		disksScanCommand(g),
		disksRootCommand(g),
		disksByIDCommand(g),
		disksSpinDownCommand(g),
		disksPowerStateCommand(g),
	)

	return cmd
}

func disksScanCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "list block devices suitable for pools",
		Long: strings.TrimSpace(`
scan lists every whole disk, partition, LUKS container, bcache device and md
array large enough to be used by a pool. Serial numbers are verified for
uniqueness and a placeholder serial is generated for devices that report none.
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}

			disks, err := e.scanner.ScanDisks(cmd.Context())
			if err != nil {
				return err
			}
			logrus.WithField("count", len(disks)).Debug("Scanned disks")

			return e.print(output.Disks(disks))
		},
	}
}

func disksRootCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "root",
		Short: "print the base device hosting /",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}

			dev, err := e.scanner.RootDisk(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(e.out, dev)
			return err
		},
	}
}

func disksByIDCommand(g *globals) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "byid <device>",
		Short: "print the by-id name of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}

			name, found := e.scanner.GetDevByIdName(cmd.Context(), args[0], !full)
			if !found {
				logrus.WithField("device", args[0]).Warn("No by-id name found for device")
			}

			_, err = fmt.Fprintln(e.out, name)
			return err
		},
	}
	cmd.Flags().BoolVar(&full, "full-path", false, "print the /dev/disk/by-id path instead of the bare name")

	return cmd
}

func disksSpinDownCommand(g *globals) *cobra.Command {
	var value int

	cmd := &cobra.Command{
		Use:     "spindown <by-id name>",
		Short:   "set the standby timeout of a drive",
		Args:    cobra.ExactArgs(1),
		PreRunE: assertRootPrivileges,
		RunE: func(cmd *cobra.Command, args []string) error {
			if value < 0 || value > 255 {
				return fmt.Errorf("invalid standby value %d, must be between 0 and 255", value)
			}

			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}

			_, err = e.scanner.SpinDown(cmd.Context(), args[0], value)
			return err
		},
	}
	cmd.Flags().IntVar(&value, "value", 0, "hdparm -S standby value, 0 disables spin down")

	return cmd
}

func disksPowerStateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "power-state <by-id name>",
		Short:   "print the power state of a drive",
		Args:    cobra.ExactArgs(1),
		PreRunE: assertRootPrivileges,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}

			state, err := e.scanner.PowerState(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(e.out, state)
			return err
		},
	}
}
