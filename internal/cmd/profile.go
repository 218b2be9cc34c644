package cmd

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/btrfs/raid"
	"github.com/rockstor/btrfs-utils/internal/output"
)

// profileCommand groups the RAID profile subcommands. None of them touch a device.
func profileCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "inspect btrfs RAID profiles",
	}

	cmd.AddCommand(
		profileListCommand(g),
		profileClassifyCommand(g),
		profileBoundCommand(g),
	)

	return cmd
}

func profileListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the supported RAID profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := output.NewFormatter(output.Options{Format: output.Format(g.format), NoHeaders: g.noHeaders})
			if err != nil {
				return err
			}

			var profiles output.Profiles
			for _, k := range raid.Keys() {
				if raid.Known(k) {
					profiles = append(profiles, raid.Lookup(k))
				}
			}

			return output.Print(cmd.OutOrStdout(), formatter, profiles)
		},
	}
}

func profileClassifyCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <data level> <metadata level>",
		Short: "print the profile key of a data and metadata level pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), raid.ClassifyProfile(args[0], args[1]))
			return err
		},
	}
}

func profileBoundCommand(g *globals) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "bound <size>...",
		Short: "print the usable capacity of devices under a profile",
		Long:  "bound prints the capacity a pool of devices with the given sizes (e.g. 4TiB 2TB) would have under --raid.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !raid.Known(key) {
				return fmt.Errorf("unknown raid profile %q", key)
			}

			sizes := make([]int, 0, len(args))
			for _, a := range args {
				b, err := parseSize(a)
				if err != nil {
					return err
				}
				sizes = append(sizes, int(b/1024))
			}
			// UsageBound needs the largest devices first
			sort.Sort(sort.Reverse(sort.IntSlice(sizes)))

			bound := raid.UsageBound(sizes, len(sizes), key)

			_, err := fmt.Fprintln(cmd.OutOrStdout(), humanize.IBytes(uint64(bound)*1024))
			return err
		},
	}
	cmd.Flags().StringVar(&key, "raid", "single", "RAID profile key")

	return cmd
}
