package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rockstor/btrfs-utils/internal/btrfs/raid"
	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
)

// poolFlags describe the pool a command operates on. The host keeps the authoritative pool records, so they are
// passed in on every invocation.
type poolFlags struct {
	name        string
	uuid        string
	disks       []string
	raid        string
	compression string
	mntOptions  string
	root        bool
}

// addPoolFlags registers the pool description flags on cmd.
func addPoolFlags(cmd *cobra.Command, pf *poolFlags) {
	cmd.Flags().StringVar(&pf.name, "pool", "", "pool label")
	cmd.Flags().StringVar(&pf.uuid, "uuid", "", "pool filesystem uuid")
	cmd.Flags().StringArrayVar(&pf.disks, "disk", nil, "by-id name of a pool member (repeatable)")
	cmd.Flags().StringVar(&pf.raid, "raid", "single", "RAID profile key, see 'profile list'")
	cmd.Flags().StringVar(&pf.compression, "compression", "", "compression algorithm, e.g. zstd")
	cmd.Flags().StringVar(&pf.mntOptions, "mnt-options", "", "comma separated mount options")
	cmd.Flags().BoolVar(&pf.root, "root", false, "the pool hosts the operating system")
	cmd.MarkFlagRequired("pool")
}

// pool validates the flags and converts them to a Pool.
func (pf poolFlags) pool() (types.Pool, error) {
	if strings.TrimSpace(pf.name) == "" {
		return types.Pool{}, errors.New("empty pool name")
	}
	if !raid.Known(pf.raid) {
		return types.Pool{}, fmt.Errorf("unknown raid profile %q", pf.raid)
	}

	p := types.Pool{
		Name:        pf.name,
		UUID:        pf.uuid,
		Raid:        pf.raid,
		MntOptions:  pf.mntOptions,
		Compression: pf.compression,
	}
	if pf.root {
		p.Role = types.RoleRoot
	}
	for _, d := range pf.disks {
		p.Disks = append(p.Disks, diskDev(d))
	}

	return p, nil
}

// diskDev converts a disk argument into a pool member. Absolute device paths and detached placeholders are kept
// as-is; everything else is taken to be a by-id name.
func diskDev(name string) types.Dev {
	name = strings.TrimPrefix(name, "/dev/disk/by-id/")
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, types.DetachedPrefix) {
		return types.Dev{Name: name}
	}
	return types.Dev{Name: name, ByID: true}
}

// parseSize converts a human size such as "10GiB" or "500 MB" into bytes.
func parseSize(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, errors.New("empty size")
	}
	b, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(b), nil
}
