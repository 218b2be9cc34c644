package btrfs

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/util"
)

// snapshotDir is the pool relative directory snapshots are created under.
const snapshotDir = ".snapshots"

// parseSubvolLine decodes one "btrfs subvolume list" row. The columns present depend on the flags the listing
// was made with; absent columns are left zero and "-" uuids are treated as absent.
//
// Command output from "btrfs subvolume list -s -p -q -u" should look like:
//
//	ID 260 gen 12 cgen 12 parent 5 top level 5 otime 2023-01-02 10:00:00 parent_uuid 7f1a2b3c-0cc3-4a4e-9f59-2a3b4c5d6e7f uuid 9d2e4f60-1bb2-4b5f-8e68-3a4b5c6d7e8f path .snapshots/share1/snap1
func parseSubvolLine(line string) (types.Subvol, bool) {
	var sv types.Subvol
	head, p, ok := strings.Cut(line, " path ")
	if !ok || !strings.HasPrefix(head, "ID ") {
		return sv, false
	}
	sv.Path = strings.TrimSpace(p)

	tokens := strings.Fields(head)
	next := func(i int) string {
		if i+1 < len(tokens) {
			return tokens[i+1]
		}
		return ""
	}
	uuidOf := func(s string) string {
		if s == "-" {
			return ""
		}
		return s
	}

	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "ID":
			sv.ID, _ = strconv.Atoi(next(i))
			i++
		case "gen":
			sv.Gen, _ = strconv.Atoi(next(i))
			i++
		case "cgen":
			sv.CGen, _ = strconv.Atoi(next(i))
			i++
		case "parent":
			sv.Parent, _ = strconv.Atoi(next(i))
			i++
		case "top":
			if next(i) == "level" {
				sv.TopLevel, _ = strconv.Atoi(next(i + 1))
				i += 2
			}
		case "otime":
			sv.OTime = next(i) + " " + next(i+1)
			i += 2
		case "parent_uuid":
			sv.ParentUUID = uuidOf(next(i))
			i++
		case "received_uuid":
			i++
		case "uuid":
			sv.UUID = uuidOf(next(i))
			i++
		}
	}

	return sv, true
}

// listSubvols runs "btrfs subvolume list" with args against mnt and returns the parsed rows.
func (c *Controller) listSubvols(ctx context.Context, mnt string, args ...string) ([]types.Subvol, error) {
	cmd := c.btrfs("subvolume", "list")
	cmd = append(cmd, args...)
	cmd = append(cmd, mnt)

	out, err := c.runner.Run(ctx, cmd, util.Options{Log: true})
	if err != nil {
		return nil, err
	}

	var svs []types.Subvol
	for _, line := range out.StdoutLines() {
		if sv, ok := parseSubvolLine(line); ok {
			svs = append(svs, sv)
		}
	}
	return svs, nil
}

// IsSubvol reports whether path is a subvolume.
func (c *Controller) IsSubvol(ctx context.Context, path string) (bool, error) {
	out, err := c.runner.Run(ctx, c.btrfs("subvolume", "show", path), util.Options{AllowFail: true})
	if err != nil {
		return false, err
	}
	return out.ReturnCode == 0, nil
}

// isWritable reports whether the subvolume at path lacks the read-only property.
func (c *Controller) isWritable(ctx context.Context, path string) (bool, error) {
	out, err := c.runner.Run(ctx, c.btrfs("property", "get", "-ts", path, "ro"), util.Options{Log: true})
	if err != nil {
		return false, err
	}
	for _, line := range out.StdoutLines() {
		if strings.TrimSpace(line) == "ro=false" {
			return true, nil
		}
	}
	return false, nil
}

// ShareID returns the subvolume id of the share name in pool. Names are resolved the way SharesInfo reports
// them, so on the root pool the root subvolume and any boot snapshot prefix are not part of name.
func (c *Controller) ShareID(ctx context.Context, pool types.Pool, name string) (int, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return 0, err
	}

	var def types.DefaultSubvol
	if pool.IsRoot() {
		if def, err = c.DefaultSubvol(ctx); err != nil {
			return 0, err
		}
	}

	svs, err := c.listSubvols(ctx, mnt)
	if err != nil {
		return 0, err
	}
	for _, sv := range svs {
		if c.shareName(pool, def, sv.Path) == name {
			return sv.ID, nil
		}
	}

	return 0, fmt.Errorf("btrfs: subvolume %s not found in pool %s", name, pool.Name)
}

// QgroupID returns the quota group of the share name in pool, "0/<subvol id>".
func (c *Controller) QgroupID(ctx context.Context, pool types.Pool, name string) (string, error) {
	id, err := c.ShareID(ctx, pool, name)
	if err != nil {
		return "", err
	}
	return "0/" + strconv.Itoa(id), nil
}

// SnapshotQgroupID returns the quota group of snap of share, created by CreateSnapshot.
func (c *Controller) SnapshotQgroupID(ctx context.Context, pool types.Pool, share, snap string) (string, error) {
	return c.QgroupID(ctx, pool, path.Join(snapshotDir, share, snap))
}

// AddShare creates the share name in pool. An existing share is left as is. When qid is a quota group the new
// subvolume is added to it.
func (c *Controller) AddShare(ctx context.Context, pool types.Pool, name, qid string) (util.CommandOutput, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return util.CommandOutput{}, err
	}

	subvol := mnt + "/" + name
	exists, err := c.IsSubvol(ctx, subvol)
	if err != nil || exists {
		return util.CommandOutput{}, err
	}

	cmd := c.btrfs("subvolume", "create")
	if qid != "" && qid != types.QuotasDisabled {
		cmd = append(cmd, "-i", qid)
	}
	cmd = append(cmd, subvol)

	return c.runner.Run(ctx, cmd, util.Options{Log: true})
}

// RemoveShare deletes the share name from pool along with its quota group and the parent quota group pqgroup.
//
// This is done through the following steps:
//  1. A separately mounted share is unmounted.
//  2. The immutable flag is cleared, as it makes the delete fail with "operation not permitted".
//  3. With force, nested subvolumes at any depth are deleted first, deepest first.
//  4. The subvolume is deleted, then its quota groups.
func (c *Controller) RemoveShare(ctx context.Context, pool types.Pool, name, pqgroup string, force bool) error {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return err
	}

	shareMnt := c.cfg.MountDir + name
	mounted, err := c.mounts.IsMounted(shareMnt)
	if err != nil {
		return err
	}
	if mounted {
		if err := c.Unmount(ctx, shareMnt); err != nil {
			return err
		}
	}

	subvol := mnt + "/" + name
	exists, err := c.IsSubvol(ctx, subvol)
	if err != nil || !exists {
		return err
	}

	qgroup, err := c.QgroupID(ctx, pool, name)
	if err != nil {
		return err
	}

	if err := c.setImmutable(ctx, subvol, false); err != nil {
		return err
	}

	if force {
		nested, err := c.nestedSubvols(ctx, pool, mnt, subvol)
		if err != nil {
			return err
		}
		for _, n := range nested {
			if err := c.setImmutable(ctx, n, false); err != nil {
				return err
			}
			if _, err := c.runner.Run(ctx, c.btrfs("subvolume", "delete", n), util.Options{Log: true}); err != nil {
				return err
			}
		}
	}

	if _, err := c.runner.Run(ctx, c.btrfs("subvolume", "delete", subvol), util.Options{Log: true}); err != nil {
		return err
	}

	if _, err := c.QgroupDestroy(ctx, qgroup, mnt); err != nil {
		return err
	}
	if pqgroup != "" && pqgroup != types.QuotasDisabled {
		if _, err := c.QgroupDestroy(ctx, pqgroup, mnt); err != nil {
			return err
		}
	}

	return nil
}

// nestedSubvols returns the paths of every subvolume below dir, each listed before the subvolume holding it.
func (c *Controller) nestedSubvols(ctx context.Context, pool types.Pool, mnt, dir string) ([]string, error) {
	children, err := c.listSubvols(ctx, dir, "-o")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, sv := range children {
		child := c.subvolPath(pool, mnt, sv.Path)
		below, err := c.nestedSubvols(ctx, pool, mnt, child)
		if err != nil {
			return nil, err
		}
		out = append(out, below...)
		out = append(out, child)
	}
	return out, nil
}

// subvolPath maps a path relative to the top level tree to its location under mnt. The root pool is mounted from
// its root subvolume.
func (c *Controller) subvolPath(pool types.Pool, mnt, p string) string {
	if pool.IsRoot() {
		p = strings.TrimPrefix(p, c.cfg.RootSubvolume+"/")
	}
	return path.Join(mnt, p)
}

// CreateSnapshot snapshots share into the pool's snapshot directory as snap. Return code 19 is logged and
// tolerated: it comes from deferred kernel cleanup and the snapshot exists regardless.
func (c *Controller) CreateSnapshot(ctx context.Context, pool types.Pool, share, snap string, writable bool) (util.CommandOutput, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return util.CommandOutput{}, err
	}

	dir := path.Join(mnt, snapshotDir, share)
	if err := c.mkdirAll(dir); err != nil {
		return util.CommandOutput{}, fmt.Errorf("btrfs: failed to create snapshot directory %s: %w", dir, err)
	}

	cmd := c.btrfs("subvolume", "snapshot", mnt+"/"+share, dir+"/"+snap)
	if !writable {
		cmd = append(cmd[:3], append([]string{"-r"}, cmd[3:]...)...)
	}

	out, err := c.runner.Run(ctx, cmd, util.Options{})
	if ce, _ := firstStderr(err); ce != nil && ce.ReturnCode() == 19 {
		logrus.WithFields(logrus.Fields{
			"pool":     pool.Name,
			"share":    share,
			"snapshot": snap,
		}).Warn("Snapshot command returned 19, the snapshot was created")
		return out, nil
	}

	return out, err
}

// RemoveSnapshot deletes snap of share from pool along with its quota group. A snapshot that is not at its
// expected path is looked up in the pool's snapshot listing by name, and its quota group is taken from the listing.
func (c *Controller) RemoveSnapshot(ctx context.Context, pool types.Pool, share, snap, qgroup string) error {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return err
	}

	snapMnt := c.cfg.MountDir + snap
	mounted, err := c.mounts.IsMounted(snapMnt)
	if err != nil {
		return err
	}
	if mounted {
		if err := c.Unmount(ctx, snapMnt); err != nil {
			return err
		}
	}

	subvol := path.Join(mnt, snapshotDir, share, snap)
	exists, err := c.IsSubvol(ctx, subvol)
	if err != nil {
		return err
	}
	if exists {
		if _, err := c.runner.Run(ctx, c.btrfs("subvolume", "delete", subvol), util.Options{Log: true}); err != nil {
			return err
		}
		_, err := c.QgroupDestroy(ctx, qgroup, mnt)
		return err
	}

	snaps, err := c.listSubvols(ctx, mnt, "-s")
	if err != nil {
		return err
	}
	for _, sv := range snaps {
		if sv.Path != snap && !strings.HasSuffix(sv.Path, "/"+snap) {
			continue
		}
		if _, err := c.runner.Run(ctx, c.btrfs("subvolume", "delete", c.subvolPath(pool, mnt, sv.Path)), util.Options{Log: true}); err != nil {
			return err
		}
		_, err := c.QgroupDestroy(ctx, "0/"+strconv.Itoa(sv.ID), mnt)
		return err
	}

	logrus.WithFields(logrus.Fields{"pool": pool.Name, "snapshot": snap}).Warn("Snapshot not found, nothing removed")
	return nil
}

// SharesInfo returns the shares of pool keyed by name, each with its quota group. A pool that cannot be mounted
// has no shares.
//
// Each subvolume is classified in listing order:
//  1. Snapshots are skipped, unless writable and directly under the pool root, which makes them clones.
//  2. Subvolumes nested in a share are skipped.
//  3. Subvolumes nested in a snapshot are skipped, except on the root pool when the snapshot is the default
//     subvolume (a rollback).
//  4. Subvolumes nested in an excluded subvolume are skipped.
//  5. Reserved system paths are skipped.
//  6. Everything else is a share.
func (c *Controller) SharesInfo(ctx context.Context, pool types.Pool) (map[string]string, error) {
	shares := map[string]string{}

	mnt, err := c.Mount(ctx, pool)
	if ce, ok := util.AsCommandError(err); ok && ce.ReturnCode() == 32 {
		logrus.WithError(err).WithField("pool", pool.Name).Error("Pool could not be mounted, no shares reported")
		return shares, nil
	}
	if err != nil {
		return nil, err
	}

	var def types.DefaultSubvol
	if pool.IsRoot() {
		if def, err = c.DefaultSubvol(ctx); err != nil {
			return nil, err
		}
	}

	snaps, err := c.listSubvols(ctx, mnt, "-s")
	if err != nil {
		return nil, err
	}
	snapIDs := map[int]bool{}
	for _, sv := range snaps {
		snapIDs[sv.ID] = true
	}

	svs, err := c.listSubvols(ctx, mnt, "-p")
	if err != nil {
		return nil, err
	}

	shareIDs := map[int]bool{}
	excludedIDs := map[int]bool{}
	for _, sv := range svs {
		if snapIDs[sv.ID] {
			clone, err := c.isClone(ctx, mnt, sv)
			if err != nil {
				return nil, err
			}
			if !clone {
				continue
			}
		}

		if shareIDs[sv.Parent] {
			shareIDs[sv.ID] = true
			continue
		}

		if excludedIDs[sv.Parent] {
			excludedIDs[sv.ID] = true
			continue
		}

		if snapIDs[sv.Parent] && !(pool.IsRoot() && sv.Parent == def.ID) {
			snapIDs[sv.ID] = true
			continue
		}

		name := c.shareName(pool, def, sv.Path)
		if c.excluded(pool, name) {
			// every share of the root pool lives under the root subvolume
			if !(pool.IsRoot() && sv.Path == c.cfg.RootSubvolume) {
				excludedIDs[sv.ID] = true
			}
			continue
		}

		shares[name] = "0/" + strconv.Itoa(sv.ID)
		shareIDs[sv.ID] = true
	}

	return shares, nil
}

// isClone reports whether the snapshot sv is a clone: writable and directly under the pool root.
func (c *Controller) isClone(ctx context.Context, mnt string, sv types.Subvol) (bool, error) {
	if strings.Contains(sv.Path, "/") {
		return false, nil
	}
	return c.isWritable(ctx, mnt+"/"+sv.Path)
}

// shareName strips the root subvolume and, when booted from a snapshot, the default subvolume path from p.
func (c *Controller) shareName(pool types.Pool, def types.DefaultSubvol, p string) string {
	if !pool.IsRoot() {
		return p
	}

	rootPrefix := c.cfg.RootSubvolume + "/"
	name := strings.TrimPrefix(p, rootPrefix)
	if def.BootToSnap {
		name = strings.TrimPrefix(name, strings.TrimPrefix(def.Path, rootPrefix)+"/")
	}
	return name
}

func (c *Controller) excluded(pool types.Pool, name string) bool {
	if pool.IsRoot() && contains(c.cfg.RootExclusions, name) {
		return true
	}
	return contains(c.cfg.PoolExclusions, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SnapshotsInfo returns the snapshots of share in pool, including snapshots of its snapshots.
func (c *Controller) SnapshotsInfo(ctx context.Context, pool types.Pool, share string) ([]types.Snapshot, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return nil, err
	}

	svs, err := c.listSubvols(ctx, mnt, "-u", "-p", "-q")
	if err != nil {
		return nil, err
	}
	var parent *types.Subvol
	for i := range svs {
		if svs[i].Path == share {
			parent = &svs[i]
			break
		}
	}
	if parent == nil {
		logrus.WithFields(logrus.Fields{"pool": pool.Name, "share": share}).Debug("Share not found, no snapshots")
		return nil, nil
	}

	snaps, err := c.listSubvols(ctx, mnt, "-s", "-p", "-q", "-u")
	if err != nil {
		return nil, err
	}

	snapUUIDs := map[string]bool{}
	var out []types.Snapshot
	for _, sv := range snaps {
		if sv.Parent != parent.ID && (sv.ParentUUID == "" || (sv.ParentUUID != parent.UUID && !snapUUIDs[sv.ParentUUID])) {
			continue
		}
		if sv.UUID != "" {
			snapUUIDs[sv.UUID] = true
		}

		writable, err := c.isWritable(ctx, mnt+"/"+sv.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Snapshot{
			Name:     path.Base(sv.Path),
			Share:    share,
			ID:       sv.ID,
			Qgroup:   "0/" + strconv.Itoa(sv.ID),
			Writable: writable,
		})
	}

	return out, nil
}
