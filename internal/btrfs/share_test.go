package btrfs

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/util"
)

func TestParseSubvolLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   types.Subvol
		wantOk bool
	}{
		{
			name:   "Parent",
			line:   "ID 257 gen 1560 parent 256 top level 256 path @/home",
			want:   types.Subvol{ID: 257, Gen: 1560, Parent: 256, TopLevel: 256, Path: "@/home"},
			wantOk: true,
		},
		{
			name: "SnapshotWithUUIDs",
			line: "ID 260 gen 12 cgen 12 parent 5 top level 5 otime 2023-01-02 10:00:00 parent_uuid 7f1a2b3c-0cc3-4a4e-9f59-2a3b4c5d6e7f uuid 9d2e4f60-1bb2-4b5f-8e68-3a4b5c6d7e8f path .snapshots/share1/snap1",
			want: types.Subvol{
				ID: 260, Gen: 12, CGen: 12, Parent: 5, TopLevel: 5,
				OTime:      "2023-01-02 10:00:00",
				ParentUUID: "7f1a2b3c-0cc3-4a4e-9f59-2a3b4c5d6e7f",
				UUID:       "9d2e4f60-1bb2-4b5f-8e68-3a4b5c6d7e8f",
				Path:       ".snapshots/share1/snap1",
			},
			wantOk: true,
		},
		{
			name:   "NoParentUUIDAndReceived",
			line:   "ID 257 gen 10 parent 5 top level 5 parent_uuid - received_uuid - uuid 7f1a2b3c-0cc3-4a4e-9f59-2a3b4c5d6e7f path my share",
			want:   types.Subvol{ID: 257, Gen: 10, Parent: 5, TopLevel: 5, UUID: "7f1a2b3c-0cc3-4a4e-9f59-2a3b4c5d6e7f", Path: "my share"},
			wantOk: true,
		},
		{
			name:   "NotARow",
			line:   "ERROR: can't access '/mnt2/rock-pool'",
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseSubvolLine(tt.line)
			assert.Equal(t, tt.wantOk, ok)
			if tt.wantOk {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func rootPool() types.Pool {
	return types.Pool{
		Name:  "ROOT",
		Role:  types.RoleRoot,
		Disks: []types.Dev{{Name: "ata-QEMU_HARDDISK_QM00001-part3", ByID: true}},
	}
}

func TestController_SharesInfo_RootRollback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	const rootMnt = "/mnt2/ROOT"

	f := newFixture(ctrl, nil)
	f.mounts.EXPECT().IsMounted(rootMnt).Return(true, nil)

	snaps := `ID 268 gen 1563 cgen 1210 top level 267 otime 2023-01-01 10:00:00 path @/.snapshots/1/snapshot
ID 270 gen 1600 cgen 1600 top level 267 otime 2023-01-02 10:00:00 path @/.snapshots/2/snapshot
`
	all := `ID 256 gen 30 parent 5 top level 5 path @
ID 258 gen 20 parent 256 top level 256 path @/opt
ID 267 gen 1562 parent 256 top level 256 path @/.snapshots
ID 268 gen 1563 parent 267 top level 267 path @/.snapshots/1/snapshot
ID 270 gen 1600 parent 267 top level 267 path @/.snapshots/2/snapshot
ID 275 gen 1563 parent 268 top level 268 path @/.snapshots/1/snapshot/home
ID 276 gen 1600 parent 270 top level 270 path @/.snapshots/2/snapshot/var
ID 277 gen 1601 parent 276 top level 276 path @/.snapshots/2/snapshot/var/lib
ID 280 gen 1601 parent 5 top level 5 path data
`

	gomock.InOrder(
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "get-default", "/"}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: "ID 268 gen 1563 top level 267 path @/.snapshots/1/snapshot\n"}, nil),
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-s", rootMnt}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: snaps}, nil),
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-p", rootMnt}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: all}, nil),
	)

	shares, err := f.c.SharesInfo(context.Background(), rootPool())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"home": "0/275",
		"data": "0/280",
	}, shares)
}

func TestController_SharesInfo_ExcludedAncestors(t *testing.T) {
	const rootMnt = "/mnt2/ROOT"

	tests := []struct {
		name string
		all  string
		want map[string]string
	}{
		{
			name: "ChildOfReservedPath",
			all: `ID 256 gen 30 parent 5 top level 5 path @
ID 258 gen 31 parent 256 top level 256 path @/var
ID 300 gen 40 parent 258 top level 258 path @/var/lib/machines
ID 301 gen 41 parent 256 top level 256 path @/home
`,
			want: map[string]string{"home": "0/301"},
		},
		{
			name: "ExclusionIsInherited",
			all: `ID 256 gen 30 parent 5 top level 5 path @
ID 258 gen 31 parent 256 top level 256 path @/var
ID 300 gen 40 parent 258 top level 258 path @/var/lib/docker
ID 302 gen 42 parent 300 top level 300 path @/var/lib/docker/btrfs/subvolumes/4f0c2b1e
ID 303 gen 43 parent 256 top level 256 path @/srv
ID 304 gen 44 parent 303 top level 303 path @/srv/www
`,
			want: map[string]string{},
		},
		{
			name: "RootSubvolumeIsNotAnAncestorExclusion",
			all: `ID 256 gen 30 parent 5 top level 5 path @
ID 301 gen 41 parent 256 top level 256 path @/home
ID 305 gen 45 parent 256 top level 256 path @/data
ID 306 gen 46 parent 305 top level 305 path @/data/nested
`,
			want: map[string]string{"home": "0/301", "data": "0/305"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			f := newFixture(ctrl, nil)
			f.mounts.EXPECT().IsMounted(rootMnt).Return(true, nil)

			gomock.InOrder(
				f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "get-default", "/"}, util.Options{Log: true}).
					Return(util.CommandOutput{Stdout: "ID 5 (FS_TREE)\n"}, nil),
				f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-s", rootMnt}, util.Options{Log: true}).
					Return(util.CommandOutput{}, nil),
				f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-p", rootMnt}, util.Options{Log: true}).
					Return(util.CommandOutput{Stdout: tt.all}, nil),
			)

			shares, err := f.c.SharesInfo(context.Background(), rootPool())
			require.NoError(t, err)
			assert.Equal(t, tt.want, shares)
		})
	}
}

func TestController_SharesInfo_Clones(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.mounted()

	snaps := `ID 260 gen 12 cgen 12 top level 5 otime 2023-01-02 10:00:00 path .snapshots/share1/snap1
ID 262 gen 14 cgen 14 top level 5 otime 2023-01-02 11:00:00 path clone1
ID 263 gen 15 cgen 15 top level 5 otime 2023-01-02 12:00:00 path rosnap
`
	all := `ID 257 gen 10 parent 5 top level 5 path share1
ID 259 gen 11 parent 257 top level 257 path share1/nested
ID 260 gen 12 parent 5 top level 5 path .snapshots/share1/snap1
ID 262 gen 14 parent 5 top level 5 path clone1
ID 263 gen 15 parent 5 top level 5 path rosnap
`

	gomock.InOrder(
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-s", poolMnt}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: snaps}, nil),
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-p", poolMnt}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: all}, nil),
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "property", "get", "-ts", poolMnt + "/clone1", "ro"}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: "ro=false\n"}, nil),
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "property", "get", "-ts", poolMnt + "/rosnap", "ro"}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: "ro=true\n"}, nil),
	)

	shares, err := f.c.SharesInfo(context.Background(), testPool())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"share1": "0/257",
		"clone1": "0/262",
	}, shares)
}

func TestController_SharesInfo_Unmountable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.present[dev2] = true

	pool := testPool()
	pool.Disks = pool.Disks[:1]
	mount := []string{mountBin, dev2, poolMnt}

	f.mounts.EXPECT().IsMounted(poolMnt).Return(false, nil)
	f.runner.EXPECT().Run(gomock.Any(), []string{chattrBin, "+i", poolMnt}, gomock.Any())
	f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "device", "scan", dev2}, gomock.Any())
	f.runner.EXPECT().Run(gomock.Any(), mount, util.Options{}).Return(mountFailure(mount))

	shares, err := f.c.SharesInfo(context.Background(), pool)
	assert.NoError(t, err)
	assert.Empty(t, shares)
}

func TestController_ShareID(t *testing.T) {
	t.Run("SnapshotWithSameName", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newFixture(ctrl, nil)
		f.mounted()
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", poolMnt}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: `ID 257 gen 10 top level 5 path data
ID 260 gen 12 top level 5 path .snapshots/data/backup
ID 264 gen 16 top level 5 path backup
`}, nil)

		id, err := f.c.ShareID(context.Background(), testPool(), "backup")
		require.NoError(t, err)
		assert.Equal(t, 264, id)
	})

	t.Run("NotFound", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newFixture(ctrl, nil)
		f.mounted()
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", poolMnt}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: "ID 260 gen 12 top level 5 path .snapshots/data/backup\n"}, nil)

		_, err := f.c.ShareID(context.Background(), testPool(), "backup")
		assert.Error(t, err)
	})

	t.Run("RootPool", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		const rootMnt = "/mnt2/ROOT"

		f := newFixture(ctrl, nil)
		f.mounts.EXPECT().IsMounted(rootMnt).Return(true, nil)
		gomock.InOrder(
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "get-default", "/"}, util.Options{Log: true}).
				Return(util.CommandOutput{Stdout: "ID 256 gen 30 top level 5 path @\n"}, nil),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", rootMnt}, util.Options{Log: true}).
				Return(util.CommandOutput{Stdout: "ID 256 gen 30 top level 5 path @\nID 301 gen 41 top level 256 path @/home\n"}, nil),
		)

		qgroup, err := f.c.QgroupID(context.Background(), rootPool(), "home")
		require.NoError(t, err)
		assert.Equal(t, "0/301", qgroup)
	})
}

func TestController_SnapshotQgroupID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.mounted()
	f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", poolMnt}, util.Options{Log: true}).
		Return(util.CommandOutput{Stdout: "ID 257 gen 10 top level 5 path share1\nID 260 gen 12 top level 5 path .snapshots/share1/snap1\n"}, nil)

	qgroup, err := f.c.SnapshotQgroupID(context.Background(), testPool(), "share1", "snap1")
	require.NoError(t, err)
	assert.Equal(t, "0/260", qgroup)
}

func TestController_AddShare(t *testing.T) {
	show := []string{btrfsBin, "subvolume", "show", poolMnt + "/share1"}

	t.Run("Exists", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newFixture(ctrl, nil)
		f.mounted()
		f.runner.EXPECT().Run(gomock.Any(), show, util.Options{AllowFail: true}).Return(util.CommandOutput{}, nil)

		_, err := f.c.AddShare(context.Background(), testPool(), "share1", "2015/3")
		assert.NoError(t, err)
	})

	t.Run("Created", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newFixture(ctrl, nil)
		f.mounted()
		gomock.InOrder(
			f.runner.EXPECT().Run(gomock.Any(), show, util.Options{AllowFail: true}).Return(util.CommandOutput{ReturnCode: 1}, nil),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "create", "-i", "2015/3", poolMnt + "/share1"}, util.Options{Log: true}),
		)

		_, err := f.c.AddShare(context.Background(), testPool(), "share1", "2015/3")
		assert.NoError(t, err)
	})

	t.Run("QuotasDisabled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newFixture(ctrl, nil)
		f.mounted()
		gomock.InOrder(
			f.runner.EXPECT().Run(gomock.Any(), show, util.Options{AllowFail: true}).Return(util.CommandOutput{ReturnCode: 1}, nil),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "create", poolMnt + "/share1"}, util.Options{Log: true}),
		)

		_, err := f.c.AddShare(context.Background(), testPool(), "share1", types.QuotasDisabled)
		assert.NoError(t, err)
	})
}

func TestController_RemoveShare_Force(t *testing.T) {
	share := poolMnt + "/share1"
	qshow := []string{btrfsBin, "qgroup", "show", poolMnt}

	type listing struct {
		dir string
		out string
	}

	tests := []struct {
		name     string
		listings []listing
		want     []string
	}{
		{
			name: "OneLevel",
			listings: []listing{
				{dir: share, out: "ID 259 gen 11 top level 257 path share1/nested\n"},
				{dir: share + "/nested"},
			},
			want: []string{share + "/nested"},
		},
		{
			name: "TwoLevels",
			listings: []listing{
				{dir: share, out: "ID 259 gen 11 top level 257 path share1/a\n"},
				{dir: share + "/a", out: "ID 265 gen 17 top level 259 path share1/a/b\n"},
				{dir: share + "/a/b"},
			},
			want: []string{share + "/a/b", share + "/a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			f := newFixture(ctrl, nil)
			f.mounted()
			f.mounts.EXPECT().IsMounted("/mnt2/share1").Return(false, nil)

			calls := []*gomock.Call{
				f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "show", share}, util.Options{AllowFail: true}),
				f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", poolMnt}, util.Options{Log: true}).
					Return(util.CommandOutput{Stdout: "ID 257 gen 10 top level 5 path share1\n"}, nil),
				f.runner.EXPECT().Run(gomock.Any(), []string{chattrBin, "-i", share}, util.Options{Log: true}),
			}
			for _, l := range tt.listings {
				calls = append(calls, f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-o", l.dir}, util.Options{Log: true}).
					Return(util.CommandOutput{Stdout: l.out}, nil))
			}
			for _, n := range tt.want {
				calls = append(calls,
					f.runner.EXPECT().Run(gomock.Any(), []string{chattrBin, "-i", n}, util.Options{Log: true}),
					f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "delete", n}, util.Options{Log: true}),
				)
			}
			calls = append(calls,
				f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "delete", share}, util.Options{Log: true}),
				f.runner.EXPECT().Run(gomock.Any(), qshow, util.Options{}).Return(util.CommandOutput{Stdout: qgroupShow}, nil),
				f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "qgroup", "destroy", "0/257", poolMnt}, util.Options{Log: true}),
				f.runner.EXPECT().Run(gomock.Any(), qshow, util.Options{}).Return(util.CommandOutput{Stdout: qgroupShow}, nil),
				f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "qgroup", "destroy", "2015/1", poolMnt}, util.Options{Log: true}),
			)
			gomock.InOrder(calls...)

			assert.NoError(t, f.c.RemoveShare(context.Background(), testPool(), "share1", "2015/1", true))
		})
	}
}

func TestController_RemoveShare_NotASubvolume(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.mounted()
	f.mounts.EXPECT().IsMounted("/mnt2/share1").Return(false, nil)
	f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "show", poolMnt + "/share1"}, util.Options{AllowFail: true}).
		Return(util.CommandOutput{ReturnCode: 1}, nil)

	assert.NoError(t, f.c.RemoveShare(context.Background(), testPool(), "share1", "2015/1", false))
}

func TestController_CreateSnapshot(t *testing.T) {
	tests := []struct {
		name     string
		writable bool
		rc       int
		wantErr  bool
	}{
		{name: "ReadOnly", writable: false},
		{name: "Writable", writable: true},
		{name: "DeferredCleanup", writable: false, rc: 19},
		{name: "Failure", writable: false, rc: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			f := newFixture(ctrl, nil)
			f.mounted()

			cmd := []string{btrfsBin, "subvolume", "snapshot", poolMnt + "/share1", poolMnt + "/.snapshots/share1/snap1"}
			if !tt.writable {
				cmd = []string{btrfsBin, "subvolume", "snapshot", "-r", poolMnt + "/share1", poolMnt + "/.snapshots/share1/snap1"}
			}
			call := f.runner.EXPECT().Run(gomock.Any(), cmd, util.Options{})
			if tt.rc != 0 {
				call.Return(failed(cmd, tt.rc, "ERROR: cannot snapshot\n"))
			}

			_, err := f.c.CreateSnapshot(context.Background(), testPool(), "share1", "snap1", tt.writable)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, []string{poolMnt + "/.snapshots/share1"}, f.dirs)
		})
	}
}

func TestController_RemoveSnapshot(t *testing.T) {
	snapPath := poolMnt + "/.snapshots/share1/snap1"

	t.Run("AtExpectedPath", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newFixture(ctrl, nil)
		f.mounted()
		f.mounts.EXPECT().IsMounted("/mnt2/snap1").Return(true, nil)
		f.present["/mnt2/snap1"] = true

		gomock.InOrder(
			f.runner.EXPECT().Run(gomock.Any(), []string{umountBin, "-l", "/mnt2/snap1"}, util.Options{}).
				Return(failed([]string{umountBin, "-l", "/mnt2/snap1"}, 32, "umount: /mnt2/snap1: not mounted.\n")),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "show", snapPath}, util.Options{AllowFail: true}),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "delete", snapPath}, util.Options{Log: true}),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "qgroup", "show", poolMnt}, util.Options{}).
				Return(util.CommandOutput{Stdout: "qgroupid rfer excl\n0/260 16384 16384\n"}, nil),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "qgroup", "destroy", "0/260", poolMnt}, util.Options{Log: true}),
		)

		assert.NoError(t, f.c.RemoveSnapshot(context.Background(), testPool(), "share1", "snap1", "0/260"))
	})

	t.Run("FoundInListing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newFixture(ctrl, nil)
		f.mounted()
		f.mounts.EXPECT().IsMounted("/mnt2/snap1").Return(false, nil)

		gomock.InOrder(
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "show", snapPath}, util.Options{AllowFail: true}).
				Return(util.CommandOutput{ReturnCode: 1}, nil),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-s", poolMnt}, util.Options{Log: true}).
				Return(util.CommandOutput{Stdout: `ID 259 gen 11 cgen 11 top level 5 otime 2023-01-02 10:00:00 path old/mysnap1
ID 261 gen 13 cgen 13 top level 5 otime 2023-01-02 11:00:00 path old/snap1
`}, nil),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "delete", poolMnt + "/old/snap1"}, util.Options{Log: true}),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "qgroup", "show", poolMnt}, util.Options{}).
				Return(util.CommandOutput{Stdout: "qgroupid rfer excl\n0/259 16384 16384\n0/261 16384 16384\n"}, nil),
			f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "qgroup", "destroy", "0/261", poolMnt}, util.Options{Log: true}),
		)

		assert.NoError(t, f.c.RemoveSnapshot(context.Background(), testPool(), "share1", "snap1", types.QuotasDisabled))
	})
}

func TestController_SnapshotsInfo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.mounted()

	shares := `ID 257 gen 10 parent 5 top level 5 parent_uuid - uuid 7f1a2b3c-0000-0000-0000-000000000001 path share1
ID 258 gen 10 parent 5 top level 5 parent_uuid - uuid 7f1a2b3c-0000-0000-0000-000000000002 path share2
`
	snaps := `ID 260 gen 12 cgen 12 parent 5 top level 5 otime 2023-01-02 10:00:00 parent_uuid 7f1a2b3c-0000-0000-0000-000000000001 uuid 9d2e4f60-0000-0000-0000-000000000001 path .snapshots/share1/snap1
ID 261 gen 13 cgen 13 parent 5 top level 5 otime 2023-01-02 11:00:00 parent_uuid 9d2e4f60-0000-0000-0000-000000000001 uuid 9d2e4f60-0000-0000-0000-000000000002 path .snapshots/share1/snap2
ID 262 gen 14 cgen 14 parent 5 top level 5 otime 2023-01-02 12:00:00 parent_uuid 7f1a2b3c-0000-0000-0000-000000000002 uuid 9d2e4f60-0000-0000-0000-000000000003 path .snapshots/share2/other
`

	gomock.InOrder(
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-u", "-p", "-q", poolMnt}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: shares}, nil),
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "subvolume", "list", "-s", "-p", "-q", "-u", poolMnt}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: snaps}, nil),
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "property", "get", "-ts", poolMnt + "/.snapshots/share1/snap1", "ro"}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: "ro=true\n"}, nil),
		f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "property", "get", "-ts", poolMnt + "/.snapshots/share1/snap2", "ro"}, util.Options{Log: true}).
			Return(util.CommandOutput{Stdout: "ro=false\n"}, nil),
	)

	got, err := f.c.SnapshotsInfo(context.Background(), testPool(), "share1")
	require.NoError(t, err)
	assert.Equal(t, []types.Snapshot{
		{Name: "snap1", Share: "share1", ID: 260, Qgroup: "0/260", Writable: false},
		{Name: "snap2", Share: "share1", ID: 261, Qgroup: "0/261", Writable: true},
	}, got)
}
