package btrfs

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/system"
	"github.com/rockstor/btrfs-utils/internal/task"
	"github.com/rockstor/btrfs-utils/internal/util"
)

const mkfsBin = "/usr/sbin/mkfs.btrfs"

func TestController_CreatePool_QuotaFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.mounted()

	mkfs := []string{mkfsBin, "-f", "-d", "raid1", "-m", "raid1", "-L", "rock-pool", dev2, dev3}
	enable := []string{btrfsBin, "quota", "enable", poolMnt}
	qout := util.CommandOutput{Stderr: "ERROR: quota command failed: Invalid argument\n", ReturnCode: 1}

	gomock.InOrder(
		f.runner.EXPECT().Run(gomock.Any(), mkfs, util.Options{Log: true}).Return(util.CommandOutput{Stdout: "btrfs-progs v6.1.3\n"}, nil),
		f.runner.EXPECT().Run(gomock.Any(), enable, util.Options{}).Return(qout, &util.CommandError{Cmd: enable, Output: qout}),
	)

	out, err := f.c.CreatePool(context.Background(), testPool())

	assert.Equal(t, qout, out)
	ce, ok := util.AsCommandError(err)
	require.True(t, ok)
	assert.Equal(t, enable, ce.Cmd)
	assert.Equal(t, 1, ce.ReturnCode())
}

func TestController_CreatePool_ReadOnlyQuotaIsSoftFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.mounted()

	enable := []string{btrfsBin, "quota", "enable", poolMnt}
	qout := util.CommandOutput{Stderr: "ERROR: quota command failed: Read-only file system\n", ReturnCode: 1}

	gomock.InOrder(
		f.runner.EXPECT().Run(gomock.Any(), gomock.Any(), util.Options{Log: true}),
		f.runner.EXPECT().Run(gomock.Any(), enable, util.Options{}).Return(qout, &util.CommandError{Cmd: enable, Output: qout}),
	)

	out, err := f.c.CreatePool(context.Background(), testPool())

	assert.NoError(t, err)
	assert.Equal(t, 1, out.ReturnCode)
}

func TestController_CreatePool_UnknownProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	pool := testPool()
	pool.Raid = "raid7"

	_, err := f.c.CreatePool(context.Background(), pool)
	assert.Error(t, err)
}

const fiShowCurrent = `Label: 'rock-pool'  uuid: 5b2b0fe5-5c8e-4b8a-9a9b-1b0c7a3d2e41
	Total devices 3 FS bytes used 1245184
	devid    1 size 5368709120 used 2155872256 path /dev/sdb
	devid    2 size 5368709120 used 1073741824 path /dev/sdc
	devid    3 size 0 used 0 path <missing disk #3> missing
`

const fiShowLegacy = `warning, device 3 is missing
Label: 'rock-pool'  uuid: 5b2b0fe5-5c8e-4b8a-9a9b-1b0c7a3d2e41
	Total devices 3 FS bytes used 1245184
	devid    1 size 5368709120 used 2155872256 path /dev/sdb
	devid    2 size 5368709120 used 1073741824 path /dev/sdc
	*** Some devices missing
`

func TestParseFilesystemShow(t *testing.T) {
	tests := []struct {
		name        string
		legacy      bool
		input       string
		wantMissing int
		wantDevs    int
	}{
		{name: "CurrentMissingRow", legacy: false, input: fiShowCurrent, wantMissing: 1, wantDevs: 3},
		{name: "LegacyOmittedRow", legacy: true, input: fiShowLegacy, wantMissing: 1, wantDevs: 2},
		{name: "Empty", legacy: false, input: "", wantMissing: 0, wantDevs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := util.CommandOutput{Stdout: tt.input}
			fs := schemas[tt.legacy].parseFilesystemShow(out.StdoutLines())

			assert.Equal(t, tt.wantMissing, fs.missing)
			assert.Len(t, fs.devs, tt.wantDevs)
			if tt.input != "" {
				assert.Equal(t, "rock-pool", fs.label)
				assert.Equal(t, "5b2b0fe5-5c8e-4b8a-9a9b-1b0c7a3d2e41", fs.uuid)
				assert.Equal(t, 3, fs.total)
			}
		})
	}
}

func TestController_PoolMissingDevCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, &system.Toolset{Release: system.Legacy})

	f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "filesystem", "show", "--raw", "rock-pool"}, util.Options{AllowFail: true}).
		Return(util.CommandOutput{Stdout: fiShowLegacy}, nil)

	n, err := f.c.PoolMissingDevCount(context.Background(), "rock-pool")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.c.PoolMissingDevCount(context.Background(), "")
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestController_PoolInfo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)

	f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "filesystem", "show", "--raw", "/dev/disk/by-id/ata-QEMU_HARDDISK_QM00002"}, util.Options{Log: true}).
		Return(util.CommandOutput{Stdout: fiShowCurrent}, nil)
	f.namer.EXPECT().GetDevByIdName(gomock.Any(), "sdb", true).Return("ata-QEMU_HARDDISK_QM00002", true)
	f.namer.EXPECT().GetDevByIdName(gomock.Any(), "sdc", true).Return("sdc", false)

	info, err := f.c.PoolInfo(context.Background(), "ata-QEMU_HARDDISK_QM00002")
	require.NoError(t, err)

	assert.Equal(t, "rock-pool", info.Label)
	assert.Equal(t, 3, info.TotalDevs)
	assert.Equal(t, 1, info.MissingDevs)
	assert.Equal(t, []types.Dev{
		{Name: "ata-QEMU_HARDDISK_QM00002", ByID: true, DevID: 1, Size: 5368709120, Allocated: 2155872256},
		{Name: "sdc", ByID: false, DevID: 2, Size: 5368709120, Allocated: 1073741824},
	}, info.Disks)
}

func TestController_DeviceScan(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.present[dev2] = true

	f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "device", "scan", dev2}, util.Options{Log: true})

	_, err := f.c.DeviceScan(context.Background(), []types.Dev{
		{Name: "ata-QEMU_HARDDISK_QM00002"},
		{Name: "ata-QEMU_HARDDISK_QM00003"},
		{Name: "detached-2b8c33d2c1e54c9e"},
	})
	assert.NoError(t, err)
}

const fiShowMembers = `Label: 'rock-pool'  uuid: 5b2b0fe5-5c8e-4b8a-9a9b-1b0c7a3d2e41
	Total devices 2 FS bytes used 1245184
	devid    1 size 5.00GiB used 2.01GiB path /dev/sdb
	devid    2 size 5.00GiB used 1.01GiB path /dev/sdc
`

const fiShowDegraded = `Label: 'rock-pool'  uuid: 5b2b0fe5-5c8e-4b8a-9a9b-1b0c7a3d2e41
	Total devices 2 FS bytes used 1245184
	devid    1 size 5368709120 used 2155872256 path /dev/sdb
	*** Some devices missing
`

func TestController_ResizePoolCmd(t *testing.T) {
	showMnt := []string{btrfsBin, "filesystem", "show", poolMnt}
	showLabel := []string{btrfsBin, "filesystem", "show", "--raw", "rock-pool"}

	tests := []struct {
		name    string
		show    string
		degrade bool
		devs    []string
		add     bool
		want    []string
		wantErr error
	}{
		{
			name: "AddSkipsMembers",
			show: fiShowMembers,
			devs: []string{"ata-QEMU_HARDDISK_QM00003", "ata-QEMU_HARDDISK_QM00004"},
			add:  true,
			want: []string{btrfsBin, "device", "add", "/dev/disk/by-id/ata-QEMU_HARDDISK_QM00004", poolMnt},
		},
		{
			name:    "AddOnlyMembers",
			show:    fiShowMembers,
			devs:    []string{"ata-QEMU_HARDDISK_QM00002"},
			add:     true,
			wantErr: ErrNoop,
		},
		{
			name: "DeleteMember",
			show: fiShowMembers,
			devs: []string{"ata-QEMU_HARDDISK_QM00003", "ata-QEMU_HARDDISK_QM00009"},
			want: []string{btrfsBin, "device", "delete", dev3, poolMnt},
		},
		{
			name:    "DeleteMissingNotDegraded",
			show:    fiShowMembers,
			devs:    []string{"missing"},
			wantErr: ErrNoop,
		},
		{
			name:    "DeleteMissingDegraded",
			show:    fiShowDegraded,
			degrade: true,
			devs:    []string{"ata-QEMU_HARDDISK_QM00002", "detached-2b8c33d2c1e54c9e", "missing"},
			want:    []string{btrfsBin, "device", "delete", dev2, "missing", poolMnt},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			f := newFixture(ctrl, nil)
			f.mounted()

			f.runner.EXPECT().Run(gomock.Any(), showMnt, util.Options{Log: true}).Return(util.CommandOutput{Stdout: tt.show}, nil)
			f.namer.EXPECT().GetDevByIdName(gomock.Any(), "sdb", true).Return("ata-QEMU_HARDDISK_QM00002", true).AnyTimes()
			f.namer.EXPECT().GetDevByIdName(gomock.Any(), "sdc", true).Return("ata-QEMU_HARDDISK_QM00003", true).AnyTimes()
			if !tt.add {
				f.runner.EXPECT().Run(gomock.Any(), showLabel, util.Options{AllowFail: true}).Return(util.CommandOutput{Stdout: tt.show}, nil)
			}

			got, err := f.c.ResizePoolCmd(context.Background(), testPool(), tt.devs, tt.add)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestController_StartResize(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)
	f.mounted()

	f.runner.EXPECT().Run(gomock.Any(), []string{btrfsBin, "filesystem", "show", poolMnt}, util.Options{Log: true}).
		Return(util.CommandOutput{Stdout: fiShowMembers}, nil)
	f.namer.EXPECT().GetDevByIdName(gomock.Any(), gomock.Any(), true).Return("ata-QEMU_HARDDISK_QM00002", true).Times(2)
	f.tasks.EXPECT().Submit(gomock.Any(), task.Task{
		Name:    "resize rock-pool",
		Command: []string{btrfsBin, "device", "add", dev3, poolMnt},
	}).Return("task-1", nil)

	id, err := f.c.StartResize(context.Background(), testPool(), []string{"ata-QEMU_HARDDISK_QM00003"}, true)
	assert.NoError(t, err)
	assert.Equal(t, "task-1", id)
}

func TestController_StartResize_NoDevices(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newFixture(ctrl, nil)

	_, err := f.c.StartResize(context.Background(), testPool(), nil, true)
	assert.ErrorIs(t, err, ErrNoop)
}

func TestParseFilesystemDF(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.PoolRaid
	}{
		{
			name: "Mixed",
			input: `Data, RAID1: total=1.00GiB, used=512.00KiB
System, RAID1: total=8.00MiB, used=16.00KiB
Metadata, RAID1C3: total=256.00MiB, used=112.00KiB
GlobalReserve, single: total=3.25MiB, used=0.00B
`,
			want: types.PoolRaid{Data: "raid1", Metadata: "raid1c3", System: "raid1", Profile: "raid1-1c3"},
		},
		{
			name: "ConversionLeftovers",
			input: `Data, single: total=8.00MiB, used=0.00B
Data, RAID10: total=2.00GiB, used=1.00GiB
System, RAID10: total=8.00MiB, used=16.00KiB
Metadata, RAID10: total=256.00MiB, used=112.00KiB
`,
			want: types.PoolRaid{Data: "raid10", Metadata: "raid10", System: "raid10", Profile: "raid10"},
		},
		{
			name: "SingleDup",
			input: `Data, single: total=8.00MiB, used=0.00B
System, DUP: total=8.00MiB, used=16.00KiB
Metadata, DUP: total=256.00MiB, used=112.00KiB
`,
			want: types.PoolRaid{Data: "single", Metadata: "dup", System: "dup", Profile: "single-dup"},
		},
		{
			name:  "Unclassified",
			input: "Data, RAID0: total=1.00GiB, used=0.00B\nMetadata, RAID1C4: total=1.00GiB, used=0.00B\n",
			want:  types.PoolRaid{Data: "raid0", Metadata: "raid1c4", Profile: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := util.CommandOutput{Stdout: tt.input}
			assert.Equal(t, tt.want, parseFilesystemDF(out.StdoutLines()))
		})
	}
}

func TestParseFilesystemUsage(t *testing.T) {
	out := util.CommandOutput{Stdout: `Overall:
    Device size:		  16106127360
    Device allocated:		   2702180352
    Device unallocated:		  13403947008
    Device missing:		            0
    Used:			       917504
    Free (estimated):		   7774846976	(min: 7774846976)
    Data ratio:			         2.00
    Metadata ratio:		         2.00
    Global reserve:		      3407872	(used: 0)

Data,RAID1: Size:1073741824, Used:458752 (0.04%)
   /dev/sdb	1073741824
`}

	assert.Equal(t, types.PoolUsage{
		Size:      15728640,
		Allocated: 2638848,
		Used:      896,
		Free:      7592624,
	}, parseFilesystemUsage(out.StdoutLines()))
}

func TestParseDevStats(t *testing.T) {
	out := util.CommandOutput{Stdout: `[/dev/sdb].write_io_errs    0
[/dev/sdb].read_io_errs     2
[/dev/sdb].flush_io_errs    0
[/dev/sdb].corruption_errs  1
[/dev/sdb].generation_errs  0
[/dev/sdc].write_io_errs    5
[/dev/sdc].read_io_errs     0
`}

	assert.Equal(t, []types.DevStats{
		{Device: "/dev/sdb", ReadIOErrs: 2, CorruptionErrs: 1},
		{Device: "/dev/sdc", WriteIOErrs: 5},
	}, parseDevStats(out.StdoutLines()))
}

func TestParseDefaultSubvol(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    types.DefaultSubvol
		wantErr bool
	}{
		{
			name: "Snapshot",
			line: "ID 268 gen 1563 top level 267 path @/.snapshots/1/snapshot",
			want: types.DefaultSubvol{ID: 268, Path: "@/.snapshots/1/snapshot", BootToSnap: true},
		},
		{
			name: "TopLevel",
			line: "ID 5 (FS_TREE)",
			want: types.DefaultSubvol{ID: 5, Path: "(FS_TREE)", BootToSnap: false},
		},
		{
			name: "RootSubvolume",
			line: "ID 256 gen 30 top level 5 path @",
			want: types.DefaultSubvol{ID: 256, Path: "@", BootToSnap: false},
		},
		{
			name:    "Garbage",
			line:    "ERROR: not a btrfs filesystem",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDefaultSubvol(tt.line, "@")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
