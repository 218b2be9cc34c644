// Package config loads the YAML configuration that supplies command paths, reserved namespaces and timings to the
// pool controller and the disk scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top level configuration document.
type Config struct {
	Commands Commands `yaml:"commands"`

	// MountDir is the parent directory of pool and share mount points. It must end with a slash.
	MountDir string `yaml:"mount_dir"`
	// MountsFile is the kernel mount table.
	MountsFile string `yaml:"mounts_file"`
	// QgroupPrefix is the reserved qgroup level used for share parent quota groups (e.g. 2015/3).
	QgroupPrefix string `yaml:"qgroup_prefix"`
	// RootSubvolume is requested when a root role pool is mounted away from /.
	RootSubvolume string `yaml:"root_subvolume"`
	// RootExclusions are subvolume paths on the root pool that never surface as shares.
	RootExclusions []string `yaml:"root_exclusions"`
	// PoolExclusions are subvolume paths on any pool that never surface as shares.
	PoolExclusions []string `yaml:"pool_exclusions"`
	// FakeSerials are serial numbers reported by enclosures and virtual disks that identify nothing.
	FakeSerials []string `yaml:"fake_serials"`
	// MinDiskSizeKiB excludes smaller devices from scans.
	MinDiskSizeKiB int64 `yaml:"min_disk_size_kib"`

	Unmount Unmount `yaml:"unmount"`
}

// Commands holds the path of every external program.
type Commands struct {
	Btrfs     string `yaml:"btrfs"`
	MkfsBtrfs string `yaml:"mkfs_btrfs"`
	Mount     string `yaml:"mount"`
	Umount    string `yaml:"umount"`
	Chattr    string `yaml:"chattr"`
	Rmdir     string `yaml:"rmdir"`
	Lsblk     string `yaml:"lsblk"`
	Udevadm   string `yaml:"udevadm"`
	Hdparm    string `yaml:"hdparm"`
}

// Unmount bounds the poll loop that waits for a lazy unmount to complete.
type Unmount struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

// defaultConfig provides baseline settings for a stock install.
var defaultConfig = Config{
	Commands: Commands{
		Btrfs:     "/usr/sbin/btrfs",
		MkfsBtrfs: "/usr/sbin/mkfs.btrfs",
		Mount:     "/usr/bin/mount",
		Umount:    "/usr/bin/umount",
		Chattr:    "/usr/bin/chattr",
		Rmdir:     "/usr/bin/rmdir",
		Lsblk:     "/usr/bin/lsblk",
		Udevadm:   "/usr/bin/udevadm",
		Hdparm:    "/usr/sbin/hdparm",
	},
	MountDir:      "/mnt2/",
	MountsFile:    "/proc/mounts",
	QgroupPrefix:  "2015",
	RootSubvolume: "@",
	RootExclusions: []string{
		"@",
		"root", "@/root",
		"tmp", "@/tmp",
		"var", "@/var",
		"boot/grub2/i386-pc", "@/boot/grub2/i386-pc",
		"boot/grub2/x86_64-efi", "@/boot/grub2/x86_64-efi",
		"boot/grub2/arm64-efi", "@/boot/grub2/arm64-efi",
		"srv", "@/srv",
		"usr/local", "@/usr/local",
		"opt", "@/opt",
		".snapshots", "@/.snapshots",
	},
	FakeSerials: []string{
		"0000000000000000",
		"000000000000",
		"NULL",
		"No Valid Serial",
	},
	MinDiskSizeKiB: 5 * 1024 * 1024,
	Unmount: Unmount{
		Attempts: 20,
		Interval: 2 * time.Second,
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	cfg.RootExclusions = append([]string(nil), defaultConfig.RootExclusions...)
	cfg.FakeSerials = append([]string(nil), defaultConfig.FakeSerials...)
	return &cfg
}

// Load reads the configuration from path. When path is empty the default locations are tried in order and the
// built-in defaults are used if none exists. Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		// Try default locations
		candidates := []string{
			"/etc/btrfs-utils/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/btrfs-utils/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes data over the built-in defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.MountDir == "" || c.MountDir[len(c.MountDir)-1] != '/' {
		return fmt.Errorf("config: mount_dir %q must end with a slash", c.MountDir)
	}
	if c.Unmount.Attempts < 1 {
		return fmt.Errorf("config: unmount.attempts must be positive, got %d", c.Unmount.Attempts)
	}
	if c.QgroupPrefix == "" {
		return fmt.Errorf("config: qgroup_prefix must be set")
	}
	return nil
}
