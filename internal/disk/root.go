package disk

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rockstor/btrfs-utils/internal/disk/identifier"
)

// RootDisk returns the base device of the btrfs filesystem mounted at /, e.g. /dev/sda for a root on /dev/sda3.
// Device mapper names are returned as found in the mount table. A *NonBTRFSRootError is returned when no btrfs
// filesystem is mounted at /.
//
// The mount table should contain a row like:
//
//	/dev/sda3 / btrfs rw,relatime,space_cache,subvolid=268,subvol=/@/.snapshots/1/snapshot 0 0
func (s *Scanner) RootDisk(ctx context.Context) (string, error) {
	data, err := s.readFile(s.cfg.MountsFile)
	if err != nil {
		return "", fmt.Errorf("disk: failed to read mount table: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[1] != "/" || fields[2] != "btrfs" {
			continue
		}

		dev := fields[0]
		if identifier.IsMapped(dev) {
			return dev, nil
		}

		resolved, err := s.evalSymlinks(dev)
		if err != nil {
			logrus.WithError(err).WithField("device", dev).Debug("Unable to resolve root device, using mount table name")
			resolved = dev
		}

		return identifier.RootBase(resolved), nil
	}

	return "", &NonBTRFSRootError{MountsFile: s.cfg.MountsFile}
}
