package disk

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
)

// dmNamePrefix marks the by-id alias of a device mapper device named after its mapping, e.g. dm-name-luks-<uuid>.
const dmNamePrefix = "dm-name-"

// GetDevByIdName returns the stable by-id name of the transient device name, e.g. sda ->
// ata-WDC_WD30EFRX-68EUZN0_WD-WMC4N0912345. With stripPath the result has no directory, otherwise it is the full
// by-id path. When no by-id alias can be found the input is returned, without its directory if stripPath is set,
// and ok is false.
func (s *Scanner) GetDevByIdName(ctx context.Context, name string, stripPath bool) (string, bool) {
	dev := name
	if !filepath.IsAbs(dev) {
		dev = "/dev/" + name
	}

	return selectByID(name, s.udevProperties(ctx, dev)["DEVLINKS"], stripPath)
}

// selectByID picks one stable alias from the space separated DEVLINKS udev property. Only direct entries of the
// by-id directory are candidates. A device mapper name is preferred; otherwise the longest alias wins with ties
// broken by reverse lexicographic order so that the choice is the same on every run.
//
// A DEVLINKS value should look like:
//
//	/dev/disk/by-id/wwn-0x50014ee2b3c4d5e6 /dev/disk/by-id/ata-WDC_WD30EFRX-68EUZN0_WD-WMC4N0912345 /dev/disk/by-path/pci-0000:00:1f.2-ata-1
func selectByID(name, devlinks string, stripPath bool) (string, bool) {
	var candidates []string
	for _, link := range strings.Fields(devlinks) {
		if !strings.HasPrefix(link, ByIDDir) {
			continue
		}
		alias := strings.TrimPrefix(link, ByIDDir)
		if alias == "" || strings.Contains(alias, "/") {
			continue
		}
		candidates = append(candidates, alias)
	}

	if len(candidates) == 0 {
		if stripPath {
			return filepath.Base(name), false
		}
		return name, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if da, db := strings.HasPrefix(a, dmNamePrefix), strings.HasPrefix(b, dmNamePrefix); da != db {
			return da
		}
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a > b
	})

	if stripPath {
		return candidates[0], true
	}
	return ByIDDir + candidates[0], true
}
