package disk

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rockstor/btrfs-utils/internal/util"
)

// PowerStateUnknown is reported when hdparm cannot determine a drive's power state.
const PowerStateUnknown = "unknown"

// SpinDown sets the standby timeout of the drive byID. The value follows hdparm -S encoding: 0 disables the timer,
// 1-240 are multiples of 5 seconds, 241-251 are multiples of 30 minutes.
func (s *Scanner) SpinDown(ctx context.Context, byID string, value int) (util.CommandOutput, error) {
	if value < 0 || value > 255 {
		return util.CommandOutput{}, fmt.Errorf("disk: spindown value %d out of range", value)
	}

	// Build the hdparm command:
	// * -q suppresses the confirmation output
	// * -S sets the standby timeout
	c := []string{s.cfg.Commands.Hdparm, "-q", "-S", strconv.Itoa(value), s.byIDPath(byID)}

	return s.runner.Run(ctx, c, util.Options{Log: true})
}

// PowerState returns the drive's power state as reported by hdparm -C, e.g. "active/idle" or "standby".
//
// Command output from "hdparm -C" should look like:
//
//	/dev/disk/by-id/ata-WDC_WD30EFRX-68EUZN0_WD-WMC4N0912345:
//	 drive state is:  active/idle
func (s *Scanner) PowerState(ctx context.Context, byID string) (string, error) {
	c := []string{s.cfg.Commands.Hdparm, "-C", s.byIDPath(byID)}
	out, err := s.runner.Run(ctx, c, util.Options{AllowFail: true})
	if err != nil {
		return PowerStateUnknown, err
	}
	if out.ReturnCode != 0 {
		return PowerStateUnknown, nil
	}

	for _, line := range out.StdoutLines() {
		if _, state, ok := strings.Cut(line, "drive state is:"); ok {
			return strings.TrimSpace(state), nil
		}
	}

	return PowerStateUnknown, nil
}

func (s *Scanner) byIDPath(byID string) string {
	if strings.HasPrefix(byID, "/") {
		return byID
	}
	return ByIDDir + byID
}
