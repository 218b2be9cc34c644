package btrfs

import (
	"context"
	"strconv"
	"strings"

	"github.com/rockstor/btrfs-utils/internal/btrfs/types"
	"github.com/rockstor/btrfs-utils/internal/util"
)

// connReset is reported when the scrub daemon socket goes away mid query.
const connReset = "Connection reset by peer"

// StartScrub starts a scrub of pool. The tool backgrounds the scrub itself and returns at once.
func (c *Controller) StartScrub(ctx context.Context, pool types.Pool, force bool) (util.CommandOutput, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return util.CommandOutput{}, err
	}

	cmd := c.btrfs("scrub", "start")
	if force {
		cmd = append(cmd, "-f")
	}
	cmd = append(cmd, mnt)

	return c.runner.Run(ctx, cmd, util.Options{Log: true})
}

// ScrubStatus returns the scrub state and raw counters of pool from "btrfs scrub status -R".
func (c *Controller) ScrubStatus(ctx context.Context, pool types.Pool) (types.ScrubStatus, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return types.ScrubStatus{}, err
	}

	return c.scrubStatus(ctx, mnt)
}

func (c *Controller) scrubStatus(ctx context.Context, mnt string) (types.ScrubStatus, error) {
	out, err := c.runner.Run(ctx, c.btrfs("scrub", "status", "-R", mnt), util.Options{AllowFail: true})
	if err != nil {
		return types.ScrubStatus{}, err
	}
	if strings.Contains(out.Stderr, connReset) {
		return types.ScrubStatus{Status: types.StatusConnReset}, nil
	}

	return c.schema().parseScrub(out.StdoutLines()), nil
}

// ScrubStatusAll is ScrubStatus extended with the rate, time left and ETA of a running or finished scrub, on
// tools that report them.
func (c *Controller) ScrubStatusAll(ctx context.Context, pool types.Pool) (types.ScrubStatus, error) {
	mnt, err := c.Mount(ctx, pool)
	if err != nil {
		return types.ScrubStatus{}, err
	}

	st, err := c.scrubStatus(ctx, mnt)
	if err != nil {
		return types.ScrubStatus{}, err
	}
	if !c.schema().extendedScrub || (st.Status != types.StatusRunning && st.Status != types.StatusFinished) {
		return st, nil
	}

	out, err := c.runner.Run(ctx, c.btrfs("scrub", "status", mnt), util.Options{AllowFail: true})
	if err != nil {
		return types.ScrubStatus{}, err
	}
	parseScrubExtended(out.StdoutLines(), &st)

	return st, nil
}

// scrubStatusOf maps the reported scrub state onto a Status.
func scrubStatusOf(s string) types.Status {
	switch strings.TrimSpace(s) {
	case "running":
		return types.StatusRunning
	case "finished":
		return types.StatusFinished
	case "aborted":
		return types.StatusCancelled
	case "interrupted":
		return types.StatusHalted
	}
	return types.StatusUnknown
}

// parseDuration converts "H:MM:SS" or a plain second count to seconds.
func parseDuration(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), ",")
	if !strings.Contains(s, ":") {
		n, _ := strconv.Atoi(s)
		return n
	}

	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// parseScrubCounter records a "key: value" counter line on st.
func parseScrubCounter(line string, st *types.ScrubStatus) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok {
		return
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return
	}

	if st.Stats == nil {
		st.Stats = map[string]int64{}
	}
	st.Stats[key] = n
	if key == "data_bytes_scrubbed" {
		st.KiBScrubbed = n / 1024
	}
}

// parseLegacyScrubStatus decodes "btrfs scrub status -R" output of releases before 5.1.2.
//
// Command output should look like:
//
//	scrub status for 030baa1c-faab-4599-baa4-6077f7f6451b
//		scrub started at Sun Aug 11 11:15:26 2019 and finished after 4 seconds
//		data_extents_scrubbed: 2
//		data_bytes_scrubbed: 131072
//		read_errors: 0
//		csum_errors: 0
func parseLegacyScrubStatus(lines []string) types.ScrubStatus {
	st := types.ScrubStatus{Status: types.StatusUnknown}
	if len(lines) < 2 {
		return st
	}

	summary := lines[1]
	for _, s := range []string{"interrupted", "running", "finished", "aborted"} {
		if strings.Contains(summary, s) {
			st.Status = scrubStatusOf(s)
			break
		}
	}

	fields := strings.Fields(summary)
	for i, f := range fields {
		if f == "after" && i+1 < len(fields) {
			st.Duration = parseDuration(fields[i+1])
			break
		}
	}

	for _, line := range lines[2:] {
		parseScrubCounter(line, &st)
	}

	return st
}

// parseScrubStatus decodes "btrfs scrub status -R" output of release 5.1.2 and later.
//
// Command output should look like:
//
//	UUID:             030baa1c-faab-4599-baa4-6077f7f6451b
//	Scrub started:    Sun Aug 11 11:15:26 2019
//	Status:           finished
//	Duration:         0:00:04
//		data_extents_scrubbed: 2
//		data_bytes_scrubbed: 131072
//		read_errors: 0
func parseScrubStatus(lines []string) types.ScrubStatus {
	st := types.ScrubStatus{Status: types.StatusUnknown}
	for _, line := range lines {
		if strings.HasPrefix(line, "\t") || strings.HasPrefix(line, " ") {
			parseScrubCounter(line, &st)
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch key {
		case "Status":
			st.Status = scrubStatusOf(value)
		case "Duration":
			st.Duration = parseDuration(value)
		}
	}
	return st
}

// parseScrubExtended adds the progress fields of "btrfs scrub status" to st.
//
// Command output should look like:
//
//	UUID:             030baa1c-faab-4599-baa4-6077f7f6451b
//	Scrub started:    Sun Aug 11 11:15:26 2019
//	Status:           running
//	Duration:         0:00:20
//	Time left:        0:01:10
//	ETA:              Sun Aug 11 11:16:56 2019
//	Total to scrub:   3.02GiB
//	Bytes scrubbed:   1.00GiB
//	Rate:             51.20MiB/s
//	Error summary:    no errors found
func parseScrubExtended(lines []string, st *types.ScrubStatus) {
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Time left":
			st.TimeLeft = value
		case "ETA":
			st.ETA = value
		case "Rate":
			st.Rate = value
		}
	}
}
