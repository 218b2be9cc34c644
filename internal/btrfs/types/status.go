package types

// Status is the state of a balance or scrub.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusPausing    Status = "pausing"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusHalted     Status = "halted"
	StatusFinished   Status = "finished"
	StatusConnReset  Status = "conn-reset"
)

// BalanceStatus is a parsed "btrfs balance status" report.
type BalanceStatus struct {
	Status      Status `yaml:"status"`
	PercentDone int    `yaml:"percent_done"`
}

// BalanceStatusAll distinguishes a balance visible to "btrfs balance status" from an internal one inferred from
// negative unallocated space during a device removal.
type BalanceStatusAll struct {
	Active   bool          `yaml:"active"`
	Internal bool          `yaml:"internal"`
	Status   BalanceStatus `yaml:"status"`
}

// ScrubStatus is a parsed "btrfs scrub status" report.
type ScrubStatus struct {
	Status Status `yaml:"status"`
	// Duration is in seconds.
	Duration int `yaml:"duration"`
	// KiBScrubbed is derived from the data_bytes_scrubbed counter.
	KiBScrubbed int64 `yaml:"kb_scrubbed,omitempty"`
	// Stats holds the raw counters of a legacy "scrub status -R" report.
	Stats map[string]int64 `yaml:"stats,omitempty"`

	// The remaining fields are only reported by current tools.
	TimeLeft string `yaml:"time_left,omitempty"`
	ETA      string `yaml:"eta,omitempty"`
	Rate     string `yaml:"rate,omitempty"`
}
