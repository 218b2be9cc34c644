package types

// Share is a subvolume exposed as a first class, independently mountable unit.
type Share struct {
	Name string `yaml:"name"`
	// Qgroup is the share's own quota group, "0/<subvol id>".
	Qgroup string `yaml:"qgroup"`
	// Pqgroup is the parent quota group in the reserved namespace, e.g. "2015/3".
	Pqgroup string `yaml:"pqgroup,omitempty"`
	Pool    string `yaml:"pool"`
}

// Snapshot is a point in time copy of a share's subvolume.
type Snapshot struct {
	Name     string `yaml:"name"`
	Share    string `yaml:"share"`
	ID       int    `yaml:"id"`
	Qgroup   string `yaml:"qgroup"`
	Writable bool   `yaml:"writable"`
}

// Subvol is one "btrfs subvolume list" row.
type Subvol struct {
	ID         int    `yaml:"id"`
	Gen        int    `yaml:"gen,omitempty"`
	CGen       int    `yaml:"cgen,omitempty"`
	Parent     int    `yaml:"parent"`
	TopLevel   int    `yaml:"top_level"`
	OTime      string `yaml:"otime,omitempty"`
	ParentUUID string `yaml:"parent_uuid,omitempty"`
	UUID       string `yaml:"uuid,omitempty"`
	Path       string `yaml:"path"`
}

// QgroupUsage is the usage of one quota group in KiB.
type QgroupUsage struct {
	Rfer int64 `yaml:"rfer"`
	Excl int64 `yaml:"excl"`
}

// VolumeUsage is the usage of a share's quota group and, when requested, of its parent quota group.
type VolumeUsage struct {
	QgroupUsage `yaml:",inline"`
	Parent      *QgroupUsage `yaml:"parent,omitempty"`
}

// Tuple flattens u into the [rfer, excl] or [rfer, excl, parent rfer, parent excl] form.
func (u VolumeUsage) Tuple() []int64 {
	if u.Parent == nil {
		return []int64{u.Rfer, u.Excl}
	}
	return []int64{u.Rfer, u.Excl, u.Parent.Rfer, u.Parent.Excl}
}
