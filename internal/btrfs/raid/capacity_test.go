package raid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsageBound(t *testing.T) {
	const n = 2 * 1024 * 1024

	tests := []struct {
		name  string
		sizes []int
		key   string
		want  int
	}{
		{name: "raid1 two equal devices", sizes: []int{n, n}, key: "raid1", want: n},
		{name: "raid1 single device infeasible", sizes: []int{n}, key: "raid1", want: 0},
		{name: "raid1 unequal devices", sizes: []int{10, 1, 1}, key: "raid1", want: 2},
		{name: "raid1 three equal devices", sizes: []int{6, 6, 6}, key: "raid1", want: 9},
		{name: "single sums everything", sizes: []int{5, 3, 2}, key: "single", want: 10},
		{name: "raid0", sizes: []int{4, 4}, key: "raid0", want: 8},
		{name: "raid10 four equal", sizes: []int{4, 4, 4, 4}, key: "raid10", want: 8},
		{name: "raid5 three equal", sizes: []int{4, 4, 4}, key: "raid5", want: 8},
		{name: "raid6 four equal", sizes: []int{4, 4, 4, 4}, key: "raid6", want: 8},
		{name: "raid1c3 two devices infeasible", sizes: []int{4, 4}, key: "raid1c3", want: 0},
		{name: "raid1c3 three equal", sizes: []int{6, 6, 6}, key: "raid1c3", want: 6},
		{name: "mixed raid1 metadata variant", sizes: []int{n, n, n}, key: "raid1-1c3", want: 3 * n / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UsageBound(tt.sizes, len(tt.sizes), tt.key))
		})
	}
}

func TestUsageBound_DoesNotMutateInput(t *testing.T) {
	sizes := []int{10, 1, 1}
	UsageBound(sizes, len(sizes), "raid1")
	assert.Equal(t, []int{10, 1, 1}, sizes)
}

// Sizes must be passed largest first. Ascending order hides the tight bound: [1, 1, 10] under raid1 yields 6,
// while only 2 can be mirrored.
func TestUsageBound_LargestFirst(t *testing.T) {
	assert.Equal(t, 2, UsageBound([]int{10, 1, 1}, 3, "raid1"))
	assert.Equal(t, 6, UsageBound([]int{1, 1, 10}, 3, "raid1"), "ascending input overstates the capacity")
}
