package raid

import "strings"

// UsageBound computes the usable capacity of disks with the sizes given when they are allocated with the RAID
// profile key. The result is in the unit of diskSizes. Only the first numDevices sizes are considered. The result
// depends on the order of diskSizes; callers pass them largest first so that each partition point separates the
// largest devices from the rest.
//
// This is done through the following steps:
//  1. The copy and parity counts are taken from the profile.
//  2. The stripe and chunk counts are derived from the raid family.
//  3. The chunk count is rounded down to a multiple of the copy count.
//  4. A topology that cannot be satisfied by numDevices yields 0.
//  5. The trivial bound spreads the total size over every chunk.
//  6. Each partition point q is tested for a tighter bound made of the devices above q.
//  7. Without a tighter bound all capacity is allocatable.
//  8. Otherwise the devices up to the partition point are reduced by the bound and the remaining capacity on them
//     is computed recursively.
func UsageBound(diskSizes []int, numDevices int, key string) int {
	p := Lookup(key)
	if numDevices > len(diskSizes) {
		numDevices = len(diskSizes)
	}

	stripes := 1
	chunks := numDevices

	switch {
	case strings.HasPrefix(key, "unknown"), strings.HasPrefix(key, "single"):
		chunks = 1
	case strings.HasPrefix(key, "raid0"):
		stripes = 2
	case key == "raid1", strings.HasPrefix(key, "raid1-"):
		chunks = 2
	case strings.HasPrefix(key, "raid10"):
		stripes = numDevices / 2
		if stripes < 2 {
			stripes = 2
		}
	}

	chunks -= chunks % p.DataCopies

	if chunks == 0 || numDevices < p.DataCopies*(stripes+p.DataParity) {
		return 0
	}

	sizes := append([]int(nil), diskSizes[:numDevices]...)

	bound := sum(sizes) / chunks

	bq := -1
	for q := 0; q < chunks-1; q++ {
		b := sum(sizes[q+1:]) / (chunks - q - 1)
		if sizes[q] >= b && b < bound {
			bound = b
			bq = q
		}
	}

	allocated := bound * (chunks/p.DataCopies - p.DataParity)
	if bq == -1 {
		return allocated
	}

	for i := 0; i <= bq; i++ {
		sizes[i] -= bound
	}

	return allocated + UsageBound(sizes, bq+1, key)
}

func sum(s []int) int {
	var total int
	for _, v := range s {
		total += v
	}
	return total
}
