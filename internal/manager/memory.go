package manager

import (
	"context"

	"github.com/shirou/gopsutil/v4/mem"
)

// containerMemoryBytes is the assumed per-container memory footprint used to
// size the active pool, matching CONTAINER_MEMORY_BYTES in the original
// (300 MiB).
const containerMemoryBytes = 300 * 1024 * 1024

// ActivePoolSize computes N_active from total system memory, per §3:
// N_active = min(MAX_CONFIGURED, floor(total_mem_bytes*0.9/300MiB) - N_standby).
// maxConfigured <= 0 means "no explicit cap", matching MAX_NUM_RUNNING_CONTAINERS
// unset.
func ActivePoolSize(ctx context.Context, nStandby, maxConfigured int) (int, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	maxContainers := int(float64(vm.Total) * 0.9 / containerMemoryBytes)
	size := maxContainers - nStandby
	if size < 0 {
		size = 0
	}
	if maxConfigured > 0 && size > maxConfigured {
		size = maxConfigured
	}
	return size, nil
}
