package dispatcher

import (
	"time"

	"github.com/cuemby/ankaios-core/pkg/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DefaultLoadSampler reports host CPU usage and free memory using
// gopsutil, the same host-stats dependency family the rest of the pack
// reaches for rather than hand-parsing /proc. A short blocking sample
// window keeps the percentage meaningful without stalling the load tick
// noticeably.
func DefaultLoadSampler() types.AgentAttributes {
	percentages, err := cpu.Percent(50*time.Millisecond, false)
	cpuPercent := 0.0
	if err == nil && len(percentages) > 0 {
		cpuPercent = percentages[0]
	}

	var freeBytes uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		freeBytes = vm.Available
	}

	return types.AgentAttributes{
		CPUUsagePercent: cpuPercent,
		FreeMemoryBytes: int64(freeBytes),
	}
}
