package hardware

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// memoryPerJob is the memory budget assumed per parallel compile job.
// Linking and codegen regularly exceed 1 GiB per rustc process on larger
// crates, so memory-constrained hosts get fewer jobs than their core
// count alone would allow.
const memoryPerJob = 1 << 30

// CPUPercentage converts a percentage into a core count, clamped to
// [1, count]. When physical is true the physical core count is used,
// otherwise the logical count.
func (i Info) CPUPercentage(pct float64, physical bool) int {
	count := i.LogicalCores
	if physical {
		count = i.PhysicalCores
	}
	return clampCount(pct, count)
}

// MemoryPercentage converts a percentage into a byte count over total
// memory, clamped to [1, TotalMemory].
func (i Info) MemoryPercentage(pct float64) uint64 {
	bytes := int64(math.Round(pct / 100 * float64(i.TotalMemory)))
	if bytes < 1 {
		return 1
	}
	if uint64(bytes) > i.TotalMemory {
		return i.TotalMemory
	}
	return uint64(bytes)
}

// ParsePercentage parses a "NN%" string into its numeric value. A bare
// integer string is an absolute value, not a percentage, so it returns
// ok=false; callers that accept both forms use JobsFromPercentageOrValue.
func ParsePercentage(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || pct < 0 {
		return 0, false
	}
	return pct, true
}

// JobsFromPercentageOrValue resolves either a percentage string ("75%")
// or a literal integer string ("8") into a job count clamped to
// [1, LogicalCores]. Unparseable input returns ok=false.
func (i Info) JobsFromPercentageOrValue(s string) (int, bool) {
	if pct, ok := ParsePercentage(s); ok {
		return clampCount(pct, i.LogicalCores), true
	}

	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return clampInt(n, 1, i.LogicalCores), true
}

// RecommendedParallelism derives a job count bounded by both the logical
// core count and the memory-per-job budget, never below 1.
func (i Info) RecommendedParallelism() int {
	jobs := i.LogicalCores
	memJobs := int(i.AvailMemory / memoryPerJob)
	if memJobs < jobs {
		jobs = memJobs
	}
	if jobs < 1 {
		jobs = 1
	}
	return jobs
}

// InsufficientResourcesError reports which resource constraint failed
// during CheckResources.
type InsufficientResourcesError struct {
	Constraint string // "memory" or "disk"
	Have       uint64
	Want       uint64
}

func (e *InsufficientResourcesError) Error() string {
	return fmt.Sprintf("insufficient %s: have %s, need %s",
		e.Constraint, humanize.IBytes(e.Have), humanize.IBytes(e.Want))
}

// CheckResources verifies the host has at least the given available
// memory and free disk space, in gigabytes. The disk check uses the
// largest free space across detected disks; hosts with no detected
// disks skip the disk check rather than fail it.
func (i Info) CheckResources(minMemoryGB, minDiskGB float64) error {
	wantMem := uint64(minMemoryGB * float64(1<<30))
	if i.AvailMemory < wantMem {
		return &InsufficientResourcesError{
			Constraint: "memory",
			Have:       i.AvailMemory,
			Want:       wantMem,
		}
	}

	if len(i.Disks) == 0 {
		return nil
	}

	var maxFree uint64
	for _, d := range i.Disks {
		if d.Free > maxFree {
			maxFree = d.Free
		}
	}

	wantDisk := uint64(minDiskGB * float64(1<<30))
	if maxFree < wantDisk {
		return &InsufficientResourcesError{
			Constraint: "disk",
			Have:       maxFree,
			Want:       wantDisk,
		}
	}

	return nil
}

// clampCount rounds pct/100*count and clamps the result to [1, count].
func clampCount(pct float64, count int) int {
	n := int(math.Round(pct / 100 * float64(count)))
	return clampInt(n, 1, count)
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
