// Package hardware detects host hardware facts used to tune build
// parallelism. Detection never fails: every probe that errors is replaced
// by a conservative documented fallback, so callers always have usable
// numbers to work with.
package hardware

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jamesainslie/buildtune/pkg/buildtune/logging"
)

// Disk describes a single mounted filesystem.
type Disk struct {
	Mountpoint string
	Filesystem string
	Total      uint64
	Free       uint64

	// SSD is nil when rotational status could not be determined.
	SSD *bool
}

// Info is an immutable snapshot of the host hardware. It is created once
// per Detect call and never mutated afterwards.
type Info struct {
	LogicalCores  int
	PhysicalCores int
	CPUModel      string
	BaseMHz       float64
	TotalMemory   uint64
	AvailMemory   uint64
	OS            string
	Arch          string
	Disks         []Disk
}

// Fallback values used when probing fails. Deliberately minimal so that
// downstream parallelism decisions stay conservative on unknown hosts.
const (
	fallbackCores       = 1
	fallbackTotalMemory = 1 << 30 // 1 GiB
	fallbackAvailMemory = 512 << 20
)

// Detect returns a snapshot of the host hardware. It never returns an
// error: each fact that cannot be probed is substituted with its fallback
// and the failure is logged at debug level.
func Detect(ctx context.Context) Info {
	logger := logging.Get("hardware")

	info := Info{
		LogicalCores:  fallbackCores,
		PhysicalCores: fallbackCores,
		TotalMemory:   fallbackTotalMemory,
		AvailMemory:   fallbackAvailMemory,
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}

	if logical, err := cpu.CountsWithContext(ctx, true); err == nil && logical > 0 {
		info.LogicalCores = logical
	} else {
		logger.Debug("logical core probe failed, using fallback", "error", err)
	}

	if physical, err := cpu.CountsWithContext(ctx, false); err == nil && physical > 0 {
		info.PhysicalCores = physical
	} else {
		// Physical count is unreliable on some VMs; fall back to logical
		info.PhysicalCores = info.LogicalCores
		logger.Debug("physical core probe failed, using logical count", "error", err)
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
		info.BaseMHz = cpus[0].Mhz
	} else {
		logger.Debug("cpu info probe failed", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemory = vm.Total
		info.AvailMemory = vm.Available
	} else {
		logger.Debug("memory probe failed, using fallback", "error", err)
	}

	if hi, err := host.InfoWithContext(ctx); err == nil && hi.OS != "" {
		info.OS = hi.OS
	} else {
		logger.Debug("host probe failed, using runtime.GOOS", "error", err)
	}

	info.Disks = detectDisks(ctx)

	logger.Debug("hardware detected",
		"logical_cores", info.LogicalCores,
		"physical_cores", info.PhysicalCores,
		"total_memory", info.TotalMemory,
		"os", info.OS,
		"arch", info.Arch,
		"disks", len(info.Disks))

	return info
}

// detectDisks gathers mounted filesystems, skipping pseudo filesystems.
// An empty slice is a valid result.
func detectDisks(ctx context.Context) []Disk {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		logging.Get("hardware").Debug("disk probe failed", "error", err)
		return nil
	}

	var disks []Disk
	for _, partition := range partitions {
		if shouldSkipFilesystem(partition.Fstype) {
			continue
		}

		usage, err := disk.UsageWithContext(ctx, partition.Mountpoint)
		if err != nil {
			continue
		}

		disks = append(disks, Disk{
			Mountpoint: partition.Mountpoint,
			Filesystem: partition.Fstype,
			Total:      usage.Total,
			Free:       usage.Free,
		})
	}

	return disks
}

// shouldSkipFilesystem reports whether a filesystem type is a pseudo or
// read-only filesystem that is irrelevant for build storage.
func shouldSkipFilesystem(fstype string) bool {
	skipTypes := map[string]bool{
		"tmpfs":    true,
		"devtmpfs": true,
		"devfs":    true,
		"proc":     true,
		"sysfs":    true,
		"cgroup":   true,
		"cgroup2":  true,
		"nsfs":     true,
		"overlay":  true,
		"squashfs": true,
		"iso9660":  true,
	}
	return skipTypes[fstype]
}
