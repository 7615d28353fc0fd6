package config

import (
	"github.com/jamesainslie/buildtune/pkg/buildtune/hardware"
	"github.com/jamesainslie/buildtune/pkg/buildtune/logging"
)

// ApplyHardwareOptimizations fills in a job count for every profile that
// has none set, derived from detected hardware. A percentage rule on the
// profile wins; otherwise bench gets the full logical core count and the
// rest get the memory-aware recommendation. Idempotent: a job count the
// caller (or a previous run) set explicitly is never overwritten.
func (c *Config) ApplyHardwareOptimizations(hw hardware.Info) {
	logger := logging.Get("resolver")

	for name, profile := range c.Profiles {
		if profile.Jobs != nil {
			continue
		}

		var jobs int
		switch {
		case profile.JobsPercent != "":
			n, ok := hw.JobsFromPercentageOrValue(profile.JobsPercent)
			if !ok {
				logger.Warn("invalid jobs_percent, using recommendation",
					"profile", name, "jobs_percent", profile.JobsPercent)
				n = hw.RecommendedParallelism()
			}
			jobs = n
		case name == ProfileBench:
			// Benchmarks want stable wall-clock numbers: saturate cores
			jobs = hw.LogicalCores
		default:
			jobs = hw.RecommendedParallelism()
		}

		if c.Global.OptLevel == OptConservative && jobs > 1 {
			jobs = (jobs + 1) / 2
		}

		profile.Jobs = &jobs
		c.Profiles[name] = profile

		logger.Debug("profile job count set", "profile", name, "jobs", jobs)
	}
}

// ResolvedJobs returns the job count per profile for profiles that have
// one, keyed by profile name. Callers report this in the apply result.
func (c *Config) ResolvedJobs() map[string]int {
	jobs := make(map[string]int, len(c.Profiles))
	for name, profile := range c.Profiles {
		if profile.Jobs != nil {
			jobs[name] = *profile.Jobs
		}
	}
	return jobs
}
