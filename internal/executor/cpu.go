package executor

import (
	"os"
	"runtime"
	"strings"
)

// PhysicalCores reports the number of physical cores, discounting SMT
// siblings. On Linux it counts unique (physical id, core id) pairs in
// /proc/cpuinfo; when the file lists no core ids but flags hyperthreading,
// half the logical count is assumed. Anywhere detection fails the logical
// count stands in.
func PhysicalCores() int {
	logical := runtime.NumCPU()
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return logical
	}
	cores, ht := parseCPUInfo(string(data))
	switch {
	case cores > 0:
		return cores
	case ht && logical > 1:
		return logical / 2
	default:
		return logical
	}
}

// parseCPUInfo counts unique (physical id, core id) pairs and reports
// whether the ht flag is present. Virtualized hosts often omit the id lines
// entirely, which yields zero pairs.
func parseCPUInfo(data string) (cores int, ht bool) {
	type pair struct{ physical, core string }
	seen := make(map[pair]struct{})
	var physical, core string

	flush := func() {
		if physical != "" && core != "" {
			seen[pair{physical, core}] = struct{}{}
		}
		physical, core = "", ""
	}

	for _, line := range strings.Split(data, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			if strings.TrimSpace(line) == "" {
				flush()
			}
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "physical id":
			physical = value
		case "core id":
			core = value
		case "flags":
			if hasFlag(value, "ht") {
				ht = true
			}
		}
	}
	flush()
	return len(seen), ht
}

func hasFlag(flags, want string) bool {
	for _, f := range strings.Fields(flags) {
		if f == want {
			return true
		}
	}
	return false
}

// Sizing holds the worker-count knobs. Zero values take the defaults.
type Sizing struct {
	// MetadataCap bounds metadata-only runs, default 3. The Discogs API
	// allows 60 requests a minute; more workers just queue on the limiter.
	MetadataCap int
	// CoreFraction of the physical cores used by full runs, default 0.6.
	CoreFraction float64
	// MinWorkers floors full runs, default 2.
	MinWorkers int
}

func (s Sizing) withDefaults() Sizing {
	if s.MetadataCap <= 0 {
		s.MetadataCap = 3
	}
	if s.CoreFraction <= 0 {
		s.CoreFraction = 0.6
	}
	if s.MinWorkers <= 0 {
		s.MinWorkers = 2
	}
	return s
}

// Workers picks the slot count for a run. Metadata-only runs scale with the
// item count, one worker per ten releases up to the cap; full runs take a
// fraction of the physical cores.
func Workers(s Sizing, total int, metadataOnly bool, physical int) int {
	s = s.withDefaults()
	if metadataOnly {
		n := total / 10
		if n < 1 {
			n = 1
		}
		if n > s.MetadataCap {
			n = s.MetadataCap
		}
		return n
	}
	n := int(float64(physical) * s.CoreFraction)
	if n < s.MinWorkers {
		n = s.MinWorkers
	}
	return n
}
