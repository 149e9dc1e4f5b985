// Package conditions checks host state before an immediate-mode job runs
package conditions

import (
	"fmt"
	"os/exec"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Config defines optional thresholds, nil fields are not checked
type Config struct {
	CPUBelow      *int     `yaml:"cpu_below,omitempty" json:"cpu_below,omitempty" jsonschema:"minimum=0,maximum=100,description=run only if CPU usage percent is below"`
	MemoryBelow   *int     `yaml:"memory_below,omitempty" json:"memory_below,omitempty" jsonschema:"minimum=0,maximum=100,description=run only if memory usage percent is below"`
	LoadAvgBelow  *float64 `yaml:"load_avg_below,omitempty" json:"load_avg_below,omitempty" jsonschema:"minimum=0,description=run only if 1 minute load average is below"`
	DiskFreeAbove *int     `yaml:"disk_free_above,omitempty" json:"disk_free_above,omitempty" jsonschema:"minimum=0,maximum=100,description=run only if free disk percent is above"`
	DiskFreePath  string   `yaml:"disk_free_path,omitempty" json:"disk_free_path,omitempty" jsonschema:"description=path for disk free check, backup dir by default"`
	Custom        string   `yaml:"custom,omitempty" json:"custom,omitempty" jsonschema:"description=shell command, run only if it exits with 0"`
}

// Checker verifies conditions using host metrics
type Checker struct {
	cpuInterval time.Duration
}

// NewChecker makes Checker, cpuInterval is the CPU sampling period (1s if 0)
func NewChecker(cpuInterval time.Duration) *Checker {
	if cpuInterval <= 0 {
		cpuInterval = time.Second
	}
	return &Checker{cpuInterval: cpuInterval}
}

// Check verifies all configured conditions, returns false with the reason of the first failed one
func (c *Checker) Check(cfg Config) (ok bool, reason string) {
	if cfg.CPUBelow != nil {
		if ok, reason := c.checkCPU(*cfg.CPUBelow); !ok {
			return false, reason
		}
	}
	if cfg.MemoryBelow != nil {
		if ok, reason := checkMemory(*cfg.MemoryBelow); !ok {
			return false, reason
		}
	}
	if cfg.LoadAvgBelow != nil {
		if ok, reason := checkLoadAvg(*cfg.LoadAvgBelow); !ok {
			return false, reason
		}
	}
	if cfg.DiskFreeAbove != nil {
		path := cfg.DiskFreePath
		if path == "" {
			path = "/"
		}
		if ok, reason := checkDiskFree(*cfg.DiskFreeAbove, path); !ok {
			return false, reason
		}
	}
	if cfg.Custom != "" {
		if ok, reason := checkCustom(cfg.Custom); !ok {
			return false, reason
		}
	}
	return true, ""
}

func (c *Checker) checkCPU(threshold int) (bool, string) {
	cpuPercent, err := cpu.Percent(c.cpuInterval, false)
	if err != nil {
		return false, fmt.Sprintf("failed to get CPU: %v", err)
	}
	if len(cpuPercent) == 0 {
		return false, "no CPU data available"
	}
	current := int(cpuPercent[0])
	if current >= threshold {
		return false, fmt.Sprintf("CPU at %d%%, threshold %d%%", current, threshold)
	}
	return true, ""
}

func checkMemory(threshold int) (bool, string) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return false, fmt.Sprintf("failed to get memory: %v", err)
	}
	current := int(v.UsedPercent)
	if current >= threshold {
		return false, fmt.Sprintf("memory at %d%%, threshold %d%%", current, threshold)
	}
	return true, ""
}

func checkLoadAvg(threshold float64) (bool, string) {
	loads, err := load.Avg()
	if err != nil {
		return false, fmt.Sprintf("failed to get load average: %v", err)
	}
	if loads.Load1 >= threshold {
		return false, fmt.Sprintf("load at %.2f, threshold %.2f", loads.Load1, threshold)
	}
	return true, ""
}

func checkDiskFree(minFreePercent int, path string) (bool, string) {
	usage, err := disk.Usage(path)
	if err != nil {
		return false, fmt.Sprintf("failed to get disk usage for %s: %v", path, err)
	}
	freePercent := 100 - int(usage.UsedPercent)
	if freePercent < minFreePercent {
		return false, fmt.Sprintf("disk free at %d%%, need %d%% on %s", freePercent, minFreePercent, path)
	}
	return true, ""
}

func checkCustom(script string) (bool, string) {
	log.Printf("[DEBUG] run custom condition %q", script)
	cmd := exec.Command("sh", "-c", script) //nolint:gosec // script comes from the job table
	if err := cmd.Run(); err != nil {
		return false, fmt.Sprintf("custom check failed: %v", err)
	}
	return true, ""
}
