package status

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/filexchange/internal/models"
)

// systemResources samples the current process and the disk holding rootDir.
// Failed probes are logged and reported as zero.
func systemResources(rootDir string, logger *logrus.Logger) models.SystemResources {
	res := models.SystemResources{CPUCount: runtime.NumCPU()}

	if rootDir == "" {
		rootDir = "/"
	}
	if usage, err := disk.Usage(rootDir); err != nil {
		logger.Warnf("Failed to get disk usage: %v", err)
	} else {
		res.DiskTotal = usage.Total
		res.DiskUsed = usage.Used
		res.DiskFree = usage.Free
		res.DiskPercent = usage.UsedPercent
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warnf("Failed to get process info: %v", err)
		return res
	}

	if res.CPUPercent, err = proc.CPUPercent(); err != nil {
		logger.Warnf("Failed to get CPU percent: %v", err)
	}

	if memInfo, err := proc.MemoryInfo(); err != nil {
		logger.Warnf("Failed to get memory info: %v", err)
	} else {
		res.MemoryRSS = memInfo.RSS
		res.MemoryVMS = memInfo.VMS
	}

	if res.MemoryPercent, err = proc.MemoryPercent(); err != nil {
		logger.Warnf("Failed to get memory percent: %v", err)
	}

	return res
}
