package binutil

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
)

// ProcessStats samples the resource usage of the current process
type ProcessStats struct {
	p *process.Process
}

// NewProcessStats finds the current process
func NewProcessStats() (*ProcessStats, error) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, errors.Wrapf(err, "find process %d", pid)
	}
	return &ProcessStats{p: p}, nil
}

// CPUPercent returns the CPU usage since the previous call
func (ps *ProcessStats) CPUPercent(ctx context.Context) (float64, error) {
	return ps.p.PercentWithContext(ctx, 0)
}

// MemoryRSS returns the resident set size in bytes
func (ps *ProcessStats) MemoryRSS(ctx context.Context) (uint64, error) {
	mi, err := ps.p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}
