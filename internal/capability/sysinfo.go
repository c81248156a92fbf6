package capability

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemInfo reports the host facts the analyzer checks.
type SystemInfo interface {
	OS() string
	Arch() string
	KernelVersion(ctx context.Context) (string, error)
	// Memory returns total and available physical memory in bytes.
	Memory(ctx context.Context) (total, available uint64, err error)
	// CPU returns the logical core count and the nominal clock in MHz.
	// A zero clock means it is unknown.
	CPU(ctx context.Context) (cores int, mhz float64, err error)
}

type hostInfo struct{}

// Compile-time verification that hostInfo implements SystemInfo.
var _ SystemInfo = (*hostInfo)(nil)

// NewHostInfo returns a SystemInfo backed by gopsutil.
func NewHostInfo() SystemInfo {
	return &hostInfo{}
}

func (h *hostInfo) OS() string {
	return runtime.GOOS
}

func (h *hostInfo) Arch() string {
	return runtime.GOARCH
}

func (h *hostInfo) KernelVersion(ctx context.Context) (string, error) {
	version, err := host.KernelVersionWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("kernel version: %w", err)
	}
	return version, nil
}

func (h *hostInfo) Memory(ctx context.Context) (uint64, uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.Total, vm.Available, nil
}

func (h *hostInfo) CPU(ctx context.Context) (int, float64, error) {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, 0, fmt.Errorf("cpu counts: %w", err)
	}

	// Clock speed is informational; some platforms do not expose it.
	var mhz float64
	if infos, err := cpu.InfoWithContext(ctx); err == nil {
		for _, info := range infos {
			mhz = max(mhz, info.Mhz)
		}
	}
	return cores, mhz, nil
}
