package agent

import (
	"time"

	"github.com/arclight-c2/arclight/internal/server/dto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
)

const appVersion = "1.0.0"

// Collector samples host telemetry for beacon payloads. All reads are
// best-effort; a probe that fails just leaves its fields zero.
type Collector struct{}

func NewCollector() *Collector {
	return &Collector{}
}

// Basic returns the lightweight host snapshot attached to every beacon.
func (c *Collector) Basic() *dto.BasicTelemetry {
	bt := &dto.BasicTelemetry{
		AgentVersion: appVersion,
		Timestamp:    float64(time.Now().Unix()),
	}

	if info, err := host.Info(); err == nil {
		bt.Hostname = info.Hostname
		bt.OSInfo = info.Platform + " " + info.PlatformVersion
		bt.Uptime = float64(info.Uptime)
	}

	if ifaces, err := gopsnet.Interfaces(); err == nil {
		for _, iface := range ifaces {
			for _, addr := range iface.Addrs {
				if addr.Addr != "" && addr.Addr != "127.0.0.1/8" && addr.Addr != "::1/128" {
					bt.InternalIPs = append(bt.InternalIPs, addr.Addr)
				}
			}
		}
	}

	return bt
}

// System returns the full performance sample carried when metrics collection
// is enabled.
func (c *Collector) System() *dto.SystemMetrics {
	sm := &dto.SystemMetrics{
		Timestamp: float64(time.Now().Unix()),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sm.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		sm.MemoryTotal = vm.Total
		sm.MemoryUsed = vm.Used
		sm.MemoryPercent = vm.UsedPercent
	}

	if usage, err := disk.Usage("/"); err == nil {
		sm.DiskTotal = usage.Total
		sm.DiskUsed = usage.Used
		sm.DiskPercent = usage.UsedPercent
	}

	if counters, err := gopsnet.IOCounters(false); err == nil && len(counters) > 0 {
		sm.NetworkBytesSent = counters[0].BytesSent
		sm.NetworkBytesRecv = counters[0].BytesRecv
		sm.NetworkPacketsSent = counters[0].PacketsSent
		sm.NetworkPacketsRecv = counters[0].PacketsRecv
	}

	return sm
}
