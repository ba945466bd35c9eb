package manager

import (
	"context"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"gwconsole/internal/config"
	"gwconsole/internal/models"
)

// StartTelemetryMonitor launches a background sampler of the console
// process and its host. interval <= 0 selects the default.
func (m *Manager) StartTelemetryMonitor(interval time.Duration) {
	if m == nil {
		return
	}
	if interval <= 0 {
		interval = config.DefaultTelemetryInterval
	}
	m.telemetryMu.Lock()
	if m.telemetryStop != nil {
		m.telemetryMu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.telemetryStop = stop
	m.telemetryMu.Unlock()

	m.telemetryWG.Add(1)
	go func() {
		defer m.telemetryWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		ctx := context.Background()
		m.refreshTelemetry(ctx)
		for {
			select {
			case <-ticker.C:
				m.refreshTelemetry(ctx)
			case <-stop:
				return
			}
		}
	}()
}

// StopTelemetryMonitor stops the sampler and waits for it to exit.
func (m *Manager) StopTelemetryMonitor() {
	if m == nil {
		return
	}
	m.telemetryMu.Lock()
	stop := m.telemetryStop
	m.telemetryStop = nil
	m.telemetryMu.Unlock()
	if stop != nil {
		close(stop)
	}
	m.telemetryWG.Wait()
}

// ProcessTelemetry returns the last sample, or a zero value before the
// first one.
func (m *Manager) ProcessTelemetry() models.ProcessMetrics {
	m.telemetryMu.Lock()
	defer m.telemetryMu.Unlock()
	if m.telemetry == nil {
		return models.ProcessMetrics{Goroutines: runtime.NumGoroutine()}
	}
	return *m.telemetry
}

func (m *Manager) refreshTelemetry(ctx context.Context) {
	snapshot := m.collectTelemetry(ctx)
	m.telemetryMu.Lock()
	m.telemetry = snapshot
	m.telemetryMu.Unlock()
}

func (m *Manager) collectTelemetry(ctx context.Context) *models.ProcessMetrics {
	now := time.Now()
	snapshot := &models.ProcessMetrics{
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  now.UTC(),
	}

	if timesStats, err := cpu.TimesWithContext(ctx, false); err == nil && len(timesStats) > 0 {
		total := cpuTotal(timesStats[0])
		idle := timesStats[0].Idle + timesStats[0].Iowait
		snapshot.HostCPUPercent = m.updateHostSample(total, idle)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		snapshot.HostMemUsed = clampFloat(vm.UsedPercent, 0, 100)
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if ts, err := proc.TimesWithContext(ctx); err == nil && ts != nil {
			snapshot.CPUPercent = m.updateProcessSample(ts.User+ts.System, now)
		}
		if mi, err := proc.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			snapshot.RSSBytes = mi.RSS
		}
	}

	snapshot.HealthPercent = computeHealth(snapshot.HostCPUPercent, snapshot.HostMemUsed)
	return snapshot
}

func cpuTotal(stat cpu.TimesStat) float64 {
	return stat.User + stat.System + stat.Nice + stat.Idle + stat.Iowait + stat.Irq + stat.Softirq + stat.Steal + stat.Guest + stat.GuestNice
}

// updateHostSample stores the host CPU counters and returns the busy
// percentage since the previous sample.
func (m *Manager) updateHostSample(total, idle float64) float64 {
	m.telemetryMu.Lock()
	defer m.telemetryMu.Unlock()
	deltaTotal := total - m.lastHostTotal
	deltaIdle := idle - m.lastHostIdle
	hasPrev := m.lastHostTotal > 0
	m.lastHostTotal = total
	m.lastHostIdle = idle
	if !hasPrev || deltaTotal <= 0 {
		return 0
	}
	used := deltaTotal - deltaIdle
	if used < 0 {
		used = 0
	}
	return clampFloat((used/deltaTotal)*100, 0, 100)
}

// updateProcessSample stores the process CPU seconds and returns the share
// of all cores used since the previous sample.
func (m *Manager) updateProcessSample(cpuSeconds float64, now time.Time) float64 {
	m.telemetryMu.Lock()
	defer m.telemetryMu.Unlock()
	prev, prevAt := m.lastProcCPU, m.lastProcAt
	m.lastProcCPU, m.lastProcAt = cpuSeconds, now
	if prevAt.IsZero() || !now.After(prevAt) {
		return 0
	}
	delta := cpuSeconds - prev
	if delta <= 0 {
		return 0
	}
	wall := now.Sub(prevAt).Seconds()
	return clampFloat(delta/wall/float64(runtime.NumCPU())*100, 0, 100)
}

func computeHealth(values ...float64) float64 {
	maxUsage := 0.0
	for _, v := range values {
		if v > maxUsage {
			maxUsage = v
		}
	}
	return clampFloat(100-maxUsage, 0, 100)
}

func clampFloat(val, min, max float64) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return min
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
