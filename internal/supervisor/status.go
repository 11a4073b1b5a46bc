package supervisor

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// StatusInfo is a read-only snapshot of the supervised process. The Err
// field carries any sampling failure; Status never panics.
type StatusInfo struct {
	Running    bool
	PID        int
	SessionID  string
	Status     Status
	StartTime  time.Time
	Uptime     time.Duration
	ExitCode   int
	ExitSignal string

	// Resource sampling via the OS, best effort.
	CPUPercent float64
	MemoryRSS  uint64

	Err string
}

// Status reports the current state of the active (or most recent)
// process, enriched with CPU and memory usage sampled from the OS.
func (s *Supervisor) Status() StatusInfo {
	s.mu.Lock()
	p := s.active
	if p == nil {
		for _, cand := range s.procs {
			if p == nil || cand.startTime.After(p.startTime) {
				p = cand
			}
		}
	}
	s.mu.Unlock()

	if p == nil {
		return StatusInfo{Status: StatusNotFound}
	}

	p.mu.Lock()
	info := StatusInfo{
		Running:    !p.exited(),
		PID:        p.pid,
		SessionID:  p.sessionID,
		Status:     p.status,
		StartTime:  p.startTime,
		ExitCode:   p.exitCode,
		ExitSignal: p.exitSignal,
	}
	p.mu.Unlock()

	if info.Running {
		info.Uptime = time.Since(info.StartTime)
		s.sample(&info)
	}
	return info
}

// sample fills CPU/RSS from the OS process table.
func (s *Supervisor) sample(info *StatusInfo) {
	osp, err := process.NewProcess(int32(info.PID))
	if err != nil {
		info.Err = err.Error()
		return
	}
	if cpu, err := osp.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	if mem, err := osp.MemoryInfo(); err == nil && mem != nil {
		info.MemoryRSS = mem.RSS
	}
}
