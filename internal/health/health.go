// Package health reports process self-statistics for the health endpoint.
package health

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// SessionCounter reports how many sessions are currently live.
type SessionCounter interface {
	Len() int
}

// ClientCounter reports how many push-channel clients are connected.
type ClientCounter interface {
	ClientCount() int
}

type Snapshot struct {
	Status         string  `json:"status"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	Sessions       int     `json:"sessions"`
	WSClients      int     `json:"wsClients"`
	Goroutines     int     `json:"goroutines"`
	MemoryRSSBytes uint64  `json:"memoryRssBytes"`
	CPUPercent     float64 `json:"cpuPercent"`
}

type Reporter struct {
	startedAt time.Time
	proc      *process.Process
	sessions  SessionCounter
	clients   ClientCounter
}

func NewReporter(sessions SessionCounter, clients ClientCounter) *Reporter {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Reporter{
		startedAt: time.Now(),
		proc:      proc,
		sessions:  sessions,
		clients:   clients,
	}
}

// Snapshot gathers current process stats. Probe failures degrade to zero
// values rather than failing the endpoint.
func (r *Reporter) Snapshot() (interface{}, error) {
	snap := Snapshot{
		Status:        "ok",
		UptimeSeconds: time.Since(r.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}
	if r.sessions != nil {
		snap.Sessions = r.sessions.Len()
	}
	if r.clients != nil {
		snap.WSClients = r.clients.ClientCount()
	}
	if r.proc != nil {
		if mem, err := r.proc.MemoryInfo(); err == nil && mem != nil {
			snap.MemoryRSSBytes = mem.RSS
		}
		if cpu, err := r.proc.CPUPercent(); err == nil {
			snap.CPUPercent = cpu
		}
	}
	return snap, nil
}
