package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SessionCounter reports how many live sessions the gateway currently holds.
type SessionCounter interface {
	SessionCount() int
}

// HeartbeatWorker periodically logs process health (CPU, RSS, Go memstats)
// together with the live session count.
type HeartbeatWorker struct {
	log      *slog.Logger
	sessions SessionCounter
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, sessions SessionCounter, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, sessions: sessions, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rssMb, cpu := selfStats(p)

			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			w.log.Info("Heartbeat",
				"live_sessions", w.sessions.SessionCount(),
				"rss_mb", rssMb,
				"cpu_percent", cpu,
				"alloc_mb", m.Alloc/1024/1024,
				"num_gc", m.NumGC,
				"goroutines", runtime.NumGoroutine())
		}
	}
}

func selfStats(p *process.Process) (uint64, float64) {
	var rssMb uint64
	if mem, err := p.MemoryInfo(); err == nil {
		rssMb = mem.RSS / 1024 / 1024
	}
	cpu, _ := p.CPUPercent()
	return rssMb, cpu
}
