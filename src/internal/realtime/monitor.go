package realtime

import (
	"sync"
	"teamhub-realtime-svc/src/internal/config"
	"time"

	"github.com/sirupsen/logrus"
)

// Monitor owns the heartbeat protocol and the periodic sweep. Heartbeat
// answers only update liveness bookkeeping; the sweep evicts sessions whose
// transport has terminated without the disconnect path having cleaned up.
type Monitor struct {
	registry *Registry
	cfg      *config.RealtimeSettings

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewMonitor(registry *Registry, cfg *config.RealtimeSettings) *Monitor {
	return &Monitor{
		registry: registry,
		cfg:      cfg,
		stop:     make(chan struct{}),
	}
}

// Start launches the periodic sweep.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(time.Duration(m.cfg.SweepSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stop:
				return
			}
		}
	}()

	logrus.WithFields(logrus.Fields{
		"sweep_seconds":     m.cfg.SweepSeconds,
		"heartbeat_seconds": m.cfg.HeartbeatSeconds,
	}).Info("Liveness monitor started")
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

// Track starts emitting heartbeat probes to a freshly bound session. The
// loop tears down with the session or with the monitor, whichever first.
func (m *Monitor) Track(s *Session) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(time.Duration(m.cfg.HeartbeatSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Send("ping", nil)
			case <-s.Done():
				return
			case <-m.stop:
				return
			}
		}
	}()
}

// sweep removes registry entries whose transport is gone. A session that is
// transport-connected but silent stays: eviction is driven by transport
// state, not missed heartbeats.
func (m *Monitor) sweep() {
	cleaned := 0
	for _, s := range m.registry.Sessions() {
		if s.IsTerminated() {
			m.registry.Remove(s.ID)
			cleaned++
		}
	}

	if cleaned > 0 {
		logrus.WithFields(logrus.Fields{
			"cleaned": cleaned,
			"stats":   m.registry.Stats(),
		}).Info("Liveness sweep evicted dead sessions")
	}
}
