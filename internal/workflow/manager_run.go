package workflow

import (
	"context"
	"errors"

	"capstan/internal/logging"
	"capstan/internal/records"
)

type component struct {
	name string
	run  func(context.Context)
}

func (m *Manager) components() []component {
	set := make([]component, 0, 4)
	if m.monitor != nil {
		set = append(set, component{name: "volumes", run: m.monitor.Run})
	}
	set = append(set,
		component{name: "scheduler", run: m.scheduler.Run},
		component{name: "poller", run: m.poller.Run},
		component{name: "importer", run: m.importer.Run},
	)
	return set
}

// Start launches the component goroutines. Completed records left over from
// an earlier run are requeued for import before admissions begin.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.store == nil || m.scheduler == nil || m.poller == nil || m.importer == nil {
		m.mu.Unlock()
		return errors.New("workflow components not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.requeueCompleted()

	set := m.components()
	m.wg.Add(len(set))
	for _, comp := range set {
		go func(comp component) {
			defer m.wg.Done()
			comp.run(runCtx)
		}(comp)
	}

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Int("components", len(set)))
	return nil
}

// Stop terminates background processing and waits for every component to
// return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped",
		logging.String(logging.FieldEventType, "workflow_stopped"))
}

// requeueCompleted feeds every completed record into the import queue. It
// runs at startup and when the storage gate reopens; records whose imports
// were gated or interrupted resume without operator action.
func (m *Manager) requeueCompleted() {
	if m.cfg == nil || !m.cfg.Import.Auto {
		return
	}
	completed := m.store.List(records.StatusCompleted)
	if len(completed) == 0 {
		return
	}
	for _, record := range completed {
		m.importer.Enqueue(record.ID)
	}
	m.logger.Info("queued completed downloads for import",
		logging.String(logging.FieldEventType, "import_requeued"),
		logging.Int("count", len(completed)))
}
