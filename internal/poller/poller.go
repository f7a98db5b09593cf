package poller

import (
	"context"
	"log/slog"
	"time"

	"capstan/internal/config"
	"capstan/internal/engine"
	"capstan/internal/logging"
	"capstan/internal/records"
)

// Poller queries the engine for every active record each tick. The store
// lock is held only to snapshot the active ids and again to apply the
// samples, never across engine calls.
type Poller struct {
	store     *records.Store
	engine    engine.Engine
	logger    *slog.Logger
	interval  time.Duration
	kick      func()
	completed func(int64)

	// samplers throttle per-record progress logging. Only the polling
	// goroutine touches the map.
	samplers map[int64]*logging.ProgressSampler
}

// New builds a poller over the record store and engine.
func New(cfg *config.Config, logger *slog.Logger, store *records.Store, eng engine.Engine) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := 2 * time.Second
	if cfg != nil && cfg.Poller.Interval > 0 {
		interval = time.Duration(cfg.Poller.Interval) * time.Second
	}
	return &Poller{
		store:    store,
		engine:   eng,
		logger:   logging.ComponentLogger(logger, "poller", logging.ComponentOverrides(cfg)),
		interval: interval,
		samplers: make(map[int64]*logging.ProgressSampler),
	}
}

// SetKick registers the scheduler kick fired when completions free slots.
// Must be set before Run.
func (p *Poller) SetKick(kick func()) {
	if p == nil {
		return
	}
	p.kick = kick
}

// SetCompleted registers the hook that receives newly completed record ids.
// The daemon wires it to the import coordinator when automatic import is
// enabled. Must be set before Run.
func (p *Poller) SetCompleted(hook func(int64)) {
	if p == nil {
		return
	}
	p.completed = hook
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one sampling pass and returns the ids completed by it. It is
// not safe for concurrent use; Run is the only production caller.
func (p *Poller) Tick(ctx context.Context) []int64 {
	ids := p.store.ActiveIDs()
	samples := make(map[int64]records.ProgressUpdate, len(ids))
	for _, id := range ids {
		progress, known, err := p.engine.Progress(ctx, id)
		if err != nil {
			p.logger.Warn("progress query failed",
				logging.Int64(logging.FieldRecordID, id),
				logging.String(logging.FieldEventType, "progress_query_failed"),
				logging.Error(err))
			continue
		}
		if !known {
			// No session for this record (restart demotion window). Leave
			// the record as the snapshot restored it.
			continue
		}
		update := toUpdate(progress)
		samples[id] = update
		p.logProgress(id, update)
	}

	completed := p.store.ApplyProgress(samples)
	for _, id := range completed {
		delete(p.samplers, id)
		p.logger.Info("transfer completed",
			logging.Int64(logging.FieldRecordID, id),
			logging.String(logging.FieldEventType, "transfer_completed"))
		if p.completed != nil {
			p.completed(id)
		}
	}
	if len(completed) > 0 && p.kick != nil {
		p.kick()
	}

	p.pruneSamplers(ids)
	return completed
}

// toUpdate derives percent and ETA from an engine sample. ETA is null when
// the rate is zero or the transfer is complete.
func toUpdate(progress engine.Progress) records.ProgressUpdate {
	update := records.ProgressUpdate{
		TotalBytes:     progress.TotalBytes,
		CompletedBytes: progress.CompletedBytes,
		DownloadRate:   progress.DownloadRate,
		UploadRate:     progress.UploadRate,
		Peers:          progress.Peers,
		Seeds:          progress.Seeds,
	}
	switch {
	case progress.Complete:
		update.Percent = 100
	case progress.TotalBytes > 0:
		update.Percent = float64(progress.CompletedBytes) / float64(progress.TotalBytes) * 100
	}
	if !progress.Complete && progress.DownloadRate > 0 && progress.TotalBytes > progress.CompletedBytes {
		eta := int64(float64(progress.TotalBytes-progress.CompletedBytes) / progress.DownloadRate)
		update.ETASeconds = &eta
	}
	return update
}

func (p *Poller) logProgress(id int64, update records.ProgressUpdate) {
	sampler := p.samplers[id]
	if sampler == nil {
		sampler = logging.NewProgressSampler(0)
		p.samplers[id] = sampler
	}
	if !sampler.ShouldLog(update.Percent, "transfer", "") {
		return
	}

	attrs := []logging.Attr{
		logging.Int64(logging.FieldRecordID, id),
		logging.String(logging.FieldProgressStage, "transfer"),
		logging.Float64(logging.FieldProgressPercent, update.Percent),
		logging.Int64("completed_bytes", update.CompletedBytes),
		logging.Int64("total_bytes", update.TotalBytes),
		logging.Float64("download_rate", update.DownloadRate),
		logging.Int("peers", update.Peers),
		logging.Int("seeds", update.Seeds),
	}
	if update.ETASeconds != nil {
		attrs = append(attrs, logging.Duration(logging.FieldProgressETA, time.Duration(*update.ETASeconds)*time.Second))
	}
	p.logger.Info("transfer progress", logging.Args(attrs...)...)
}

func (p *Poller) pruneSamplers(activeIDs []int64) {
	if len(p.samplers) == 0 {
		return
	}
	live := make(map[int64]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		live[id] = struct{}{}
	}
	for id := range p.samplers {
		if _, ok := live[id]; !ok {
			delete(p.samplers, id)
		}
	}
}
