package recordaccess

import (
	"context"
	"errors"
	"log/slog"

	"capstan/internal/api"
	"capstan/internal/history"
	"capstan/internal/ipc"
	"capstan/internal/logging"
	"capstan/internal/records"
	"capstan/internal/services"
)

// Access provides download record operations regardless of IPC or direct
// snapshot backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Download, error)
	Describe(ctx context.Context, id int64) (*api.Download, error)
	Cancel(ctx context.Context, ids []int64, deleteFiles bool) (api.CancelItemsResult, error)
	History(ctx context.Context, limit int, outcomes []string) ([]api.HistoryEntry, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by the snapshot store directly.
// The history store is optional; without it cancels skip archiving and
// History returns an error.
func NewStoreAccess(store *records.Store, hist *history.Store, logger *slog.Logger) Access {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &storeAccess{
		store:   store,
		history: hist,
		service: api.NewDownloadService(store),
		logger:  logger,
	}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.Stats, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string) ([]api.Download, error) {
	resp, err := a.client.DownloadList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Downloads, nil
}

func (a *ipcAccess) Describe(ctx context.Context, id int64) (*api.Download, error) {
	return a.client.Describe(ctx, id)
}

func (a *ipcAccess) Cancel(ctx context.Context, ids []int64, deleteFiles bool) (api.CancelItemsResult, error) {
	return api.CancelDownloadsByID(ctx, a.client, ids, deleteFiles)
}

func (a *ipcAccess) History(_ context.Context, limit int, outcomes []string) ([]api.HistoryEntry, error) {
	resp, err := a.client.HistoryList(limit, outcomes)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

type storeAccess struct {
	store   *records.Store
	history *history.Store
	service *api.DownloadService
	logger  *slog.Logger
}

func (a *storeAccess) Stats(_ context.Context) (map[string]int, error) {
	return a.service.Stats(), nil
}

func (a *storeAccess) List(_ context.Context, statuses []string) ([]api.Download, error) {
	var filters []records.Status
	for _, s := range statuses {
		if parsed, ok := records.ParseStatus(s); ok {
			filters = append(filters, parsed)
		}
	}
	return a.service.List(filters...), nil
}

func (a *storeAccess) Describe(_ context.Context, id int64) (*api.Download, error) {
	return a.service.Describe(id)
}

func (a *storeAccess) Cancel(ctx context.Context, ids []int64, deleteFiles bool) (api.CancelItemsResult, error) {
	result := api.CancelItemsResult{Items: make([]api.CancelItemResult, 0, len(ids))}
	for _, id := range ids {
		record, err := a.store.Get(id)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				result.Items = append(result.Items, api.CancelItemResult{ID: id, Outcome: api.CancelOutcomeNotFound})
				continue
			}
			return api.CancelItemsResult{}, err
		}
		if err := a.store.Cancel(ctx, id, deleteFiles); err != nil {
			return api.CancelItemsResult{}, err
		}
		a.archiveCancelled(ctx, record)
		result.CancelledCount++
		result.Items = append(result.Items, api.CancelItemResult{
			ID:          id,
			Outcome:     api.CancelOutcomeCancelled,
			PriorStatus: string(record.Status),
		})
	}
	return result, nil
}

func (a *storeAccess) archiveCancelled(ctx context.Context, record *records.DownloadRecord) {
	if a.history == nil {
		return
	}
	entry := history.Entry{
		RecordID:     record.ID,
		Source:       record.Source,
		DisplayName:  record.DisplayName,
		Owner:        record.Owner,
		Outcome:      history.OutcomeCancelled,
		TotalBytes:   record.TotalBytes,
		ErrorMessage: record.ErrorMessage,
		CreatedAt:    record.CreatedAt,
	}
	if err := a.history.Record(ctx, entry); err != nil {
		a.logger.Warn("history write failed",
			logging.Int64(logging.FieldRecordID, record.ID),
			logging.String(logging.FieldEventType, "history_write_failed"),
			logging.Error(err))
	}
}

func (a *storeAccess) History(ctx context.Context, limit int, outcomes []string) ([]api.HistoryEntry, error) {
	if a.history == nil {
		return nil, errors.New("history archive unavailable")
	}
	var filters []history.Outcome
	for _, o := range outcomes {
		if parsed, ok := history.ParseOutcome(o); ok {
			filters = append(filters, parsed)
		}
	}
	entries, err := a.history.List(ctx, limit, filters...)
	if err != nil {
		return nil, err
	}
	return api.FromHistoryEntries(entries), nil
}
