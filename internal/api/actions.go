package api

import (
	"context"

	"capstan/internal/records"
)

// DownloadActionService captures the per-download operations needed by batch
// cancel/import workflows.
type DownloadActionService interface {
	Describe(ctx context.Context, id int64) (*Download, error)
	Cancel(ctx context.Context, id int64, deleteFiles bool) error
	Import(ctx context.Context, id int64) error
}

type CancelOutcome string

const (
	CancelOutcomeCancelled CancelOutcome = "cancelled"
	CancelOutcomeNotFound  CancelOutcome = "not_found"
)

type CancelItemResult struct {
	ID          int64         `json:"id"`
	Outcome     CancelOutcome `json:"outcome"`
	PriorStatus string        `json:"prior_status,omitempty"`
}

type CancelItemsResult struct {
	CancelledCount int64              `json:"cancelled_count"`
	Items          []CancelItemResult `json:"items"`
}

type ImportOutcome string

const (
	ImportOutcomeQueued       ImportOutcome = "queued"
	ImportOutcomeNotFound     ImportOutcome = "not_found"
	ImportOutcomeNotCompleted ImportOutcome = "not_completed"
)

type ImportItemResult struct {
	ID      int64         `json:"id"`
	Outcome ImportOutcome `json:"outcome"`
	Status  string        `json:"status,omitempty"`
}

type ImportItemsResult struct {
	QueuedCount int64              `json:"queued_count"`
	Items       []ImportItemResult `json:"items"`
}

// CancelDownloadsByID cancels each id in turn, reporting unknown ids without
// failing the batch. Cancel is idempotent, so reported prior status is
// advisory only.
func CancelDownloadsByID(ctx context.Context, service DownloadActionService, ids []int64, deleteFiles bool) (CancelItemsResult, error) {
	result := CancelItemsResult{Items: make([]CancelItemResult, 0, len(ids))}
	for _, id := range ids {
		download, err := service.Describe(ctx, id)
		if err != nil {
			return CancelItemsResult{}, err
		}
		if download == nil {
			result.Items = append(result.Items, CancelItemResult{ID: id, Outcome: CancelOutcomeNotFound})
			continue
		}
		if err := service.Cancel(ctx, id, deleteFiles); err != nil {
			return CancelItemsResult{}, err
		}
		result.CancelledCount++
		result.Items = append(result.Items, CancelItemResult{ID: id, Outcome: CancelOutcomeCancelled, PriorStatus: download.Status})
	}
	return result, nil
}

// ImportDownloadsByID queues manual imports for completed downloads only,
// reporting the actual status for everything else.
func ImportDownloadsByID(ctx context.Context, service DownloadActionService, ids []int64) (ImportItemsResult, error) {
	result := ImportItemsResult{Items: make([]ImportItemResult, 0, len(ids))}
	for _, id := range ids {
		download, err := service.Describe(ctx, id)
		if err != nil {
			return ImportItemsResult{}, err
		}
		if download == nil {
			result.Items = append(result.Items, ImportItemResult{ID: id, Outcome: ImportOutcomeNotFound})
			continue
		}
		if status, ok := records.ParseStatus(download.Status); !ok || status != records.StatusCompleted {
			result.Items = append(result.Items, ImportItemResult{ID: id, Outcome: ImportOutcomeNotCompleted, Status: download.Status})
			continue
		}
		if err := service.Import(ctx, id); err != nil {
			return ImportItemsResult{}, err
		}
		result.QueuedCount++
		result.Items = append(result.Items, ImportItemResult{ID: id, Outcome: ImportOutcomeQueued, Status: download.Status})
	}
	return result, nil
}
