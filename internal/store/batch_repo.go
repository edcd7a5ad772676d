// Package store provides the BatchRepo interface and models for the durable
// batch-trigger queue.
package store

import (
	"time"
)

// BatchStatus tracks a trigger batch through its lifecycle.
type BatchStatus string

const (
	// BatchStatusQueued means no item has been claimed yet.
	BatchStatusQueued BatchStatus = "queued"
	// BatchStatusRunning means at least one item is in flight.
	BatchStatusRunning BatchStatus = "running"
	// BatchStatusDone means every item reached sent or failed.
	BatchStatusDone BatchStatus = "done"
)

// ItemStatus tracks one batch item.
type ItemStatus string

const (
	// ItemStatusQueued means the item awaits a worker.
	ItemStatusQueued ItemStatus = "queued"
	// ItemStatusRunning means a worker claimed the item.
	ItemStatusRunning ItemStatus = "running"
	// ItemStatusSent means the template was dispatched.
	ItemStatusSent ItemStatus = "sent"
	// ItemStatusFailed means the item failed; Reason carries the cause.
	ItemStatusFailed ItemStatus = "failed"
)

// TriggerBatch is one operator-submitted batch of first-contact triggers.
type TriggerBatch struct {
	ID        string      `json:"id"`
	Total     int         `json:"total"`
	Pending   int         `json:"pending"`
	Status    BatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TriggerItem is one entry of a batch, addressed by (BatchID, Idx) where
// Idx preserves the original input order.
type TriggerItem struct {
	BatchID   string     `json:"batch_id"`
	Idx       int        `json:"idx"`
	Numero    string     `json:"numero"`
	Nome      string     `json:"nome,omitempty"`
	Status    ItemStatus `json:"status"`
	Sid       string     `json:"sid,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BatchRepo defines the durable queue behind asynchronous batch triggering.
type BatchRepo interface {
	// CreateBatch stores a batch and all of its items in one shot. Items
	// may arrive pre-failed (missing number) and then never get claimed.
	CreateBatch(b TriggerBatch, items []TriggerItem) error

	// GetBatch retrieves a batch by id. Returns (nil, nil) when absent.
	GetBatch(id string) (*TriggerBatch, error)

	// ListBatchItems retrieves a batch's items ordered by Idx.
	ListBatchItems(batchID string) ([]TriggerItem, error)

	// ClaimQueuedItems atomically marks up to limit queued items as
	// running (setting locked_at) and returns them.
	ClaimQueuedItems(now time.Time, limit int) ([]TriggerItem, error)

	// CompleteItem marks an item sent with its provider sid and decrements
	// the batch's pending counter, closing the batch at zero.
	CompleteItem(batchID string, idx int, sid string) error

	// FailItem marks an item failed with a reason and decrements the
	// batch's pending counter, closing the batch at zero.
	FailItem(batchID string, idx int, reason string) error

	// RequeueStaleItems returns running items whose lock is older than
	// staleBefore to the queue, recovering from crashed workers.
	RequeueStaleItems(staleBefore time.Time) (int, error)
}
