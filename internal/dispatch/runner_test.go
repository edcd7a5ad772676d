package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/util"
)

func newRunnerTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(store.WithDSN(filepath.Join(t.TempDir(), "dispatch_test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateBatch(t *testing.T, s store.BatchRepo, contatos ...models.TriggerRequest) string {
	t.Helper()
	id := util.GenerateBatchID()
	b, items := BuildBatch(id, contatos)
	if err := s.CreateBatch(b, items); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	return id
}

// TestRunnerDrainsQueue verifies the runner claims, dispatches and settles
// every queued item.
func TestRunnerDrainsQueue(t *testing.T) {
	s := newRunnerTestStore(t)

	id := mustCreateBatch(t, s,
		models.TriggerRequest{Numero: "whatsapp:+5511966660001", Nome: "Ana"},
		models.TriggerRequest{Numero: "whatsapp:+5511966660002", Nome: "Bruno"},
	)

	var dispatched int32
	runner := NewRunner(s, func(ctx context.Context, item store.TriggerItem) (string, error) {
		atomic.AddInt32(&dispatched, 1)
		if item.Numero == "whatsapp:+5511966660002" {
			return "", errors.New("Twilio error 21211")
		}
		return "SM900", nil
	}, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go runner.Run(ctx)
	<-ctx.Done()

	if atomic.LoadInt32(&dispatched) != 2 {
		t.Errorf("Expected 2 dispatches, got %d", atomic.LoadInt32(&dispatched))
	}

	got, err := s.GetBatch(id)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if got.Status != store.BatchStatusDone {
		t.Errorf("Expected batch done, got %q", got.Status)
	}

	final, err := s.ListBatchItems(id)
	if err != nil {
		t.Fatalf("ListBatchItems failed: %v", err)
	}
	if final[0].Status != store.ItemStatusSent || final[0].Sid != "SM900" {
		t.Errorf("Expected first item sent with sid, got %+v", final[0])
	}
	if final[1].Status != store.ItemStatusFailed || final[1].Reason != "Twilio error 21211" {
		t.Errorf("Expected second item failed with reason, got %+v", final[1])
	}
}

// TestRunnerRestartRecovery simulates a crash mid-send and verifies the
// item is dispatched after restart.
func TestRunnerRestartRecovery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "restart_test.db")

	// Phase 1: claim the item (simulates being mid-send), then "crash".
	s1, err := store.NewSQLiteStore(store.WithDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 1) failed: %v", err)
	}

	id := mustCreateBatch(t, s1, models.TriggerRequest{Numero: "whatsapp:+5511977770001", Nome: "Ana"})
	claimed, err := s1.ClaimQueuedItems(time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ClaimQueuedItems failed: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("Expected 1 claimed item, got %d", len(claimed))
	}
	s1.Close()

	// Phase 2: reopen, recover, verify the item gets dispatched.
	s2, err := store.NewSQLiteStore(store.WithDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (phase 2) failed: %v", err)
	}
	defer s2.Close()

	var dispatched int32
	runner := NewRunner(s2, func(ctx context.Context, item store.TriggerItem) (string, error) {
		atomic.AddInt32(&dispatched, 1)
		return "SM901", nil
	}, 50*time.Millisecond)

	// A future threshold makes the phase 1 claim count as stale.
	runner.staleThreshold = -time.Minute
	if err := runner.RecoverStaleItems(); err != nil {
		t.Fatalf("RecoverStaleItems failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go runner.Run(ctx)
	<-ctx.Done()

	if atomic.LoadInt32(&dispatched) != 1 {
		t.Errorf("Expected 1 dispatch after recovery, got %d", atomic.LoadInt32(&dispatched))
	}

	got, err := s2.GetBatch(id)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if got.Status != store.BatchStatusDone {
		t.Errorf("Expected batch done after recovery, got %q", got.Status)
	}
}

// TestRunnerRequeuesStaleItemsWhileRunning wedges an item in running state
// and verifies the loop itself requeues and dispatches it, no restart
// involved.
func TestRunnerRequeuesStaleItemsWhileRunning(t *testing.T) {
	s := newRunnerTestStore(t)

	id := mustCreateBatch(t, s, models.TriggerRequest{Numero: "whatsapp:+5511955550001", Nome: "Ana"})
	claimed, err := s.ClaimQueuedItems(time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ClaimQueuedItems failed: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("Expected 1 claimed item, got %d", len(claimed))
	}

	var dispatched int32
	runner := NewRunner(s, func(ctx context.Context, item store.TriggerItem) (string, error) {
		atomic.AddInt32(&dispatched, 1)
		return "SM903", nil
	}, 50*time.Millisecond)

	// A future threshold makes the wedged claim count as stale right away.
	runner.staleThreshold = -time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go runner.Run(ctx)
	<-ctx.Done()

	if atomic.LoadInt32(&dispatched) != 1 {
		t.Errorf("Expected the wedged item requeued and dispatched, got %d dispatches", atomic.LoadInt32(&dispatched))
	}

	got, err := s.GetBatch(id)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if got.Status != store.BatchStatusDone || got.Pending != 0 {
		t.Errorf("Expected batch settled by in-loop recovery, got %+v", got)
	}
}

// TestRunnerWorkerPoolSettlesAll runs more items than workers through one
// poll cycle.
func TestRunnerWorkerPoolSettlesAll(t *testing.T) {
	s := store.NewInMemoryStore()

	contatos := make([]models.TriggerRequest, 8)
	for i := range contatos {
		contatos[i] = models.TriggerRequest{Numero: fmt.Sprintf("whatsapp:+5511988880%03d", i), Nome: "Teste"}
	}
	id := mustCreateBatch(t, s, contatos...)

	var dispatched int32
	runner := NewRunner(s, func(ctx context.Context, item store.TriggerItem) (string, error) {
		atomic.AddInt32(&dispatched, 1)
		return "SM902", nil
	}, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go runner.Run(ctx)
	<-ctx.Done()

	if got := atomic.LoadInt32(&dispatched); got != 8 {
		t.Errorf("Expected all 8 items dispatched, got %d", got)
	}
	batch, err := s.GetBatch(id)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if batch.Status != store.BatchStatusDone || batch.Pending != 0 {
		t.Errorf("Expected settled batch, got %+v", batch)
	}
}
