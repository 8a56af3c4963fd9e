package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := Open(context.Background(), Config{Path: path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleResource(name string) engine.ResourceState {
	return engine.ResourceState{
		Type:   engine.TypeComputeInstance,
		Name:   name,
		Status: engine.StatusUpdated,
		Inputs: map[string]any{"region": "us-east", "size": "small"},
		Outputs: map[string]any{
			"id":   "lin-42",
			"ipv4": "203.0.113.7",
		},
		DependsOn: []string{"dns.recordset/apex"},
		AppliedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestLoadEmptyDatabase(t *testing.T) {
	store := openTestStore(t)

	record, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.Serial != 0 {
		t.Errorf("serial = %d, want 0", record.Serial)
	}
	if len(record.Resources) != 0 {
		t.Errorf("resources = %v, want empty", record.Resources)
	}
}

func TestCommitAndReload(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rs := sampleResource("server")
	if err := store.CommitResource(ctx, rs); err != nil {
		t.Fatalf("CommitResource: %v", err)
	}

	record, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := record.Resource("compute.instance/server")
	if !ok {
		t.Fatal("committed resource missing after reload")
	}
	if got.Status != engine.StatusUpdated {
		t.Errorf("status = %s", got.Status)
	}
	if got.Outputs["ipv4"] != "203.0.113.7" {
		t.Errorf("outputs = %v", got.Outputs)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != "dns.recordset/apex" {
		t.Errorf("depends_on = %v", got.DependsOn)
	}
}

func TestCommitIsUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rs := sampleResource("server")
	if err := store.CommitResource(ctx, rs); err != nil {
		t.Fatalf("CommitResource: %v", err)
	}
	rs.Status = engine.StatusDeleted
	rs.Outputs = nil
	if err := store.CommitResource(ctx, rs); err != nil {
		t.Fatalf("CommitResource: %v", err)
	}

	record, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, _ := record.Resource("compute.instance/server")
	if got.Status != engine.StatusDeleted {
		t.Errorf("status = %s, want deleted", got.Status)
	}
	if len(record.Resources) != 1 {
		t.Errorf("rows = %d, want 1", len(record.Resources))
	}
}

func TestFinalizeBumpsSerialAndRecordsRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Finalize(ctx, "run-1"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := store.Finalize(ctx, "run-2"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	record, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if record.Serial != 2 {
		t.Errorf("serial = %d, want 2", record.Serial)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Errorf("runs = %+v, want run-2 first", runs)
	}
}

func TestLockExcludesOtherOwners(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Lock(ctx, "run-a"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	// Re-entrant for the same owner.
	if err := store.Lock(ctx, "run-a"); err != nil {
		t.Fatalf("Lock (same owner): %v", err)
	}

	err := store.Lock(ctx, "run-b")
	if !errors.Is(err, engine.ErrConcurrentApply) {
		t.Fatalf("Lock (other owner) = %v, want ErrConcurrentApply", err)
	}

	if err := store.Unlock(ctx, "run-a"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := store.Lock(ctx, "run-b"); err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
}

func TestUnlockByNonOwnerFails(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Lock(ctx, "run-a"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := store.Unlock(ctx, "run-b"); err == nil {
		t.Fatal("Unlock by non-owner succeeded")
	}
	if err := store.ForceUnlock(ctx); err != nil {
		t.Fatalf("ForceUnlock: %v", err)
	}
	if err := store.Lock(ctx, "run-b"); err != nil {
		t.Fatalf("Lock after force-unlock: %v", err)
	}
}

func TestEventTimeline(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Append(ctx, engine.Event{
		RunID: "run-1", Resource: "compute.instance/server",
		Level: "info", Message: "create starting", Timestamp: time.Now().UTC(),
	})
	store.Append(ctx, engine.Event{
		RunID: "run-1", Resource: "compute.instance/server",
		Level: "info", Message: "create succeeded", Timestamp: time.Now().UTC(),
	})
	store.Append(ctx, engine.Event{
		RunID: "run-2", Level: "info", Message: "apply starting", Timestamp: time.Now().UTC(),
	})

	events, err := store.Events(ctx, "run-1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Message != "create starting" || events[1].Message != "create succeeded" {
		t.Errorf("timeline out of order: %+v", events)
	}
}

func TestReplaceSwapsRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CommitResource(ctx, sampleResource("old")); err != nil {
		t.Fatalf("CommitResource: %v", err)
	}

	record := engine.NewStateRecord()
	record.Serial = 7
	rs := sampleResource("new")
	record.Resources[rs.ID()] = rs

	if err := store.Replace(ctx, record); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Serial != 7 {
		t.Errorf("serial = %d, want 7", got.Serial)
	}
	if _, ok := got.Resource("compute.instance/old"); ok {
		t.Error("replaced record still holds the old resource")
	}
	if _, ok := got.Resource("compute.instance/new"); !ok {
		t.Error("replaced record is missing the imported resource")
	}
}
