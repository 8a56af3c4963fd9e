package providers

import (
	"context"
	"testing"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

func TestMockAdapterLifecycle(t *testing.T) {
	reg := NewRegistry()
	mock := RegisterMockAdapters(reg)

	if _, ok := reg.Adapter(engine.TypeComputeInstance); !ok {
		t.Fatal("compute adapter not registered")
	}

	ctx := context.Background()
	req := engine.AdapterRequest{
		Type:   engine.TypeComputeInstance,
		Name:   "server",
		Inputs: map[string]any{"region": "us-east"},
	}

	result, err := mock.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.Outputs["ipv4"] == nil || result.Outputs["id"] == nil {
		t.Errorf("outputs = %v", result.Outputs)
	}
	if mock.Live() != 1 {
		t.Errorf("live = %d, want 1", mock.Live())
	}

	if _, err := mock.Update(ctx, req); err != nil {
		t.Errorf("Update: %v", err)
	}

	if err := mock.Delete(ctx, req); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mock.Live() != 0 {
		t.Errorf("live = %d, want 0", mock.Live())
	}

	// Deleting again is tolerated.
	if err := mock.Delete(ctx, req); err != nil {
		t.Errorf("repeat Delete: %v", err)
	}
}

func TestMockAdapterFailureMode(t *testing.T) {
	mock := NewMockAdapter()
	mock.FailCreates = true

	_, err := mock.Create(context.Background(), engine.AdapterRequest{
		Type: engine.TypeDNSRecordSet, Name: "apex",
	})
	if !engine.IsPermanent(err) {
		t.Fatalf("Create = %v, want permanent error", err)
	}
}
