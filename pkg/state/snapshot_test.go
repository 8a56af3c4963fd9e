package state

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

func TestSnapshotRoundTrip(t *testing.T) {
	record := engine.NewStateRecord()
	record.Serial = 3
	record.Resources["compute.instance/server"] = engine.ResourceState{
		Type:      engine.TypeComputeInstance,
		Name:      "server",
		Status:    engine.StatusUpdated,
		Inputs:    map[string]any{"region": "us-east"},
		Outputs:   map[string]any{"ipv4": "203.0.113.7"},
		AppliedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	record.Resources["dns.recordset/apex"] = engine.ResourceState{
		Type:      engine.TypeDNSRecordSet,
		Name:      "apex",
		Status:    engine.StatusUpdated,
		DependsOn: []string{"compute.instance/server"},
		AppliedAt: time.Date(2026, 8, 1, 12, 1, 0, 0, time.UTC),
	}

	doc, err := Export(record)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	got, err := Import(doc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got.Serial != 3 {
		t.Errorf("serial = %d, want 3", got.Serial)
	}
	if len(got.Resources) != 2 {
		t.Fatalf("resources = %d, want 2", len(got.Resources))
	}
	server, ok := got.Resource("compute.instance/server")
	if !ok || server.Outputs["ipv4"] != "203.0.113.7" {
		t.Errorf("server = %+v", server)
	}
	apex, ok := got.Resource("dns.recordset/apex")
	if !ok || len(apex.DependsOn) != 1 {
		t.Errorf("apex = %+v", apex)
	}
}

func TestImportIgnoresUnknownFields(t *testing.T) {
	doc := `
version: 1
serial: 5
future_field: something
resources:
  - id: compute.instance/server
    type: compute.instance
    name: server
    status: updated
    applied_at: 2026-08-01T12:00:00Z
    some_new_field: 42
`
	record, err := Import([]byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if record.Serial != 5 {
		t.Errorf("serial = %d, want 5", record.Serial)
	}
	if _, ok := record.Resource("compute.instance/server"); !ok {
		t.Error("resource missing")
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	_, err := Import([]byte("version: 99\nserial: 0\n"))
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("Import = %v, want version error", err)
	}
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	_, err := Import([]byte("{not yaml"))
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("Import = %v, want CorruptError", err)
	}
}
