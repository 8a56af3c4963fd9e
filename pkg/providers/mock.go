package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// MockAdapter is an in-memory adapter for exercising the engine without a
// cloud account. Created objects live in a map keyed by resource identity;
// outputs are deterministic from the inputs.
type MockAdapter struct {
	mu      sync.Mutex
	next    int
	objects map[string]map[string]any

	// FailCreates makes every create fail permanently. For exercising
	// partial-failure paths.
	FailCreates bool
}

// NewMockAdapter creates an empty mock adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{objects: make(map[string]map[string]any)}
}

// RegisterMockAdapters binds one shared mock adapter to every resource
// type and returns it.
func RegisterMockAdapters(reg *Registry) *MockAdapter {
	mock := NewMockAdapter()
	for _, t := range []engine.ResourceType{
		engine.TypeComputeInstance,
		engine.TypeDNSRecordSet,
		engine.TypeProxyRouteSet,
		engine.TypeCertificate,
	} {
		reg.Register(t, mock)
	}
	return mock
}

func (m *MockAdapter) Create(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreates {
		return nil, engine.NewPermanentError("mock: creates disabled", nil).WithResource(req.ResourceID())
	}

	m.next++
	outputs := map[string]any{
		"id": fmt.Sprintf("mock-%d", m.next),
	}
	switch req.Type {
	case engine.TypeComputeInstance:
		outputs["ipv4"] = fmt.Sprintf("192.0.2.%d", m.next)
		outputs["status"] = "running"
	case engine.TypeDNSRecordSet:
		if domain, ok := req.Inputs["domain"].(string); ok {
			outputs["fqdn"] = domain
		}
	case engine.TypeProxyRouteSet:
		outputs["endpoint"] = fmt.Sprintf("198.51.100.%d", m.next)
	case engine.TypeCertificate:
		outputs["state"] = "verified"
	}

	m.objects[req.ResourceID()] = outputs
	return &engine.AdapterResult{Outputs: outputs}, nil
}

func (m *MockAdapter) Update(ctx context.Context, req engine.AdapterRequest) (*engine.AdapterResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outputs, ok := m.objects[req.ResourceID()]
	if !ok {
		return nil, engine.NewPermanentError("mock: update of unknown object", nil).WithResource(req.ResourceID())
	}
	return &engine.AdapterResult{Outputs: outputs}, nil
}

func (m *MockAdapter) Delete(ctx context.Context, req engine.AdapterRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, req.ResourceID())
	return nil
}

// Live returns the number of objects the mock currently holds.
func (m *MockAdapter) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
