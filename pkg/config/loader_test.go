package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

const sampleStack = `
name: "captura-prod"

resources: [
	{
		type: "compute.instance"
		name: "server"
		inputs: {
			region: "us-east"
			size:   "g6-nanode-1"
			bootstrap_token: {"$secret": "tok-123"}
		}
	},
	{
		type: "dns.recordset"
		name: "apex"
		inputs: {
			domain: "example.dev"
			ttl:    600
			target: {"$from": {resource: "server", output: "ipv4"}}
		}
	},
]
`

func writeStack(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stack.cue")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("writing stack: %v", err)
	}
	return path
}

func TestLoadStack(t *testing.T) {
	loader := NewLoader()
	stack, resources, err := loader.Load(writeStack(t, sampleStack))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if stack.Name != "captura-prod" {
		t.Errorf("stack name = %q", stack.Name)
	}
	if len(resources) != 2 {
		t.Fatalf("resources = %d, want 2", len(resources))
	}

	// Declaration order is preserved.
	if resources[0].Name() != "server" || resources[1].Name() != "apex" {
		t.Errorf("order = %s, %s", resources[0].Name(), resources[1].Name())
	}

	server := resources[0]
	if server.Type() != engine.TypeComputeInstance {
		t.Errorf("server type = %s", server.Type())
	}
	if !server.Inputs()["bootstrap_token"].IsSecret() {
		t.Error("bootstrap_token is not marked secret")
	}

	apex := resources[1]
	ref, ok := apex.Inputs()["target"].Reference()
	if !ok {
		t.Fatal("target did not decode as a reference")
	}
	if ref.Resource != "server" || ref.Output != "ipv4" {
		t.Errorf("reference = %+v", ref)
	}

	// The graph builder accepts the loaded set directly.
	if _, err := engine.BuildGraph(resources); err != nil {
		t.Errorf("BuildGraph: %v", err)
	}
}

func TestLoadRejectsUnknownType(t *testing.T) {
	doc := `
name: "x"
resources: [{type: "storage.bucket", name: "b", inputs: {}}]
`
	_, _, err := NewLoader().Load(writeStack(t, doc))
	if err == nil || !strings.Contains(err.Error(), "unknown resource type") {
		t.Fatalf("Load = %v, want unknown type error", err)
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	doc := `
name: "x"
resources: [
	{type: "compute.instance", name: "a", inputs: {region: "r"}},
	{type: "proxy.routeset", name: "a", inputs: {rules: ["web"]}},
]
`
	_, _, err := NewLoader().Load(writeStack(t, doc))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("Load = %v, want duplicate name error", err)
	}
}

func TestLoadRejectsEmptyStack(t *testing.T) {
	_, _, err := NewLoader().Load(writeStack(t, `name: "x"`))
	if err == nil {
		t.Fatal("Load succeeded, want validation error for missing resources")
	}
}

func TestLoadRejectsMalformedReference(t *testing.T) {
	doc := `
name: "x"
resources: [
	{
		type: "dns.recordset"
		name: "apex"
		inputs: {target: {"$from": {resource: "server"}}}
	},
]
`
	_, _, err := NewLoader().Load(writeStack(t, doc))
	if err == nil || !strings.Contains(err.Error(), "$from") {
		t.Fatalf("Load = %v, want $from error", err)
	}
}
