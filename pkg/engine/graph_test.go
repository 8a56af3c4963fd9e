package engine

import (
	"errors"
	"reflect"
	"testing"
)

func mustResource(t *testing.T, typ ResourceType, name string, inputs map[string]Value) Resource {
	t.Helper()
	res, err := NewResource(typ, name, inputs)
	if err != nil {
		t.Fatalf("NewResource(%s/%s): %v", typ, name, err)
	}
	return res
}

func webStack(t *testing.T) []Resource {
	t.Helper()
	server := mustResource(t, TypeComputeInstance, "server", map[string]Value{
		"region": String("us-east"),
		"size":   String("small"),
	})
	dns := mustResource(t, TypeDNSRecordSet, "apex", map[string]Value{
		"domain": String("example.dev"),
		"target": Ref("server", "ipv4"),
	})
	routes := mustResource(t, TypeProxyRouteSet, "routes", map[string]Value{
		"instance": Ref("server", "id"),
	})
	cert := mustResource(t, TypeCertificate, "cert", map[string]Value{
		"domain":  String("example.dev"),
		"records": Ref("apex", "fqdn"),
	})
	return []Resource{server, dns, routes, cert}
}

func TestBuildGraphTopologicalOrder(t *testing.T) {
	g, err := BuildGraph(webStack(t))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	order := g.TopologicalOrder()
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for _, edge := range [][2]string{
		{"server", "apex"},
		{"server", "routes"},
		{"apex", "cert"},
	} {
		if pos[edge[0]] >= pos[edge[1]] {
			t.Errorf("order %v: %q must come before %q", order, edge[0], edge[1])
		}
	}

	if got := g.Level("server"); got != 0 {
		t.Errorf("Level(server) = %d, want 0", got)
	}
	if got := g.Level("cert"); got != 2 {
		t.Errorf("Level(cert) = %d, want 2", got)
	}
}

func TestBuildGraphOrderIsStable(t *testing.T) {
	first, err := BuildGraph(webStack(t))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	second, err := BuildGraph(webStack(t))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if !reflect.DeepEqual(first.TopologicalOrder(), second.TopologicalOrder()) {
		t.Errorf("orders differ: %v vs %v", first.TopologicalOrder(), second.TopologicalOrder())
	}
}

func TestBuildGraphDuplicateName(t *testing.T) {
	a := mustResource(t, TypeComputeInstance, "dup", nil)
	b := mustResource(t, TypeDNSRecordSet, "dup", map[string]Value{"domain": String("x")})

	_, err := BuildGraph([]Resource{a, b})
	var ire *InvalidResourceError
	if !errors.As(err, &ire) {
		t.Fatalf("BuildGraph = %v, want InvalidResourceError", err)
	}
	if ire.Name != "dup" {
		t.Errorf("error names %q, want dup", ire.Name)
	}
}

func TestBuildGraphDanglingReference(t *testing.T) {
	dns := mustResource(t, TypeDNSRecordSet, "apex", map[string]Value{
		"target": Ref("ghost", "ipv4"),
	})
	_, err := BuildGraph([]Resource{dns})
	var ire *InvalidResourceError
	if !errors.As(err, &ire) {
		t.Fatalf("BuildGraph = %v, want InvalidResourceError", err)
	}
}

func TestBuildGraphCycle(t *testing.T) {
	a := mustResource(t, TypeComputeInstance, "a", map[string]Value{
		"peer": Ref("c", "out"),
	})
	b := mustResource(t, TypeProxyRouteSet, "b", map[string]Value{
		"peer": Ref("a", "out"),
	})
	c := mustResource(t, TypeProxyRouteSet, "c", map[string]Value{
		"peer": Ref("b", "out"),
	})

	_, err := BuildGraph([]Resource{a, b, c})
	var cde *CyclicDependencyError
	if !errors.As(err, &cde) {
		t.Fatalf("BuildGraph = %v, want CyclicDependencyError", err)
	}
	if len(cde.Path) < 3 {
		t.Errorf("cycle path %v too short", cde.Path)
	}
	if cde.Path[0] != cde.Path[len(cde.Path)-1] {
		t.Errorf("cycle path %v does not close", cde.Path)
	}
}

func TestBuildGraphSelfReference(t *testing.T) {
	a := mustResource(t, TypeComputeInstance, "a", map[string]Value{
		"peer": Ref("a", "out"),
	})
	_, err := BuildGraph([]Resource{a})
	var cde *CyclicDependencyError
	if !errors.As(err, &cde) {
		t.Fatalf("BuildGraph = %v, want CyclicDependencyError", err)
	}
}

func TestGraphDependencyAccessors(t *testing.T) {
	g, err := BuildGraph(webStack(t))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	deps := g.Dependencies("apex")
	if !reflect.DeepEqual(deps, []string{"server"}) {
		t.Errorf("Dependencies(apex) = %v, want [server]", deps)
	}
	dependents := g.Dependents("server")
	if len(dependents) != 2 {
		t.Errorf("Dependents(server) = %v, want apex and routes", dependents)
	}
}
