package engine

import (
	"reflect"
	"testing"
	"time"
)

// appliedState simulates a clean prior apply of the given resources: every
// resource gets committed redacted inputs, the supplied outputs, and its
// recorded dependency edges.
func appliedState(t *testing.T, g *Graph, outputs map[string]map[string]any) *StateRecord {
	t.Helper()
	state := NewStateRecord()
	state.Serial = 1

	lookup := func(name string) (map[string]any, map[string]any, bool) {
		out, ok := outputs[name]
		return out, out, ok
	}
	for _, name := range g.TopologicalOrder() {
		res, _ := g.Resource(name)
		_, redacted, err := resolveInputs(res.Inputs(), lookup)
		if err != nil {
			t.Fatalf("resolving %s: %v", res.ID(), err)
		}
		deps := make([]string, 0)
		for _, dep := range g.Dependencies(name) {
			depRes, _ := g.Resource(dep)
			deps = append(deps, depRes.ID())
		}
		state.Resources[res.ID()] = ResourceState{
			Type:      res.Type(),
			Name:      res.Name(),
			Status:    StatusUpdated,
			Inputs:    redacted,
			Outputs:   outputs[name],
			DependsOn: deps,
			AppliedAt: time.Now().UTC(),
		}
	}
	return state
}

func recordStack(t *testing.T, recordType string) []Resource {
	t.Helper()
	server := mustResource(t, TypeComputeInstance, "server", map[string]Value{
		"region": String("us-east"),
		"size":   String("small"),
	})
	dns := mustResource(t, TypeDNSRecordSet, "apex", map[string]Value{
		"domain":      String("example.dev"),
		"record_type": String(recordType),
		"target":      Ref("server", "ipv4"),
	})
	return []Resource{server, dns}
}

func TestDiffEmptyStateCreatesEverything(t *testing.T) {
	g, err := BuildGraph(recordStack(t, "A"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	plan, err := Diff(g, NewStateRecord())
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if plan.Summary.ToCreate != 2 || plan.Summary.ToUpdate != 0 || plan.Summary.ToDelete != 0 {
		t.Fatalf("summary = %+v, want 2 creates", plan.Summary)
	}

	createDNS, ok := plan.Step("create dns.recordset/apex")
	if !ok {
		t.Fatal("plan is missing the DNS create step")
	}
	wantDeps := []string{"create compute.instance/server"}
	if !reflect.DeepEqual(createDNS.DependsOn, wantDeps) {
		t.Errorf("DNS create depends on %v, want %v", createDNS.DependsOn, wantDeps)
	}
}

func TestDiffUnchangedIsAllNoops(t *testing.T) {
	g, err := BuildGraph(recordStack(t, "A"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	state := appliedState(t, g, map[string]map[string]any{
		"server": {"id": "lin-123", "ipv4": "203.0.113.7"},
		"apex":   {"fqdn": "example.dev"},
	})

	plan, err := Diff(g, state)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if plan.HasChanges() {
		t.Fatalf("plan has changes: %+v", plan.Summary)
	}
	if plan.Summary.Unchanged != 2 {
		t.Errorf("unchanged = %d, want 2", plan.Summary.Unchanged)
	}
	for _, step := range plan.Steps {
		if step.Op != OpNoop {
			t.Errorf("step %s has op %s, want no-op", step.ID, step.Op)
		}
	}
}

func TestDiffReplacementDeleteBeforeCreate(t *testing.T) {
	// The applied record set was type A; the desired one is CNAME. Record
	// sets cannot update in place and their names are uniquely constrained,
	// so the old set goes first.
	gApplied, err := BuildGraph(recordStack(t, "A"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	state := appliedState(t, gApplied, map[string]map[string]any{
		"server": {"id": "lin-123", "ipv4": "203.0.113.7"},
		"apex":   {"fqdn": "example.dev"},
	})

	gDesired, err := BuildGraph(recordStack(t, "CNAME"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	plan, err := Diff(gDesired, state)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if plan.Summary.ToReplace != 1 {
		t.Fatalf("summary = %+v, want 1 replace", plan.Summary)
	}
	if plan.Summary.Unchanged != 1 {
		t.Errorf("summary = %+v, want the instance unchanged", plan.Summary)
	}

	del, ok := plan.Step("delete dns.recordset/apex")
	if !ok {
		t.Fatal("plan is missing the delete half")
	}
	create, ok := plan.Step("create dns.recordset/apex")
	if !ok {
		t.Fatal("plan is missing the create half")
	}
	if !del.Replacement || !create.Replacement {
		t.Error("replacement halves are not flagged")
	}
	if !containsString(create.DependsOn, del.ID) {
		t.Errorf("create depends on %v, want it to wait for %q", create.DependsOn, del.ID)
	}

	delIdx, createIdx := stepIndex(plan, del.ID), stepIndex(plan, create.ID)
	if delIdx > createIdx {
		t.Errorf("delete at %d comes after create at %d", delIdx, createIdx)
	}
}

func TestDiffDependencyChangePropagates(t *testing.T) {
	gApplied, err := BuildGraph(recordStack(t, "A"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	state := appliedState(t, gApplied, map[string]map[string]any{
		"server": {"id": "lin-123", "ipv4": "203.0.113.7"},
		"apex":   {"fqdn": "example.dev"},
	})

	// Resize the instance. Its ipv4 output may change, so the record set
	// that references it cannot be assumed unchanged.
	server := mustResource(t, TypeComputeInstance, "server", map[string]Value{
		"region": String("us-east"),
		"size":   String("large"),
	})
	dns := mustResource(t, TypeDNSRecordSet, "apex", map[string]Value{
		"domain":      String("example.dev"),
		"record_type": String("A"),
		"target":      Ref("server", "ipv4"),
	})
	gDesired, err := BuildGraph([]Resource{server, dns})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	plan, err := Diff(gDesired, state)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	update, ok := plan.Step("update compute.instance/server")
	if !ok {
		t.Fatal("plan is missing the instance update")
	}
	if update.Reason != "inputs changed" {
		t.Errorf("update reason = %q", update.Reason)
	}

	// Record sets do not update in place, so the forced change is a
	// replacement ordered after the instance update.
	create, ok := plan.Step("create dns.recordset/apex")
	if !ok {
		t.Fatalf("plan steps %v are missing the forced record set create", stepIDs(plan))
	}
	if !containsString(create.DependsOn, update.ID) {
		t.Errorf("record set create depends on %v, want %q", create.DependsOn, update.ID)
	}
	if plan.Summary.ToUpdate != 1 || plan.Summary.ToReplace != 1 {
		t.Errorf("summary = %+v, want 1 update and 1 replace", plan.Summary)
	}
}

func TestDiffRemovedResourcesDeleteDependentsFirst(t *testing.T) {
	gApplied, err := BuildGraph(recordStack(t, "A"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	state := appliedState(t, gApplied, map[string]map[string]any{
		"server": {"id": "lin-123", "ipv4": "203.0.113.7"},
		"apex":   {"fqdn": "example.dev"},
	})

	// Everything left the configuration.
	gDesired, err := BuildGraph(nil)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	plan, err := Diff(gDesired, state)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if plan.Summary.ToDelete != 2 {
		t.Fatalf("summary = %+v, want 2 deletes", plan.Summary)
	}
	delServer, ok := plan.Step("delete compute.instance/server")
	if !ok {
		t.Fatal("plan is missing the instance delete")
	}
	// The record set referenced the instance, so the instance outlives it.
	if !containsString(delServer.DependsOn, "delete dns.recordset/apex") {
		t.Errorf("instance delete depends on %v, want the record set delete first", delServer.DependsOn)
	}
}

// certWithRoutes declares a certificate and a route set referencing its ID.
func certWithRoutes(t *testing.T, domains string) []Resource {
	t.Helper()
	cert := mustResource(t, TypeCertificate, "cert", map[string]Value{
		"domains": String(domains),
	})
	routes := mustResource(t, TypeProxyRouteSet, "routes", map[string]Value{
		"certificate": Ref("cert", "id"),
	})
	return []Resource{cert, routes}
}

func TestDiffReplacementDeleteWaitsForDependents(t *testing.T) {
	gApplied, err := BuildGraph(certWithRoutes(t, "example.dev"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	state := appliedState(t, gApplied, map[string]map[string]any{
		"cert":   {"id": "cert-1"},
		"routes": {"id": "lb-1"},
	})

	// Changing the name set replaces the certificate; the route set still
	// references it and re-points in the same plan.
	gDesired, err := BuildGraph(certWithRoutes(t, "www.example.dev"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	plan, err := Diff(gDesired, state)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if plan.Summary.ToReplace != 1 || plan.Summary.ToUpdate != 1 {
		t.Fatalf("summary = %+v, want 1 replace and 1 update", plan.Summary)
	}
	del, ok := plan.Step("delete tls.certificate/cert")
	if !ok {
		t.Fatal("plan is missing the old certificate delete")
	}
	if !del.Replacement {
		t.Error("certificate delete is not marked as a replacement")
	}
	// The old certificate outlives both its successor and the route set
	// update that stops referencing it.
	wantDeps := []string{"create tls.certificate/cert", "update proxy.routeset/routes"}
	if !reflect.DeepEqual(del.DependsOn, wantDeps) {
		t.Errorf("certificate delete depends on %v, want %v", del.DependsOn, wantDeps)
	}
}

func TestDiffRemovedResourceWaitsForFormerDependents(t *testing.T) {
	gApplied, err := BuildGraph(certWithRoutes(t, "example.dev"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	state := appliedState(t, gApplied, map[string]map[string]any{
		"cert":   {"id": "cert-1"},
		"routes": {"id": "lb-1"},
	})

	// The certificate left the configuration and the route set no longer
	// references it.
	routes := mustResource(t, TypeProxyRouteSet, "routes", map[string]Value{
		"certificate": String("external-cert"),
	})
	gDesired, err := BuildGraph([]Resource{routes})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	plan, err := Diff(gDesired, state)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	del, ok := plan.Step("delete tls.certificate/cert")
	if !ok {
		t.Fatal("plan is missing the certificate delete")
	}
	if !containsString(del.DependsOn, "update proxy.routeset/routes") {
		t.Errorf("certificate delete depends on %v, want the route set update first", del.DependsOn)
	}
}

func TestDiffFailedCreateReplans(t *testing.T) {
	g, err := BuildGraph(recordStack(t, "A"))
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	state := NewStateRecord()
	state.Resources["compute.instance/server"] = ResourceState{
		Type:      TypeComputeInstance,
		Name:      "server",
		Status:    StatusFailed,
		AppliedAt: time.Now().UTC(),
	}

	plan, err := Diff(g, state)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	create, ok := plan.Step("create compute.instance/server")
	if !ok {
		t.Fatalf("plan steps %v are missing the re-create", stepIDs(plan))
	}
	if create.Reason != "previous create failed" {
		t.Errorf("reason = %q", create.Reason)
	}
}

func TestDiffIsDeterministic(t *testing.T) {
	build := func() *Plan {
		g, err := BuildGraph(webStack(t))
		if err != nil {
			t.Fatalf("BuildGraph: %v", err)
		}
		state := appliedState(t, g, map[string]map[string]any{
			"server": {"id": "lin-123", "ipv4": "203.0.113.7"},
			"apex":   {"fqdn": "example.dev"},
		})
		// Drop one resource from state so the plan mixes creates, no-ops,
		// and forced changes.
		delete(state.Resources, "dns.recordset/apex")
		plan, err := Diff(g, state)
		if err != nil {
			t.Fatalf("Diff: %v", err)
		}
		return plan
	}

	first, second := build(), build()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("plans differ:\n%v\nvs\n%v", stepIDs(first), stepIDs(second))
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func stepIndex(plan *Plan, id string) int {
	for i, step := range plan.Steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

func stepIDs(plan *Plan) []string {
	ids := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		ids = append(ids, step.ID)
	}
	return ids
}
