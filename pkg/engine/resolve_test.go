package engine

import (
	"reflect"
	"strings"
	"testing"
)

func TestResolveInputsLiteralsAndReferences(t *testing.T) {
	inputs := map[string]Value{
		"domain": String("example.dev"),
		"ttl":    Int(300),
		"target": Ref("server", "ipv4"),
		"tags":   List(String("web"), String("prod")),
	}
	lookup := func(name string) (map[string]any, map[string]any, bool) {
		if name != "server" {
			return nil, nil, false
		}
		out := map[string]any{"ipv4": "203.0.113.7"}
		return out, out, true
	}

	plain, redacted, err := resolveInputs(inputs, lookup)
	if err != nil {
		t.Fatalf("resolveInputs: %v", err)
	}

	want := map[string]any{
		"domain": "example.dev",
		"ttl":    int64(300),
		"target": "203.0.113.7",
		"tags":   []any{"web", "prod"},
	}
	if !reflect.DeepEqual(plain, want) {
		t.Errorf("plain = %#v, want %#v", plain, want)
	}
	if !reflect.DeepEqual(redacted, want) {
		t.Errorf("redacted = %#v, want %#v", redacted, want)
	}
}

func TestResolveInputsSecretRedaction(t *testing.T) {
	inputs := map[string]Value{
		"token": Secret("porkbun-api-key"),
	}
	plain, redacted, err := resolveInputs(inputs, nil)
	if err != nil {
		t.Fatalf("resolveInputs: %v", err)
	}

	if plain["token"] != "porkbun-api-key" {
		t.Errorf("plain token = %v, want the cleartext", plain["token"])
	}
	placeholder, ok := redacted["token"].(string)
	if !ok || !strings.HasPrefix(placeholder, "(secret ") {
		t.Fatalf("redacted token = %v, want a placeholder", redacted["token"])
	}
	if strings.Contains(placeholder, "porkbun-api-key") {
		t.Errorf("placeholder %q leaks the cleartext", placeholder)
	}

	// Rotating the secret must change the placeholder so the differ can
	// detect it.
	_, rotated, err := resolveInputs(map[string]Value{"token": Secret("another-key")}, nil)
	if err != nil {
		t.Fatalf("resolveInputs: %v", err)
	}
	if rotated["token"] == placeholder {
		t.Errorf("rotated secret produced identical placeholder %q", placeholder)
	}

	// The same secret must always produce the same placeholder.
	_, again, err := resolveInputs(inputs, nil)
	if err != nil {
		t.Fatalf("resolveInputs: %v", err)
	}
	if again["token"] != placeholder {
		t.Errorf("same secret produced %v, want %q", again["token"], placeholder)
	}
}

func TestResolveInputsMissingOutput(t *testing.T) {
	inputs := map[string]Value{
		"target": Ref("server", "ipv6"),
	}
	lookup := func(name string) (map[string]any, map[string]any, bool) {
		out := map[string]any{"ipv4": "203.0.113.7"}
		return out, out, true
	}

	_, _, err := resolveInputs(inputs, lookup)
	if err == nil {
		t.Fatal("resolveInputs succeeded, want missing-output error")
	}
	if !strings.Contains(err.Error(), "ipv6") {
		t.Errorf("error %q does not name the missing output", err)
	}
}

func TestRedactOutputs(t *testing.T) {
	out := redactOutputs(map[string]any{
		"ipv4":          "203.0.113.7",
		"root_password": "hunter2",
	}, []string{"root_password"})

	if out["ipv4"] != "203.0.113.7" {
		t.Errorf("ipv4 = %v, want passthrough", out["ipv4"])
	}
	pw, ok := out["root_password"].(string)
	if !ok || !strings.HasPrefix(pw, "(secret ") || strings.Contains(pw, "hunter2") {
		t.Errorf("root_password = %v, want redacted placeholder", out["root_password"])
	}
}
