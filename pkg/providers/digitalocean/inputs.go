package digitalocean

import (
	"fmt"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// Resolved input documents carry JSON-ish values. These helpers pull typed
// fields out and turn missing or mistyped required fields into permanent
// errors, since retrying cannot fix the document.

func stringInput(inputs map[string]any, key string, required bool) (string, error) {
	raw, ok := inputs[key]
	if !ok {
		if required {
			return "", engine.NewPermanentError(fmt.Sprintf("input %q is required", key), nil)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", engine.NewPermanentError(fmt.Sprintf("input %q must be a string", key), nil)
	}
	return s, nil
}

func intInput(inputs map[string]any, key string, fallback int) (int, error) {
	raw, ok := inputs[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, engine.NewPermanentError(fmt.Sprintf("input %q must be a number", key), nil)
	}
}

func stringListInput(inputs map[string]any, key string) ([]string, error) {
	raw, ok := inputs[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, engine.NewPermanentError(fmt.Sprintf("input %q must be a list of strings", key), nil)
	}
	out := make([]string, 0, len(list))
	for _, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, engine.NewPermanentError(fmt.Sprintf("input %q must be a list of strings", key), nil)
		}
		out = append(out, s)
	}
	return out, nil
}

func objectListInput(inputs map[string]any, key string) ([]map[string]any, error) {
	raw, ok := inputs[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, engine.NewPermanentError(fmt.Sprintf("input %q must be a list of objects", key), nil)
	}
	out := make([]map[string]any, 0, len(list))
	for _, elem := range list {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, engine.NewPermanentError(fmt.Sprintf("input %q must be a list of objects", key), nil)
		}
		out = append(out, obj)
	}
	return out, nil
}

func outputInt(outputs map[string]any, key string) (int, bool) {
	switch v := outputs[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func outputString(outputs map[string]any, key string) (string, bool) {
	s, ok := outputs[key].(string)
	return s, ok
}
