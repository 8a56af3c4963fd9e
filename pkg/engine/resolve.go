package engine

import "fmt"

// outputLookup resolves a resource's committed outputs by logical name. It
// returns the plaintext outputs (handed to adapters) and the redacted form
// (persisted and compared by the differ), or ok=false when the resource has
// no committed outputs.
type outputLookup func(resource string) (plain, redacted map[string]any, ok bool)

// resolveInputs materializes an input property map into two parallel plain
// data trees: the plaintext form consumed by provider adapters and the
// redacted form that is safe to persist and display. References are
// substituted with values from lookup; secret literals are redacted.
func resolveInputs(inputs map[string]Value, lookup outputLookup) (plain, redacted map[string]any, err error) {
	plain = make(map[string]any, len(inputs))
	redacted = make(map[string]any, len(inputs))
	for name, v := range inputs {
		p, r, err := resolveValue(v, lookup)
		if err != nil {
			return nil, nil, fmt.Errorf("input %q: %w", name, err)
		}
		plain[name] = p
		redacted[name] = r
	}
	return plain, redacted, nil
}

func resolveValue(v Value, lookup outputLookup) (plain, redacted any, err error) {
	if ref, ok := v.Reference(); ok {
		p, r, found := lookup(ref.Resource)
		if !found {
			return nil, nil, fmt.Errorf("reference %s: resource has no committed outputs", ref)
		}
		pv, ok := p[ref.Output]
		if !ok {
			return nil, nil, fmt.Errorf("reference %s: output not present", ref)
		}
		rv, ok := r[ref.Output]
		if !ok {
			rv = pv
		}
		return pv, rv, nil
	}

	switch lit := v.lit.(type) {
	case []Value:
		ps := make([]any, len(lit))
		rs := make([]any, len(lit))
		for i, e := range lit {
			ps[i], rs[i], err = resolveValue(e, lookup)
			if err != nil {
				return nil, nil, err
			}
		}
		return ps, rs, nil
	case map[string]Value:
		pm := make(map[string]any, len(lit))
		rm := make(map[string]any, len(lit))
		for k, e := range lit {
			pm[k], rm[k], err = resolveValue(e, lookup)
			if err != nil {
				return nil, nil, err
			}
		}
		return pm, rm, nil
	case string:
		if v.secret {
			return lit, redactSecret(lit), nil
		}
		return lit, lit, nil
	default:
		return lit, lit, nil
	}
}

// redactOutputs returns a copy of outputs with the named keys replaced by
// their redacted form. Non-string secret outputs are replaced wholesale.
func redactOutputs(outputs map[string]any, secretKeys []string) map[string]any {
	if len(outputs) == 0 {
		return map[string]any{}
	}
	secret := make(map[string]bool, len(secretKeys))
	for _, k := range secretKeys {
		secret[k] = true
	}
	redacted := make(map[string]any, len(outputs))
	for k, v := range outputs {
		if !secret[k] {
			redacted[k] = v
			continue
		}
		if s, ok := v.(string); ok {
			redacted[k] = redactSecret(s)
		} else {
			redacted[k] = redactSecret(fmt.Sprintf("%v", v))
		}
	}
	return redacted
}
