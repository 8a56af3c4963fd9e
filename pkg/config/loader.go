package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// Loader parses CUE stack documents into engine resources.
type Loader struct {
	ctx      *cue.Context
	validate *validator.Validate
}

// NewLoader creates a loader with a fresh CUE context.
func NewLoader() *Loader {
	return &Loader{
		ctx:      cuecontext.New(),
		validate: validator.New(),
	}
}

// Load reads a CUE file or package directory and returns the stack plus
// its decoded resources in declaration order.
func (l *Loader) Load(source string) (*Stack, []engine.Resource, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat source %s: %w", source, err)
	}

	var val cue.Value
	if info.IsDir() {
		val, err = l.loadDirectory(source)
	} else {
		val, err = l.loadFile(source)
	}
	if err != nil {
		return nil, nil, err
	}

	var stack Stack
	if err := val.Decode(&stack); err != nil {
		return nil, nil, fmt.Errorf("failed to decode stack document: %w", err)
	}
	if err := l.validate.Struct(stack); err != nil {
		return nil, nil, fmt.Errorf("stack document invalid: %w", err)
	}

	resources := make([]engine.Resource, 0, len(stack.Resources))
	seen := make(map[string]bool, len(stack.Resources))
	for _, rc := range stack.Resources {
		if seen[rc.Name] {
			return nil, nil, ValidationError{
				Path:    "resources." + rc.Name,
				Message: "duplicate resource name",
			}
		}
		seen[rc.Name] = true

		inputs, err := decodeInputs(rc.Inputs)
		if err != nil {
			return nil, nil, ValidationError{
				Path:    "resources." + rc.Name + ".inputs",
				Message: err.Error(),
			}
		}
		res, err := engine.NewResource(engine.ResourceType(rc.Type), rc.Name, inputs)
		if err != nil {
			return nil, nil, err
		}
		resources = append(resources, res)
	}
	return &stack, resources, nil
}

func (l *Loader) loadDirectory(dir string) (cue.Value, error) {
	instances := load.Instances([]string{dir}, nil)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE files found in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("failed to load %s: %w", dir, inst.Err)
	}
	val := l.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to build %s: %w", dir, err)
	}
	return val, nil
}

func (l *Loader) loadFile(path string) (cue.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	val := l.ctx.CompileBytes(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to compile %s: %w", path, err)
	}
	return val, nil
}

// decodeInputs converts a raw input document into engine values,
// recognizing the reference and secret marker forms.
func decodeInputs(raw map[string]any) (map[string]engine.Value, error) {
	inputs := make(map[string]engine.Value, len(raw))
	for key, elem := range raw {
		v, err := decodeValue(elem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		inputs[key] = v
	}
	return inputs, nil
}

func decodeValue(raw any) (engine.Value, error) {
	switch v := raw.(type) {
	case string:
		return engine.String(v), nil
	case bool:
		return engine.Bool(v), nil
	case int:
		return engine.Int(int64(v)), nil
	case int64:
		return engine.Int(v), nil
	case float64:
		return engine.Float(v), nil
	case []any:
		elems := make([]engine.Value, 0, len(v))
		for i, elem := range v {
			decoded, err := decodeValue(elem)
			if err != nil {
				return engine.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			elems = append(elems, decoded)
		}
		return engine.List(elems...), nil
	case map[string]any:
		if ref, ok := v["$from"]; ok {
			if len(v) != 1 {
				return engine.Value{}, fmt.Errorf("$from must be the only key of its object")
			}
			return decodeReference(ref)
		}
		if secret, ok := v["$secret"]; ok {
			if len(v) != 1 {
				return engine.Value{}, fmt.Errorf("$secret must be the only key of its object")
			}
			s, ok := secret.(string)
			if !ok {
				return engine.Value{}, fmt.Errorf("$secret must hold a string")
			}
			return engine.Secret(s), nil
		}
		fields := make(map[string]engine.Value, len(v))
		for key, elem := range v {
			decoded, err := decodeValue(elem)
			if err != nil {
				return engine.Value{}, fmt.Errorf("%s: %w", key, err)
			}
			fields[key] = decoded
		}
		return engine.Object(fields), nil
	case nil:
		return engine.Value{}, fmt.Errorf("null is not a valid input value")
	default:
		return engine.Value{}, fmt.Errorf("unsupported input value of type %T", raw)
	}
}

func decodeReference(raw any) (engine.Value, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return engine.Value{}, fmt.Errorf("$from must hold an object with resource and output")
	}
	resource, _ := fields["resource"].(string)
	output, _ := fields["output"].(string)
	if resource == "" || output == "" {
		return engine.Value{}, fmt.Errorf("$from requires non-empty resource and output")
	}
	return engine.Ref(resource, output), nil
}
