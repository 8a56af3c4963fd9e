package config

// Stack is the top-level deployment document: a named collection of
// resource declarations.
type Stack struct {
	// Name identifies the stack, e.g. "captura-prod".
	Name string `json:"name" validate:"required"`

	// Resources are the declared resources of the stack.
	Resources []ResourceConfig `json:"resources" validate:"required,min=1,dive"`
}

// ResourceConfig is one declared resource before input decoding. Inputs is
// the raw document tree; references and secrets use the marker forms
// {$from: {resource, output}} and {$secret: "..."}.
type ResourceConfig struct {
	Type   string         `json:"type" validate:"required"`
	Name   string         `json:"name" validate:"required"`
	Inputs map[string]any `json:"inputs"`
}

// ValidationError is one problem found while parsing or validating a stack
// document.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.Path + ": " + e.Message
	}
	return e.Message
}
