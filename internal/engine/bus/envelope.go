package bus

import "fmt"

// Envelope is one scattered event: a name plus positional and keyword
// arguments. It is the unit that crosses the hand-off between goroutines.
type Envelope struct {
	Name   string         `json:"name"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// NewEnvelope builds an envelope with positional arguments.
func NewEnvelope(name string, args ...any) Envelope {
	return Envelope{Name: name, Args: args}
}

// With returns a copy of e with key set in its keyword arguments.
// The receiver's map is never mutated.
func (e Envelope) With(key string, value any) Envelope {
	kw := make(map[string]any, len(e.Kwargs)+1)
	for k, v := range e.Kwargs {
		kw[k] = v
	}
	kw[key] = value
	e.Kwargs = kw
	return e
}

// Arg returns the positional argument at i.
func (e Envelope) Arg(i int) (any, bool) {
	if i < 0 || i >= len(e.Args) {
		return nil, false
	}
	return e.Args[i], true
}

// Kwarg returns the keyword argument stored under key.
func (e Envelope) Kwarg(key string) (any, bool) {
	v, ok := e.Kwargs[key]
	return v, ok
}

// String returns a short human-readable form for logs.
func (e Envelope) String() string {
	return fmt.Sprintf("%s(args=%d kwargs=%d)", e.Name, len(e.Args), len(e.Kwargs))
}
