package service

import (
	"sort"
)

// Registry maps service identifiers to descriptors and event names to
// subscriber identifiers.
//
// Registry is not safe for concurrent use. It is filled during discovery and
// afterwards read and written only by the manager's owner goroutine.
type Registry struct {
	descriptors map[string]Descriptor
	order       []string // first registration order
	subscribers map[string][]string
	disabled    map[string]bool
	skipped     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		subscribers: make(map[string][]string),
		disabled:    make(map[string]bool),
	}
}

// Disable makes later registrations of ids no-ops.
func (r *Registry) Disable(ids ...string) {
	for _, id := range ids {
		r.disabled[id] = true
	}
}

// Register stores desc under id. A later registration of the same id replaces
// the descriptor silently. Subscriptions are appended as-is, so registering
// twice leaves duplicate entries that dispatch collapses.
func (r *Registry) Register(id string, desc Descriptor) error {
	if err := desc.Validate(id); err != nil {
		return err
	}
	if r.disabled[id] {
		r.skipped = append(r.skipped, id)
		return nil
	}

	if _, exists := r.descriptors[id]; !exists {
		r.order = append(r.order, id)
	}
	desc.ID = id
	r.descriptors[id] = desc

	for _, ev := range desc.Events {
		r.subscribers[ev] = append(r.subscribers[ev], id)
	}
	return nil
}

// RegisterWithDeclaredIdentifier stores desc under desc.ID.
func (r *Registry) RegisterWithDeclaredIdentifier(desc Descriptor) error {
	return r.Register(desc.ID, desc)
}

// Lookup returns the descriptor registered under id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	desc, ok := r.descriptors[id]
	return desc, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.descriptors[id]
	return ok
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.descriptors)
}

// IDs returns identifiers in first registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedIDs returns identifiers in lexical order.
func (r *Registry) SortedIDs() []string {
	out := r.IDs()
	sort.Strings(out)
	return out
}

// Subscribers returns the raw subscriber list for event, duplicates included.
func (r *Registry) Subscribers(event string) []string {
	list := r.subscribers[event]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// AutoStart returns identifiers flagged for auto-start, in registry order.
func (r *Registry) AutoStart() []string {
	var out []string
	for _, id := range r.order {
		if r.descriptors[id].AutoStart {
			out = append(out, id)
		}
	}
	return out
}

// Skipped returns identifiers whose registration was ignored because they
// were disabled.
func (r *Registry) Skipped() []string {
	out := make([]string, len(r.skipped))
	copy(out, r.skipped)
	return out
}
