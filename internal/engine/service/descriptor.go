package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDescriptor is returned when a descriptor cannot be registered.
var ErrInvalidDescriptor = errors.New("invalid service descriptor")

// Constructor builds a fresh, unstarted service instance.
type Constructor func(host Host) (Service, error)

// Dependency names a service that must be started first, and the alias the
// dependent sees it under.
type Dependency struct {
	ID    string
	Alias string
}

// DependsOn declares a dependency bound under its own identifier.
func DependsOn(id string) Dependency {
	return Dependency{ID: id}
}

// DependsOnAs declares a dependency bound under alias.
func DependsOnAs(id, alias string) Dependency {
	return Dependency{ID: id, Alias: alias}
}

// Name returns the alias, or the identifier when no alias was given.
func (d Dependency) Name() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.ID
}

// Descriptor is the static registration record of a service.
type Descriptor struct {
	// ID is the declared identifier, used by RegisterWithDeclaredIdentifier.
	ID string

	// New builds the instance.
	New Constructor

	// Dependencies are started (or reused) before OnInit, in order.
	Dependencies []Dependency

	// Events lists subscribed event names. AllEvents subscribes to everything.
	Events []string

	// AutoStart starts the service from ServicesLoaded instead of on first use.
	AutoStart bool
}

// Validate checks that the descriptor can be registered under id.
func (d Descriptor) Validate(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidDescriptor)
	}
	if d.New == nil {
		return fmt.Errorf("%w: %s has no constructor", ErrInvalidDescriptor, id)
	}
	for i, dep := range d.Dependencies {
		if strings.TrimSpace(dep.ID) == "" {
			return fmt.Errorf("%w: %s dependency[%d] has no identifier", ErrInvalidDescriptor, id, i)
		}
	}
	return nil
}

// SubscribesToAll reports whether the descriptor uses the wildcard marker.
func (d Descriptor) SubscribesToAll() bool {
	for _, ev := range d.Events {
		if ev == AllEvents {
			return true
		}
	}
	return false
}
