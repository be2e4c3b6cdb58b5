// Package labels defines the key/value tags odooghost attaches to every engine
// resource it creates and the filters used to find them again.
// The engine has no other notion of ownership, so this package is the only
// discovery mechanism. All functions are pure.
package labels

import (
	"fmt"
	"sort"
)

// =============================================================================
// Label Keys
// =============================================================================

const (
	Managed = "com.odooghost.managed"
	Stack   = "com.odooghost.stack"
	Service = "com.odooghost.service"
	OneOff  = "com.odooghost.one-off"
)

const (
	valueTrue    = "True"
	valueFalse   = "False"
	valueManaged = "true"
)

// OneOffFilter selects which containers a query returns with respect to
// one-off (run) containers.
type OneOffFilter int

const (
	// OneOffInclude matches both service and one-off containers.
	OneOffInclude OneOffFilter = iota
	// OneOffExclude matches only long-lived service containers.
	OneOffExclude
	// OneOffOnly matches only one-off containers.
	OneOffOnly
)

func (f OneOffFilter) String() string {
	switch f {
	case OneOffExclude:
		return "exclude"
	case OneOffOnly:
		return "only"
	default:
		return "include"
	}
}

// =============================================================================
// Creation Labels
// =============================================================================

// ManagedSet returns the marker carried by every resource odooghost owns.
func ManagedSet() map[string]string {
	return map[string]string{Managed: valueManaged}
}

// ForStack returns the labels for stack-scoped resources (networks).
func ForStack(stack string) map[string]string {
	l := ManagedSet()
	l[Stack] = stack
	return l
}

// ForService returns the labels for a role's volume and image.
func ForService(stack, service string) map[string]string {
	l := ForStack(stack)
	l[Service] = service
	return l
}

// ForContainer returns the labels for a role's container.
func ForContainer(stack, service string, oneOff bool) map[string]string {
	l := ForService(stack, service)
	l[OneOff] = boolValue(oneOff)
	return l
}

// =============================================================================
// Query Filters
// =============================================================================

// StackFilter returns the label predicates matching a stack's containers.
func StackFilter(stack string, oneOff OneOffFilter) map[string]string {
	f := ForStack(stack)
	applyOneOff(f, oneOff)
	return f
}

// ServiceFilter returns the label predicates matching one role's containers.
func ServiceFilter(stack, service string, oneOff OneOffFilter) map[string]string {
	f := ForService(stack, service)
	applyOneOff(f, oneOff)
	return f
}

// AsFilterArgs renders predicates in the engine's "key=value" filter form.
// The output is sorted so callers and tests see a stable order.
func AsFilterArgs(predicates map[string]string) []string {
	out := make([]string, 0, len(predicates))
	for k, v := range predicates {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

// IsOneOff reports whether a label set marks a one-off container.
func IsOneOff(l map[string]string) bool {
	return l[OneOff] == valueTrue
}

func applyOneOff(f map[string]string, oneOff OneOffFilter) {
	switch oneOff {
	case OneOffExclude:
		f[OneOff] = valueFalse
	case OneOffOnly:
		f[OneOff] = valueTrue
	}
}

func boolValue(b bool) string {
	if b {
		return valueTrue
	}
	return valueFalse
}
