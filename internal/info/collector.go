// Package info gathers the device diagnostics reported by the get_info action.
package info

import "context"

// Collector gathers one group of diagnostics.
type Collector interface {
	Name() string                             // Key of the group in the info object (e.g. "memory")
	Collect(ctx context.Context) (any, error) // Collect the diagnostics
	Description() string                      // Description of what is collected
}
