// Package app defines the contract between command line options and the application runner.
package app

import cliflag "k8s.io/component-base/cli/flag"

// CliOptions abstracts configuration options for reading parameters from the
// command line, config files and the environment.
type CliOptions interface {
	// Flags returns flags grouped by section, in display order.
	Flags() cliflag.NamedFlagSets
	// Complete fills in values derived from other fields or the environment.
	Complete() error
	// Validate checks the options and aggregates every problem found.
	Validate() error
}
