// Package types defines the core data structures for the forecast engine.
//
// This package contains all the fundamental types used throughout the engine,
// including:
//   - Series identity and demand observations
//   - Forecast job specifications and lifecycle states
//   - Per-series results and report structures
//   - Worker registration and task distribution types
package types
