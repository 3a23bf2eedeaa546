// Package config loads and validates engine configuration from
// defaults, YAML files, environment variables, and command-line
// overrides, in that order of precedence.
package config
