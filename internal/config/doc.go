// Package config loads, validates, and provides access to Lectern's TOML
// configuration. Missing values fall back to built-in defaults, tilde paths
// are expanded, and validation reports every problem in one pass.
package config
