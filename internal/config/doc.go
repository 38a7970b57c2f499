// Package config loads motionfeed configuration from YAML.
//
// Values may reference environment variables as ${VAR}; they are expanded
// before parsing. Optional fields get defaults (see defaults.go). The two
// poller thresholds are required because no default fits every data
// source.
package config
