// Package config loads YAML definitions of signals and positioners and
// builds the configured axes against a signal connector.
package config
