// Package registry tracks the axes a process controls under their names.
// It replaces implicit global instance tracking with an explicit,
// injectable registry: callers construct one, register their positioners
// and hand it to whatever surface needs axis lookup.
package registry
