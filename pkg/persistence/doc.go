// Package persistence saves and restores axis state across restarts:
// the last known position and the followed trajectory history per axis,
// as a JSON snapshot on disk.
package persistence
