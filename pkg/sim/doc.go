// Package sim provides a soft motor simulator for demos and tests: it
// watches a setpoint signal and ramps the readback toward each written
// target at a configured velocity, driving the done signal through the
// moving and resting values on the way.
package sim
