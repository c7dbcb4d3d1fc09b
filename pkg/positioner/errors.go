package positioner

import "errors"

// Positioner errors.
var (
	// ErrNoSetpoint is returned when a PVPositioner is constructed
	// without the mandatory setpoint signal.
	ErrNoSetpoint = errors.New("setpoint signal must be configured")

	// ErrNoRecord is returned when a motor is constructed without a
	// record name.
	ErrNoRecord = errors.New("motor record name must be specified")

	// ErrNoTrajectory is returned when trajectory iteration is requested
	// before a trajectory has been set.
	ErrNoTrajectory = errors.New("trajectory not set")

	// ErrTrajectoryExhausted is returned by MoveNext when no points remain.
	ErrTrajectoryExhausted = errors.New("end of trajectory")

	// ErrTimeout is returned when motion does not start or complete
	// within the configured deadline.
	ErrTimeout = errors.New("motion timed out")

	// ErrStopUnsupported is returned by Stop when no stop signal is
	// configured.
	ErrStopUnsupported = errors.New("stop signal not configured")
)
