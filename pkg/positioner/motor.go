package positioner

import (
	"fmt"
	"time"

	"github.com/beamctl/beamctl-go/pkg/log"
	"github.com/beamctl/beamctl-go/pkg/signal"
)

// Motor record field suffixes.
const (
	fieldSetpoint = ".VAL"
	fieldReadback = ".RBV"
	fieldDone     = ".DMOV"
	fieldStop     = ".STOP"
)

// MotorConfig selects the record and the ambient settings for NewMotor.
type MotorConfig struct {
	// Record is the motor record name the field names derive from.
	// Required.
	Record string

	// Name overrides the positioner name; defaults to Record.
	Name string

	EGU     string
	Timeout time.Duration
	Logger  log.Logger
	Limits  Limits
}

// NewMotor connects the conventional motor record fields through conn and
// assembles them into a PVPositioner: setpoint VAL, readback RBV, done
// DMOV and stop STOP. DMOV rests at 1, so the axis is moving whenever it
// reads 0.
func NewMotor(conn signal.Connector, cfg MotorConfig) (*PVPositioner, error) {
	if cfg.Record == "" {
		return nil, ErrNoRecord
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Record
	}

	setpoint, err := conn.Connect(cfg.Record + fieldSetpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting %s%s: %w", cfg.Record, fieldSetpoint, err)
	}
	readback, err := conn.Connect(cfg.Record + fieldReadback)
	if err != nil {
		return nil, fmt.Errorf("connecting %s%s: %w", cfg.Record, fieldReadback, err)
	}
	done, err := conn.Connect(cfg.Record + fieldDone)
	if err != nil {
		return nil, fmt.Errorf("connecting %s%s: %w", cfg.Record, fieldDone, err)
	}
	stop, err := conn.Connect(cfg.Record + fieldStop)
	if err != nil {
		return nil, fmt.Errorf("connecting %s%s: %w", cfg.Record, fieldStop, err)
	}

	return NewPVPositioner(PVConfig{
		Name:      name,
		EGU:       cfg.EGU,
		Timeout:   cfg.Timeout,
		Logger:    cfg.Logger,
		Setpoint:  setpoint,
		Readback:  readback,
		Done:      done,
		DoneValue: 1,
		Stop:      stop,
		StopValue: 1,
		Limits:    cfg.Limits,
	})
}
