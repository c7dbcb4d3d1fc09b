package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/beamctl/beamctl-go/pkg/log"
	"github.com/beamctl/beamctl-go/pkg/positioner"
	"github.com/beamctl/beamctl-go/pkg/signal"
)

// Config errors.
var (
	ErrMissingName     = errors.New("name is required")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrMissingSetpoint = errors.New("positioner requires a setpoint signal")
	ErrBadLimits       = errors.New("low limit above high limit")
)

// SignalDef declares a Soft signal to create in the hub.
type SignalDef struct {
	Name    string  `yaml:"name"`
	Initial float64 `yaml:"initial"`
	Low     float64 `yaml:"low"`
	High    float64 `yaml:"high"`
}

// PositionerDef declares a PVPositioner wired to named signals. Signal
// names may refer to hub signals from the signals section or to whatever
// the connector used at build time resolves.
type PositionerDef struct {
	Name string `yaml:"name"`
	EGU  string `yaml:"egu"`

	TimeoutSeconds float64 `yaml:"timeout_seconds"`

	Setpoint string `yaml:"setpoint"`
	Readback string `yaml:"readback"`
	Actuate  string `yaml:"actuate"`
	Stop     string `yaml:"stop"`
	Done     string `yaml:"done"`

	ActuateValue float64 `yaml:"actuate_value"`
	StopValue    float64 `yaml:"stop_value"`
	DoneValue    float64 `yaml:"done_value"`

	PutComplete   bool    `yaml:"put_complete"`
	SettleSeconds float64 `yaml:"settle_seconds"`

	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Config is the root of the YAML document.
type Config struct {
	Signals     []SignalDef     `yaml:"signals"`
	Positioners []PositionerDef `yaml:"positioners"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks names, required fields and limit ordering.
func (c *Config) Validate() error {
	seenSignals := make(map[string]bool)
	for i, s := range c.Signals {
		if s.Name == "" {
			return fmt.Errorf("signals[%d]: %w", i, ErrMissingName)
		}
		if seenSignals[s.Name] {
			return fmt.Errorf("signals[%d]: %w: %q", i, ErrDuplicateName, s.Name)
		}
		seenSignals[s.Name] = true
		if s.Low > s.High {
			return fmt.Errorf("signal %q: %w: %v > %v", s.Name, ErrBadLimits, s.Low, s.High)
		}
	}

	seenAxes := make(map[string]bool)
	for i, p := range c.Positioners {
		if p.Name == "" {
			return fmt.Errorf("positioners[%d]: %w", i, ErrMissingName)
		}
		if seenAxes[p.Name] {
			return fmt.Errorf("positioners[%d]: %w: %q", i, ErrDuplicateName, p.Name)
		}
		seenAxes[p.Name] = true
		if p.Setpoint == "" {
			return fmt.Errorf("positioner %q: %w", p.Name, ErrMissingSetpoint)
		}
		if p.Low > p.High {
			return fmt.Errorf("positioner %q: %w: %v > %v", p.Name, ErrBadLimits, p.Low, p.High)
		}
	}
	return nil
}

// PopulateHub creates the declared Soft signals in hub.
func (c *Config) PopulateHub(hub *signal.Hub) {
	for _, s := range c.Signals {
		hub.Add(signal.NewSoft(s.Name,
			signal.WithInitial(s.Initial),
			signal.WithLimits(s.Low, s.High)))
	}
}

// Build constructs the declared positioners against conn. Signals are
// resolved by name; a dangling reference surfaces as the connector's
// error. The returned slice preserves declaration order.
func (c *Config) Build(conn signal.Connector, logger log.Logger) ([]*positioner.PVPositioner, error) {
	axes := make([]*positioner.PVPositioner, 0, len(c.Positioners))
	for _, def := range c.Positioners {
		pv, err := c.buildOne(def, conn, logger)
		if err != nil {
			for _, built := range axes {
				built.Close()
			}
			return nil, fmt.Errorf("building positioner %q: %w", def.Name, err)
		}
		axes = append(axes, pv)
	}
	return axes, nil
}

func (c *Config) buildOne(def PositionerDef, conn signal.Connector, logger log.Logger) (*positioner.PVPositioner, error) {
	connect := func(name string) (signal.RemoteValue, error) {
		if name == "" {
			return nil, nil
		}
		return conn.Connect(name)
	}

	setpoint, err := connect(def.Setpoint)
	if err != nil {
		return nil, err
	}
	readback, err := connect(def.Readback)
	if err != nil {
		return nil, err
	}
	actuate, err := connect(def.Actuate)
	if err != nil {
		return nil, err
	}
	stop, err := connect(def.Stop)
	if err != nil {
		return nil, err
	}
	done, err := connect(def.Done)
	if err != nil {
		return nil, err
	}

	return positioner.NewPVPositioner(positioner.PVConfig{
		Name:         def.Name,
		EGU:          def.EGU,
		Timeout:      seconds(def.TimeoutSeconds),
		Logger:       logger,
		Setpoint:     setpoint,
		Readback:     readback,
		Actuate:      actuate,
		ActuateValue: def.ActuateValue,
		Stop:         stop,
		StopValue:    def.StopValue,
		Done:         done,
		DoneValue:    def.DoneValue,
		PutComplete:  def.PutComplete,
		SettleTime:   seconds(def.SettleSeconds),
		Limits:       positioner.Limits{Low: def.Low, High: def.High},
	})
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
