// Command posctl is an interactive shell for driving configured axes.
// The axes run against in-process simulated motors, so it doubles as a
// demo and a test bench for axis configurations.
//
// Usage:
//
//	posctl -config axes.yaml [-eventlog motion.cbor]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/beamctl/beamctl-go/pkg/config"
	blog "github.com/beamctl/beamctl-go/pkg/log"
	"github.com/beamctl/beamctl-go/pkg/positioner"
	"github.com/beamctl/beamctl-go/pkg/registry"
	"github.com/beamctl/beamctl-go/pkg/signal"
	"github.com/beamctl/beamctl-go/pkg/sim"
	"github.com/beamctl/beamctl-go/pkg/version"
)

var (
	configPath   = flag.String("config", "", "YAML axis configuration")
	eventLogPath = flag.String("eventlog", "", "CBOR motion event log file")
	velocity     = flag.Float64("velocity", 10, "simulated motor velocity, units per second")
	showVersion  = flag.Bool("version", false, "print the build version and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *showVersion {
		fmt.Println("posctl", version.String())
		return
	}
	if *configPath == "" {
		log.Fatal("-config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var eventLogger blog.Logger = blog.NoopLogger{}
	if *eventLogPath != "" {
		fl, err := blog.NewFileLogger(*eventLogPath)
		if err != nil {
			log.Fatalf("opening event log: %v", err)
		}
		defer fl.Close()
		eventLogger = fl
	}

	hub := signal.NewHub()
	defer hub.Close()
	cfg.PopulateHub(hub)

	motors, err := startSimulators(cfg, hub, *velocity)
	if err != nil {
		log.Fatalf("starting simulators: %v", err)
	}
	defer func() {
		for _, m := range motors {
			m.Close()
		}
	}()

	axes, err := cfg.Build(hub, eventLogger)
	if err != nil {
		log.Fatalf("building axes: %v", err)
	}
	defer func() {
		for _, ax := range axes {
			ax.Close()
		}
	}()

	reg := registry.New()
	byName := make(map[string]*positioner.PVPositioner)
	for _, ax := range axes {
		if _, err := reg.Register(ax); err != nil {
			log.Fatalf("registering axis: %v", err)
		}
		byName[ax.Name()] = ax
	}

	shell, err := NewShell(reg, byName)
	if err != nil {
		log.Fatalf("starting shell: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := shell.Run(ctx, cancel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startSimulators(cfg *config.Config, hub *signal.Hub, velocity float64) ([]*sim.Motor, error) {
	var motors []*sim.Motor
	for _, def := range cfg.Positioners {
		sp, ok := hub.Soft(def.Setpoint)
		if !ok {
			continue
		}
		rb, ok := hub.Soft(def.Readback)
		if !ok {
			continue
		}
		mcfg := sim.Config{
			Setpoint: sp,
			Readback: rb,
			Velocity: velocity,
			AckPuts:  def.PutComplete,
		}
		if done, ok := hub.Soft(def.Done); ok {
			mcfg.Done = done
			mcfg.DoneResting = def.DoneValue
			if def.DoneValue == 0 {
				mcfg.DoneMoving = 1
			}
		}
		if stop, ok := hub.Soft(def.Stop); ok {
			mcfg.Stop = stop
		}
		m, err := sim.New(mcfg)
		if err != nil {
			return motors, err
		}
		if err := m.Start(); err != nil {
			return motors, err
		}
		motors = append(motors, m)
	}
	return motors, nil
}
