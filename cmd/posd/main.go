// Command posd serves the status and control surface for a set of
// configured axes over HTTP and websocket.
//
// Usage:
//
//	posd [flags]
//
// Flags:
//
//	-config string    YAML axis configuration (required)
//	-listen string    HTTP listen address (default "127.0.0.1:8502")
//	-eventlog string  CBOR motion event log file
//	-state string     JSON state file for position snapshots
//	-sim              drive the configured signals with simulated motors
//	-version          print the build version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/beamctl/beamctl-go/pkg/config"
	blog "github.com/beamctl/beamctl-go/pkg/log"
	"github.com/beamctl/beamctl-go/pkg/persistence"
	"github.com/beamctl/beamctl-go/pkg/registry"
	"github.com/beamctl/beamctl-go/pkg/signal"
	"github.com/beamctl/beamctl-go/pkg/sim"
	"github.com/beamctl/beamctl-go/pkg/version"
)

var (
	configPath   = flag.String("config", "", "YAML axis configuration")
	listenAddr   = flag.String("listen", "127.0.0.1:8502", "HTTP listen address")
	eventLogPath = flag.String("eventlog", "", "CBOR motion event log file")
	statePath    = flag.String("state", "", "JSON state file for position snapshots")
	simulate     = flag.Bool("sim", false, "drive the configured signals with simulated motors")
	showVersion  = flag.Bool("version", false, "print the build version and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if *showVersion {
		fmt.Println("posd", version.String())
		return
	}
	if *configPath == "" {
		log.Fatal("-config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventLogger, closeLogger, err := buildEventLogger(*eventLogPath)
	if err != nil {
		log.Fatalf("opening event log: %v", err)
	}
	defer closeLogger()

	hub := signal.NewHub()
	defer hub.Close()
	cfg.PopulateHub(hub)

	if *simulate {
		motors, err := startSimulators(cfg, hub)
		if err != nil {
			log.Fatalf("starting simulators: %v", err)
		}
		defer func() {
			for _, m := range motors {
				m.Close()
			}
		}()
		log.Printf("simulating %d axes", len(motors))
	}

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
	for _, ax := range axes {
		if _, err := reg.Register(ax); err != nil {
			log.Fatalf("registering axis: %v", err)
		}
	}
	log.Printf("serving %d axes: %v", reg.Len(), reg.Names())

	var store *persistence.Store
	if *statePath != "" {
		store = persistence.NewStore(*statePath)
		if state, err := store.Load(); err != nil {
			log.Printf("state file unreadable, ignoring: %v", err)
		} else if state != nil {
			for name, ax := range state.Axes {
				log.Printf("last known %s = %v %s (saved %s)",
					name, ax.Position, ax.EGU, state.SavedAt.Format(time.RFC3339))
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewServer(reg, eventLogger)
	go server.Watch(ctx, 100*time.Millisecond)

	if store != nil {
		go snapshotLoop(ctx, store, reg)
	}

	httpSrv := &http.Server{
		Handler:      server.Router(),
		Addr:         *listenAddr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Printf("listening on http://%s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal: %v, shutting down", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	if err := reg.StopAll(); err != nil {
		log.Printf("stopping axes: %v", err)
	}
	if store != nil {
		if err := store.Save(persistence.Snapshot(reg)); err != nil {
			log.Printf("saving state: %v", err)
		}
	}
}

func buildEventLogger(path string) (blog.Logger, func(), error) {
	if path == "" {
		return blog.NoopLogger{}, func() {}, nil
	}
	fl, err := blog.NewFileLogger(path)
	if err != nil {
		return nil, nil, err
	}
	return fl, func() {
		if err := fl.Close(); err != nil {
			log.Printf("closing event log: %v", err)
		}
	}, nil
}

// startSimulators attaches a simulated motor to each configured
// positioner that has both a setpoint and a readback in the hub.
func startSimulators(cfg *config.Config, hub *signal.Hub) ([]*sim.Motor, error) {
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
			Velocity: 10,
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

func snapshotLoop(ctx context.Context, store *persistence.Store, reg *registry.Registry) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Save(persistence.Snapshot(reg)); err != nil {
				log.Printf("saving state: %v", err)
			}
		}
	}
}
