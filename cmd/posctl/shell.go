package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/beamctl/beamctl-go/pkg/notify"
	"github.com/beamctl/beamctl-go/pkg/positioner"
	"github.com/beamctl/beamctl-go/pkg/registry"
)

// Shell is the interactive command loop.
type Shell struct {
	reg  *registry.Registry
	axes map[string]*positioner.PVPositioner
	rl   *readline.Instance

	// watch subscriptions by axis name
	watches map[string]notify.SubscriptionID
}

// NewShell creates the readline instance and the command loop around it.
func NewShell(reg *registry.Registry, axes map[string]*positioner.PVPositioner) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "posctl> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{
		reg:     reg,
		axes:    axes,
		rl:      rl,
		watches: make(map[string]notify.SubscriptionID),
	}, nil
}

// Run reads and executes commands until exit or ctx cancellation.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) error {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "list", "ls":
			s.cmdList()
		case "status", "st":
			s.cmdStatus(args)
		case "move":
			s.cmdMove(ctx, args, true)
		case "mv":
			s.cmdMove(ctx, args, false)
		case "stop":
			s.cmdStop(args)
		case "traj":
			s.cmdTraj(args)
		case "next":
			s.cmdNext(ctx, args)
		case "followed":
			s.cmdFollowed(args)
		case "watch":
			s.cmdWatch(args)
		case "unwatch":
			s.cmdUnwatch(args)
		case "exit", "quit", "q":
			cancel()
			return nil
		default:
			fmt.Fprintf(s.rl.Stdout(), "unknown command %q, try help\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.rl.Stdout(), `Commands:
  list                      list axes
  status [axis]             show axis state
  move <axis> <target>      move and wait for completion
  mv <axis> <target>        move without waiting
  stop [axis]               stop one axis, or all
  traj <axis> <p1> <p2>...  set a trajectory
  next <axis>               move to the next trajectory point
  followed <axis>           show followed trajectory points
  watch <axis>              print position updates
  unwatch <axis>            stop printing position updates
  exit                      quit
`)
}

func (s *Shell) axis(name string) (*positioner.PVPositioner, bool) {
	ax, ok := s.axes[name]
	if !ok {
		fmt.Fprintf(s.rl.Stdout(), "unknown axis %q\n", name)
	}
	return ax, ok
}

func (s *Shell) cmdList() {
	for _, name := range s.reg.Names() {
		fmt.Fprintln(s.rl.Stdout(), name)
	}
}

func (s *Shell) cmdStatus(args []string) {
	names := args
	if len(names) == 0 {
		names = s.reg.Names()
	}
	for _, name := range names {
		ax, ok := s.axis(name)
		if !ok {
			continue
		}
		line := fmt.Sprintf("%-12s %10.4f %s", ax.Name(), ax.Position(), ax.EGU())
		if ax.Moving() {
			if target, ok := ax.Target(); ok {
				line += fmt.Sprintf("  MOVING -> %.4f", target)
			} else {
				line += "  MOVING"
			}
		}
		fmt.Fprintln(s.rl.Stdout(), line)
	}
}

func (s *Shell) cmdMove(ctx context.Context, args []string, wait bool) {
	if len(args) != 2 {
		fmt.Fprintln(s.rl.Stdout(), "usage: move <axis> <target>")
		return
	}
	ax, ok := s.axis(args[0])
	if !ok {
		return
	}
	target, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "bad target %q\n", args[1])
		return
	}

	if wait {
		if _, err := ax.Move(ctx, target, positioner.MoveOptions{Wait: true}); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "move failed: %v\n", err)
			return
		}
		fmt.Fprintf(s.rl.Stdout(), "%s at %.4f\n", ax.Name(), ax.Position())
		return
	}

	name := ax.Name()
	out := s.rl.Stdout()
	_, err = ax.Move(ctx, target, positioner.MoveOptions{
		Moved: func(ev notify.Event) {
			if ev.Success {
				fmt.Fprintf(out, "%s move to %.4f done\n", name, target)
			} else {
				fmt.Fprintf(out, "%s move to %.4f failed\n", name, target)
			}
		},
	})
	if err != nil {
		fmt.Fprintf(out, "move failed: %v\n", err)
	}
}

func (s *Shell) cmdStop(args []string) {
	if len(args) == 0 {
		if err := s.reg.StopAll(); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "stop: %v\n", err)
		}
		return
	}
	ax, ok := s.axis(args[0])
	if !ok {
		return
	}
	if err := ax.Stop(); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "stop: %v\n", err)
	}
}

func (s *Shell) cmdTraj(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "usage: traj <axis> <p1> <p2> ...")
		return
	}
	ax, ok := s.axis(args[0])
	if !ok {
		return
	}
	points := make([]float64, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "bad point %q\n", a)
			return
		}
		points = append(points, v)
	}
	ax.SetTrajectory(points)
	fmt.Fprintf(s.rl.Stdout(), "%s trajectory: %d points\n", ax.Name(), len(points))
}

func (s *Shell) cmdNext(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "usage: next <axis>")
		return
	}
	ax, ok := s.axis(args[0])
	if !ok {
		return
	}
	pos, _, err := ax.MoveNext(ctx, positioner.MoveOptions{Wait: true})
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "next: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "%s at %.4f\n", ax.Name(), pos)
}

func (s *Shell) cmdFollowed(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "usage: followed <axis>")
		return
	}
	ax, ok := s.axis(args[0])
	if !ok {
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "%v\n", ax.Followed())
}

func (s *Shell) cmdWatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "usage: watch <axis>")
		return
	}
	ax, ok := s.axis(args[0])
	if !ok {
		return
	}
	name := ax.Name()
	if _, watching := s.watches[name]; watching {
		fmt.Fprintf(s.rl.Stdout(), "already watching %s\n", name)
		return
	}
	out := s.rl.Stdout()
	id := ax.Subscribe(positioner.SubReadback, func(ev notify.Event) {
		fmt.Fprintf(out, "%s %.4f\n", name, ev.Value)
	}, false)
	s.watches[name] = id
}

func (s *Shell) cmdUnwatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "usage: unwatch <axis>")
		return
	}
	ax, ok := s.axis(args[0])
	if !ok {
		return
	}
	id, watching := s.watches[ax.Name()]
	if !watching {
		return
	}
	ax.Unsubscribe(id)
	delete(s.watches, ax.Name())
}
