// Package console provides the interactive operator shell of the MN.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/abiosoft/ishell"

	fx "github.com/robotalks/fieldbus.go/pkg/framework"
	"github.com/robotalks/fieldbus.go/pkg/monitor"
	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// Action is an operator request handled by the session.
type Action int

// Actions.
const (
	// ActionReset issues an NMT software reset.
	ActionReset Action = iota + 1
	// ActionCycleError issues an NMT cycle error.
	ActionCycleError
	// ActionClearCounters clears the error counters.
	ActionClearCounters
	// ActionExit stops the MN.
	ActionExit
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionReset:
		return "reset"
	case ActionCycleError:
		return "cycle-error"
	case ActionClearCounters:
		return "clear"
	case ActionExit:
		return "exit"
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
}

// Control is what the console operates on.
type Control interface {
	Status() monitor.Report
	Do(Action) error
	SetNodeOperationalState(slot int, state stack.NMTState) error
	SetOutputPeriod(slot, period int) error
}

// ErrUsage indicates wrong command arguments.
var ErrUsage = errors.New("usage")

type command struct {
	name    string
	aliases []string
	help    string
	run     func(ctl Control, args []string, w io.Writer) error
}

var (
	commands = []command{
		{"status", []string{"s"}, "show counters", showStatus},
		{"nodes", []string{"n"}, "show node states", showNodes},
		{"reset", []string{"r"}, "NMT software reset", doAction(ActionReset)},
		{"cycle-error", []string{"c"}, "NMT cycle error", doAction(ActionCycleError)},
		{"clear", []string{"p"}, "clear error counters", doAction(ActionClearCounters)},
		{"opstate", nil, "SLOT STATE: set the operational state of a node", setOpState},
		{"period", nil, "SLOT N: set the output period of a node", setPeriod},
	}
)

// Shell is the ishell backed operator console.
type Shell struct {
	Shell   *ishell.Shell
	Control Control
}

// New creates the console.
func New(ctl Control) *Shell {
	s := &Shell{Shell: ishell.New(), Control: ctl}
	s.Shell.SetPrompt("mn > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(s.ishellCmd(cmd))
	}
	s.Shell.AddCmd(&ishell.Cmd{
		Name:    "exit",
		Aliases: []string{"q", "quit"},
		Help:    "stop the MN",
		Func: func(c *ishell.Context) {
			if err := ctl.Do(ActionExit); err != nil {
				c.Err(err)
			}
			c.Stop()
		},
	})
	return s
}

func (s *Shell) ishellCmd(cmd command) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    cmd.name,
		Aliases: cmd.aliases,
		Help:    cmd.help,
		Func: func(c *ishell.Context) {
			if err := cmd.run(s.Control, c.Args, &printer{c}); err != nil {
				c.Err(err)
			}
		},
	}
}

type printer struct {
	c *ishell.Context
}

func (p *printer) Write(b []byte) (int, error) {
	p.c.Print(string(b))
	return len(b), nil
}

// Name implements Named.
func (s *Shell) Name() string {
	return "console"
}

// Run implements Runnable. It returns when the operator exits or ctx
// is done.
func (s *Shell) Run(ctx context.Context) error {
	return fx.RunWithContextCancel(ctx, func() {
		s.Shell.Stop()
		s.Shell.Close()
	}, func() error {
		s.Shell.Run()
		return nil
	})
}

func doAction(a Action) func(Control, []string, io.Writer) error {
	return func(ctl Control, _ []string, w io.Writer) error {
		if err := ctl.Do(a); err != nil {
			return err
		}
		fmt.Fprintln(w, "OK")
		return nil
	}
}

func showStatus(ctl Control, _ []string, w io.Writer) error {
	r := ctl.Status()
	c := r.Counters
	fmt.Fprintf(w, "MN state:         %s\n", r.LocalState)
	fmt.Fprintf(w, "restarts:         %d\n", r.Restarts)
	fmt.Fprintf(w, "cycles:           %d\n", c.Cycles)
	fmt.Fprintf(w, "data errors:      %d\n", c.DataErrors)
	fmt.Fprintf(w, "tick timeouts:    %d\n", c.TickTimeouts)
	fmt.Fprintf(w, "exchange errors:  %d\n", c.ExchangeErrors)
	fmt.Fprintf(w, "heartbeat errors: %d\n", c.HeartbeatErrors)
	fmt.Fprintf(w, "cycle errors:     %d\n", c.CycleErrors)
	fmt.Fprintf(w, "conf errors:      %d\n", c.ConfErrors)
	fmt.Fprintf(w, "stack errors:     %d\n", c.StackErrors)
	fmt.Fprintf(w, "NMT errors:       %d\n", c.NMTErrors)
	fmt.Fprintf(w, "node errors:      %d\n", c.NodeErrors)
	return nil
}

func showNodes(ctl Control, _ []string, w io.Writer) error {
	r := ctl.Status()
	fmt.Fprintf(w, "%4s %4s %-18s %-7s %-7s %-10s %-7s %-10s %6s %6s\n",
		"SLOT", "ID", "STATE", "INPUT", "EXPECT", "PHASE", "OUTPUT", "PHASE", "PERIOD", "ERRORS")
	for _, n := range r.Nodes {
		fmt.Fprintf(w, "%4d %4d %-18s %#05x %#05x %-10s %#05x %-10s %6d %6d\n",
			n.Slot, n.ID, n.State, uint32(n.Input), uint32(n.Expected), n.InputPhase,
			uint32(n.Output), n.OutputPhase, n.OutputPeriod, n.DataErrors)
	}
	return nil
}

func parseSlot(arg string) (int, error) {
	slot, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid SLOT %q: %v", arg, err)
	}
	return slot, nil
}

func setOpState(ctl Control, args []string, w io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: opstate SLOT STATE", ErrUsage)
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	state, err := stack.ParseNMTState(args[1])
	if err != nil {
		return err
	}
	if err := ctl.SetNodeOperationalState(slot, state); err != nil {
		return err
	}
	fmt.Fprintln(w, "OK")
	return nil
}

func setPeriod(ctl Control, args []string, w io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: period SLOT N", ErrUsage)
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	period, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid N %q: %v", args[1], err)
	}
	if err := ctl.SetOutputPeriod(slot, period); err != nil {
		return err
	}
	fmt.Fprintln(w, "OK")
	return nil
}
