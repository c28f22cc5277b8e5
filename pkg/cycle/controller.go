package cycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fieldbus.go/pkg/stack"
)

// MaxNodes is the size limit of the node table.
const MaxNodes = 239

// DefaultTickTimeout bounds the wait for a cycle tick.
const DefaultTickTimeout = 100 * time.Millisecond

// Config configures a Controller.
type Config struct {
	// NodeIDs lists the controlled nodes in slot order.
	NodeIDs []uint8
	// Period is the cycle batching factor. It is both the tolerance
	// of the Verifier and the initial output period of every node.
	Period int
	// Layout is the running light geometry.
	Layout Layout
	// TickTimeout bounds WaitSyncEvent.
	TickTimeout time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Period < 1 {
		return &ConfigError{Field: "period", Err: ErrInvalidPeriod}
	}
	if err := c.Layout.Validate(); err != nil {
		return &ConfigError{Field: "layout", Err: err}
	}
	if len(c.NodeIDs) == 0 || len(c.NodeIDs) > MaxNodes {
		return &ConfigError{Field: "nodes", Err: fmt.Errorf("%d nodes configured, want 1..%d", len(c.NodeIDs), MaxNodes)}
	}
	seen := make(map[uint8]bool, len(c.NodeIDs))
	for _, id := range c.NodeIDs {
		if id == 0 || int(id) > MaxNodes {
			return &ConfigError{Field: "nodes", Err: fmt.Errorf("node ID %d out of range", id)}
		}
		if seen[id] {
			return &ConfigError{Field: "nodes", Err: fmt.Errorf("duplicated node ID %d", id)}
		}
		seen[id] = true
	}
	if c.TickTimeout < 0 {
		return &ConfigError{Field: "tick timeout", Err: fmt.Errorf("negative: %v", c.TickTimeout)}
	}
	return nil
}

// Controller runs the synchronous data cycles of the MN.
type Controller struct {
	verifier    Verifier
	sequencer   Sequencer
	layout      Layout
	tickTimeout time.Duration

	image    stack.SyncImage
	counters *Counters
	nodes    []*Node
	cycle    uint64

	statusLock sync.RWMutex
	status     []NodeStatus
}

// New validates conf, allocates the process images and creates the
// node table. counters may be shared across controllers of the same
// session; nil creates fresh counters.
func New(conf Config, image stack.SyncImage, counters *Counters) (*Controller, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if counters == nil {
		counters = NewCounters()
	}
	c := &Controller{
		verifier:    Verifier{Layout: conf.Layout, Period: conf.Period},
		sequencer:   Sequencer{Layout: conf.Layout},
		layout:      conf.Layout,
		tickTimeout: conf.TickTimeout,
		image:       image,
		counters:    counters,
		nodes:       make([]*Node, len(conf.NodeIDs)),
		status:      make([]NodeStatus, len(conf.NodeIDs)),
	}
	if c.tickTimeout == 0 {
		c.tickTimeout = DefaultTickTimeout
	}
	for n, id := range conf.NodeIDs {
		c.nodes[n] = NewNode(id, conf.Period)
	}
	c.publishStatus()

	size := len(c.nodes) * conf.Layout.Bytes()
	glog.Infof("allocating process images: in=%d out=%d", size, size)
	if err := image.AllocProcessImage(size, size); err != nil {
		return nil, fmt.Errorf("allocate process image: %w", err)
	}
	return c, nil
}

// Counters returns the session counters.
func (c *Controller) Counters() *Counters {
	return c.counters
}

// ClearCounters resets the error counters including per node tallies.
func (c *Controller) ClearCounters() {
	c.counters.Clear()
	for _, n := range c.nodes {
		n.clearDataErrors()
	}
}

// NumNodes returns the number of configured slots.
func (c *Controller) NumNodes() int {
	return len(c.nodes)
}

// SlotOf finds the slot of a node ID.
func (c *Controller) SlotOf(id uint8) (int, bool) {
	for slot, n := range c.nodes {
		if n.ID == id {
			return slot, true
		}
	}
	return -1, false
}

// SetNodeOperationalState records the NMT state of the node in slot.
func (c *Controller) SetNodeOperationalState(slot int, state stack.NMTState) error {
	if slot < 0 || slot >= len(c.nodes) {
		return fmt.Errorf("slot %d: %w", slot, ErrNoSuchNode)
	}
	c.nodes[slot].SetOperationalState(state)
	return nil
}

// SetNodeOperationalStateByID records the NMT state of a node by ID.
func (c *Controller) SetNodeOperationalStateByID(id uint8, state stack.NMTState) error {
	slot, ok := c.SlotOf(id)
	if !ok {
		return fmt.Errorf("node %d: %w", id, ErrNoSuchNode)
	}
	return c.SetNodeOperationalState(slot, state)
}

// SetOutputPeriod changes how often the outputs of a node advance.
func (c *Controller) SetOutputPeriod(slot, period int) error {
	if period < 1 {
		return ErrInvalidPeriod
	}
	if slot < 0 || slot >= len(c.nodes) {
		return fmt.Errorf("slot %d: %w", slot, ErrNoSuchNode)
	}
	c.nodes[slot].SetOutputPeriod(period)
	return nil
}

// Nodes returns the node states as of the last completed cycle.
func (c *Controller) Nodes() []NodeStatus {
	c.statusLock.RLock()
	defer c.statusLock.RUnlock()
	return append([]NodeStatus(nil), c.status...)
}

// RunCycle runs exactly one cycle. It must not be called concurrently.
func (c *Controller) RunCycle() error {
	if err := c.image.WaitSyncEvent(c.tickTimeout); err != nil {
		if errors.Is(err, stack.ErrTimeout) {
			c.counters.Inc(CounterTickTimeouts)
			return fmt.Errorf("%w after %v", ErrTickTimeout, c.tickTimeout)
		}
		return fmt.Errorf("wait cycle tick: %w", err)
	}
	if err := c.image.ExchangeImageOut(); err != nil {
		c.counters.Inc(CounterExchangeErrors)
		return &ExchangeError{Dir: Outbound, Err: err}
	}

	in, out := c.image.ImageOut(), c.image.ImageIn()
	size := c.layout.Bytes()
	if need := len(c.nodes) * size; len(in) < need || len(out) < need {
		c.counters.Inc(CounterExchangeErrors)
		return &ExchangeError{Dir: Outbound, Err: fmt.Errorf("%w: in=%d out=%d, want %d",
			ErrShortImage, len(in), len(out), need)}
	}

	c.cycle++
	c.counters.Inc(CounterCycles)

	for slot, n := range c.nodes {
		offset := slot * size
		n.PrevInput, n.Input = n.Input, c.layout.Read(in, offset)
		switch verdict := c.verifier.Verify(n, n.Input); verdict {
		case VerdictFault:
			c.counters.Inc(CounterDataErrors)
			glog.Warningf("node %d: data fault in %s: input %#x expected %#x",
				n.ID, n.InputPhase, uint32(n.Input), uint32(n.Expected))
		case VerdictSkipped:
		default:
			if glog.V(4) {
				glog.Infof("node %d: cycle %d %s: input %#x", n.ID, c.cycle, verdict, uint32(n.Input))
			}
		}
		if period := n.OutputPeriod(); period > 0 && c.cycle%uint64(period) == 0 {
			c.sequencer.Advance(n)
		}
		c.layout.Write(out, offset, n.Output)
	}
	c.publishStatus()

	if err := c.image.ExchangeImageIn(); err != nil {
		c.counters.Inc(CounterExchangeErrors)
		return &ExchangeError{Dir: Inbound, Err: err}
	}
	return nil
}

func (c *Controller) publishStatus() {
	c.statusLock.Lock()
	for slot, n := range c.nodes {
		c.status[slot] = n.Status(slot)
	}
	c.statusLock.Unlock()
}
