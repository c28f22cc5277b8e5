package cycle

import "sync/atomic"

// Counter identifies one of the session counters.
type Counter int

// Counters.
const (
	// CounterCycles counts cycles processed.
	CounterCycles Counter = iota
	// CounterDataErrors counts data faults declared by the Verifier.
	CounterDataErrors
	// CounterTickTimeouts counts cycles aborted waiting for the tick.
	CounterTickTimeouts
	// CounterExchangeErrors counts cycles aborted by image exchange.
	CounterExchangeErrors
	// CounterHeartbeatErrors counts losses of the kernel stack.
	CounterHeartbeatErrors
	// CounterCycleErrors counts cycle errors reported by the stack.
	CounterCycleErrors
	// CounterConfErrors counts configuration errors.
	CounterConfErrors
	// CounterStackErrors counts generic stack errors.
	CounterStackErrors
	// CounterNMTErrors counts network management errors.
	CounterNMTErrors
	// CounterNodeErrors counts errors reported for nodes.
	CounterNodeErrors

	numCounters
)

// Counters are monotonic session counters.
// Increments happen on the cycle goroutine and the supervisor, reads
// from anywhere; reads may be stale.
type Counters struct {
	values [numCounters]uint64
}

// NewCounters creates zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

// Inc increments a counter.
func (c *Counters) Inc(counter Counter) {
	atomic.AddUint64(&c.values[counter], 1)
}

// Get reads a counter.
func (c *Counters) Get(counter Counter) uint64 {
	return atomic.LoadUint64(&c.values[counter])
}

// Clear resets all counters except the cycle count.
func (c *Counters) Clear() {
	for n := range c.values {
		if Counter(n) != CounterCycles {
			atomic.StoreUint64(&c.values[n], 0)
		}
	}
}

// Snapshot is a read-only copy of the counters.
type Snapshot struct {
	Cycles          uint64
	DataErrors      uint64
	TickTimeouts    uint64
	ExchangeErrors  uint64
	HeartbeatErrors uint64
	CycleErrors     uint64
	ConfErrors      uint64
	StackErrors     uint64
	NMTErrors       uint64
	NodeErrors      uint64
}

// Snapshot copies the counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Cycles:          c.Get(CounterCycles),
		DataErrors:      c.Get(CounterDataErrors),
		TickTimeouts:    c.Get(CounterTickTimeouts),
		ExchangeErrors:  c.Get(CounterExchangeErrors),
		HeartbeatErrors: c.Get(CounterHeartbeatErrors),
		CycleErrors:     c.Get(CounterCycleErrors),
		ConfErrors:      c.Get(CounterConfErrors),
		StackErrors:     c.Get(CounterStackErrors),
		NMTErrors:       c.Get(CounterNMTErrors),
		NodeErrors:      c.Get(CounterNodeErrors),
	}
}
