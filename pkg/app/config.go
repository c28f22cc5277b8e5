package app

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robotalks/fieldbus.go/pkg/cycle"
	"github.com/robotalks/fieldbus.go/pkg/env"
)

// Config defines the options of an MN.
type Config struct {
	// StackURL selects the stack: sim:// runs the simulated stack in
	// process, tcp://, unix:// or ws:// connect a kernel stack.
	StackURL string
	// CycleLen is the cycle length of the simulated stack.
	CycleLen time.Duration
	// SimLatency is the echo latency of simulated nodes in cycles.
	SimLatency int
	// CommandTimeout bounds commands to a remote kernel stack.
	CommandTimeout time.Duration

	// AppCycle is the number of cycles per output step.
	AppCycle int
	// Nodes lists the controlled node IDs, e.g. "1,2,5-8".
	Nodes string
	// Channels is the number of digital channels per node.
	Channels int
	// TickTimeout bounds the wait for a cycle tick.
	TickTimeout time.Duration
	// MaxCycleFailures is the number of consecutive failed cycles
	// before the stack is reset.
	MaxCycleFailures int
	// RestartDelay is the pause before the stack is restarted.
	RestartDelay time.Duration

	// MQTTBrokerURL enables status publishing when set.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string
	// MNID identifies the MN in published topics.
	MNID string
	// MonitorInterval is the status reporting interval.
	MonitorInterval time.Duration
	// Console enables the interactive console.
	Console bool
}

const appID = "fieldbus.go"

var defaultConfig = Config{
	StackURL:         "sim://",
	CycleLen:         5 * time.Millisecond,
	CommandTimeout:   time.Second,
	AppCycle:         1,
	Nodes:            "1",
	Channels:         cycle.DefaultLayout.Channels,
	TickTimeout:      cycle.DefaultTickTimeout,
	MaxCycleFailures: 10,
	RestartDelay:     time.Second,
	MonitorInterval:  100 * time.Millisecond,
	Console:          true,
}

func init() {
	if val := os.Getenv("FIELDBUS_STACK_URL"); val != "" {
		defaultConfig.StackURL = val
	}
	if val := os.Getenv("FIELDBUS_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("FIELDBUS_NODES"); val != "" {
		defaultConfig.Nodes = val
	}
	if val := os.Getenv("FIELDBUS_MN_ID"); val != "" {
		defaultConfig.MNID = val
	} else {
		defaultConfig.MNID = env.ShortMachineID(appID)
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.StackURL, "stack", defaultConfig.StackURL, "Stack URL: sim://, tcp://host:port, unix:///path, ws://host:port/path")
	flag.DurationVar(&defaultConfig.CycleLen, "cycle-len", defaultConfig.CycleLen, "Cycle length of the simulated stack")
	flag.IntVar(&defaultConfig.SimLatency, "sim-latency", defaultConfig.SimLatency, "Echo latency of simulated nodes in cycles")
	flag.DurationVar(&defaultConfig.CommandTimeout, "cmd-timeout", defaultConfig.CommandTimeout, "Timeout of kernel stack commands")
	flag.IntVar(&defaultConfig.AppCycle, "app-cycle", defaultConfig.AppCycle, "Number of cycles per output step")
	flag.StringVar(&defaultConfig.Nodes, "nodes", defaultConfig.Nodes, "Controlled node IDs, e.g. 1,2,5-8")
	flag.IntVar(&defaultConfig.Channels, "channels", defaultConfig.Channels, "Digital channels per node")
	flag.DurationVar(&defaultConfig.TickTimeout, "tick-timeout", defaultConfig.TickTimeout, "Timeout waiting for a cycle tick")
	flag.IntVar(&defaultConfig.MaxCycleFailures, "max-cycle-failures", defaultConfig.MaxCycleFailures, "Consecutive failed cycles before reset")
	flag.DurationVar(&defaultConfig.RestartDelay, "restart-delay", defaultConfig.RestartDelay, "Delay before restarting the stack")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL for status publishing")
	flag.StringVar(&defaultConfig.MNID, "id", defaultConfig.MNID, "MN ID")
	flag.DurationVar(&defaultConfig.MonitorInterval, "monitor-interval", defaultConfig.MonitorInterval, "Status reporting interval")
	flag.BoolVar(&defaultConfig.Console, "console", defaultConfig.Console, "Run the interactive console")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NodeIDs parses Nodes.
func (c *Config) NodeIDs() ([]uint8, error) {
	var ids []uint8
	for _, item := range strings.Split(c.Nodes, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		first, last := item, item
		if n := strings.Index(item, "-"); n > 0 {
			first, last = item[:n], item[n+1:]
		}
		from, err := strconv.ParseUint(first, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid node ID %q", first)
		}
		to, err := strconv.ParseUint(last, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid node ID %q", last)
		}
		if to < from {
			return nil, fmt.Errorf("invalid node range %q", item)
		}
		for id := from; id <= to; id++ {
			ids = append(ids, uint8(id))
		}
	}
	return ids, nil
}

// CycleConfig creates the Controller configuration.
func (c *Config) CycleConfig() (cycle.Config, error) {
	ids, err := c.NodeIDs()
	if err != nil {
		return cycle.Config{}, &cycle.ConfigError{Field: "nodes", Err: err}
	}
	conf := cycle.Config{
		NodeIDs:     ids,
		Period:      c.AppCycle,
		Layout:      cycle.LayoutFor(c.Channels),
		TickTimeout: c.TickTimeout,
	}
	return conf, conf.Validate()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.StackURL)
	if err != nil {
		return &cycle.ConfigError{Field: "stack", Err: err}
	}
	switch u.Scheme {
	case "sim", "tcp", "unix", "ws", "wss":
	default:
		return &cycle.ConfigError{Field: "stack", Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if _, err := c.CycleConfig(); err != nil {
		return err
	}
	if c.MaxCycleFailures < 1 {
		return &cycle.ConfigError{Field: "max cycle failures", Err: fmt.Errorf("%d, want >= 1", c.MaxCycleFailures)}
	}
	if c.MQTTBrokerURL != "" && c.MNID == "" {
		return &cycle.ConfigError{Field: "id", Err: fmt.Errorf("required for MQTT publishing")}
	}
	return nil
}

// MustValidate fails on an invalid configuration.
func (c *Config) MustValidate() *Config {
	if err := c.Validate(); err != nil {
		log.Fatalln(err)
	}
	return c
}
