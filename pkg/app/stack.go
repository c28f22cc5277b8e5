package app

import (
	"fmt"
	"net/url"

	"github.com/robotalks/fieldbus.go/pkg/link"
	"github.com/robotalks/fieldbus.go/pkg/stack"
	"github.com/robotalks/fieldbus.go/pkg/stack/sim"
)

// StackFactory opens the stack for a session run.
type StackFactory func(conf *Config) (stack.Stack, error)

// OpenStack opens the stack selected by conf.StackURL.
func OpenStack(conf *Config) (stack.Stack, error) {
	u, err := url.Parse(conf.StackURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "sim" {
		return link.Open(conf.StackURL, conf.CommandTimeout)
	}
	ids, err := conf.NodeIDs()
	if err != nil {
		return nil, err
	}
	if conf.CycleLen <= 0 {
		return nil, fmt.Errorf("simulated stack requires a cycle length")
	}
	return sim.New(sim.Config{
		NodeIDs:  ids,
		CycleLen: conf.CycleLen,
		Latency:  conf.SimLatency,
	}), nil
}
