package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/fieldbus.go/pkg/cycle"
)

func TestNodeIDs(t *testing.T) {
	testCases := []struct {
		nodes  string
		expect []uint8
		fails  bool
	}{
		{nodes: "1", expect: []uint8{1}},
		{nodes: "1, 3,5-7", expect: []uint8{1, 3, 5, 6, 7}},
		{nodes: "", expect: nil},
		{nodes: "x", fails: true},
		{nodes: "7-5", fails: true},
		{nodes: "256", fails: true},
	}
	for _, tc := range testCases {
		t.Run(tc.nodes, func(t *testing.T) {
			conf := NewConfig()
			conf.Nodes = tc.nodes
			ids, err := conf.NodeIDs()
			if tc.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expect, ids)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Validate())

	cc, err := conf.CycleConfig()
	require.NoError(t, err)
	assert.Equal(t, cycle.DefaultLayout, cc.Layout)
	assert.Equal(t, 1, cc.Period)

	invalid := []func(*Config){
		func(c *Config) { c.StackURL = "serial:///dev/ttyS0" },
		func(c *Config) { c.AppCycle = 0 },
		func(c *Config) { c.Nodes = "" },
		func(c *Config) { c.Channels = 7 },
		func(c *Config) { c.MaxCycleFailures = 0 },
		func(c *Config) { c.MQTTBrokerURL, c.MNID = "mqtt://localhost:1883", "" },
	}
	for n, modify := range invalid {
		conf := NewConfig()
		modify(conf)
		err := conf.Validate()
		var confErr *cycle.ConfigError
		assert.Truef(t, errors.As(err, &confErr), "case %d: %v", n, err)
	}

	conf = NewConfig()
	conf.AppCycle = 0
	assert.True(t, errors.Is(conf.Validate(), cycle.ErrInvalidPeriod))
}

func TestNewConfigCopiesDefaults(t *testing.T) {
	conf := NewConfig()
	conf.Nodes = "9"
	assert.NotEqual(t, "9", Default().Nodes)
	assert.NotEmpty(t, Default().MNID)
}
