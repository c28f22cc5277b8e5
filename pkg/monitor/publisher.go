package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/fieldbus.go/pkg/mqtt"
)

// Topic suffixes under <prefix><mn-id>/.
const (
	TopicStatus = "status"
	TopicMeta   = "meta"
)

// ErrNotConnected indicates the broker is not connected.
var ErrNotConnected = errors.New("not connected")

// Meta describes an MN. It is published retained while the MN runs.
type Meta struct {
	MNID     string `json:"mn_id"`
	Nodes    []int  `json:"nodes"`
	Period   int    `json:"period"`
	Channels int    `json:"channels"`
	Stack    string `json:"stack,omitempty"`
}

// Publisher publishes reports as StatusReport over MQTT.
type Publisher struct {
	Queue *mqtt.Queue
	MNID  string

	metaJSON []byte
}

// NewPublisher creates a Publisher for brokerURL.
func NewPublisher(brokerURL string, meta Meta) (*Publisher, error) {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+meta.MNID+"/"+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("fieldbus:" + meta.MNID)
	}
	p := &Publisher{MNID: meta.MNID, metaJSON: metaJSON}
	p.Queue = mqtt.NewQueue(opts, topicPrefix)
	p.Queue.OnConnect = func(*mqtt.Queue) { p.announce() }
	return p, nil
}

// Name implements Named.
func (p *Publisher) Name() string {
	return "mqtt-publisher"
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	p.Queue.Connect()
	<-ctx.Done()
	p.Queue.PubWith(p.MNID+"/"+TopicMeta, nil, 1, true).Wait()
	p.Queue.Close()
	return ctx.Err()
}

func (p *Publisher) announce() {
	glog.V(2).Infof("announcing %s", p.MNID)
	p.Queue.PubWith(p.MNID+"/"+TopicMeta, p.metaJSON, 1, true)
}

// Report implements Sink. Reports are dropped while disconnected.
func (p *Publisher) Report(_ context.Context, r *Report) error {
	if !p.Queue.Client.IsConnected() {
		return fmt.Errorf("publish status: %w", ErrNotConnected)
	}
	payload, err := proto.Marshal(r.Proto(p.MNID))
	if err != nil {
		return err
	}
	p.Queue.Pub(p.MNID+"/"+TopicStatus, payload)
	return nil
}

// DecodeStatus decodes a StatusReport payload.
func DecodeStatus(payload []byte) (*StatusReport, error) {
	var msg StatusReport
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
