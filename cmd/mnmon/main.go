package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	fx "github.com/robotalks/fieldbus.go/pkg/framework"
	"github.com/robotalks/fieldbus.go/pkg/monitor"
	"github.com/robotalks/fieldbus.go/pkg/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/fieldbus/"
	mnID    = "+"
	verbose bool
)

func init() {
	if val := os.Getenv("FIELDBUS_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&mnID, "id", mnID, "MN ID to watch, + for all.")
	flag.BoolVar(&verbose, "verbose", verbose, "Print node states.")
}

func printStatus(topic string, payload []byte) {
	msg, err := monitor.DecodeStatus(payload)
	if err != nil {
		log.Printf("%s: bad message: %v", topic, err)
		return
	}
	c := msg.Counters
	if c == nil {
		c = &monitor.CountersReport{}
	}
	log.Printf("%s [%s] restarts=%d cycles=%d data=%d tick=%d exchange=%d heartbeat=%d cycle=%d",
		msg.MnId, msg.LocalState, msg.Restarts, c.Cycles, c.DataErrors, c.TickTimeouts,
		c.ExchangeErrors, c.HeartbeatErrors, c.CycleErrors)
	if verbose {
		for _, n := range msg.Nodes {
			log.Printf("  node %d [%s] in=%#05x expected=%#05x (%s) out=%#05x (%s) errors=%d",
				n.Id, n.State, n.Input, n.Expected, n.InputPhase, n.Output, n.OutputPhase, n.DataErrors)
		}
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	q.Sub(mnID+"/"+monitor.TopicMeta, mqtt.Handler(func(topic string, payload []byte) {
		if len(payload) == 0 {
			log.Printf("%s: gone", strings.TrimSuffix(topic, "/"+monitor.TopicMeta))
			return
		}
		log.Printf("%s: %s", topic, string(payload))
	}))
	q.Sub(mnID+"/"+monitor.TopicStatus, mqtt.Handler(printStatus))

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return q.Close()
	}))
	runner.Wait()
}
