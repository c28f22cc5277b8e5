package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/robotalks/fieldbus.go/pkg/app"
	"github.com/robotalks/fieldbus.go/pkg/console"
	fx "github.com/robotalks/fieldbus.go/pkg/framework"
	"github.com/robotalks/fieldbus.go/pkg/monitor"
)

func init() {
	app.SetupFlags()
}

func main() {
	flag.Parse()

	conf := app.NewConfig().MustValidate()
	session := app.NewSession(conf)

	sinks := []monitor.Sink{&monitor.LogSink{}}
	if conf.MQTTBrokerURL != "" {
		pub, err := monitor.NewPublisher(conf.MQTTBrokerURL, session.Meta())
		if err != nil {
			log.Fatalf("create MQTT publisher error: %v", err)
		}
		sinks = append(sinks, pub)
	}
	loop := fx.NewLoop(conf.MonitorInterval).Add(monitor.New(session, sinks...))

	runner := fx.NewRunner().HandleSignals()
	runner.Go(session, fx.NamedRun("monitor", loop))
	if conf.Console {
		runner.Go(console.New(session))
	}
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
