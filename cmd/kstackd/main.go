package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fieldbus.go/pkg/app"
	fx "github.com/robotalks/fieldbus.go/pkg/framework"
	"github.com/robotalks/fieldbus.go/pkg/link"
	"github.com/robotalks/fieldbus.go/pkg/stack/sim"
)

var (
	listenURL = "tcp://:7420"
	nodes     = "1"
	cycleLen  = 5 * time.Millisecond
	latency   = 0
)

func init() {
	if val := os.Getenv("FIELDBUS_LINK_URL"); val != "" {
		listenURL = val
	}
	if val := os.Getenv("FIELDBUS_NODES"); val != "" {
		nodes = val
	}
	flag.StringVar(&listenURL, "listen", listenURL, "Listen URL: tcp://host:port, unix:///path, ws://host:port/path")
	flag.StringVar(&nodes, "nodes", nodes, "Simulated node IDs, e.g. 1,2,5-8")
	flag.DurationVar(&cycleLen, "cycle-len", cycleLen, "Cycle length")
	flag.IntVar(&latency, "latency", latency, "Echo latency of simulated nodes in cycles")
}

func main() {
	flag.Parse()

	ids, err := (&app.Config{Nodes: nodes}).NodeIDs()
	if err != nil {
		log.Fatalln(err)
	}
	backend := sim.New(sim.Config{NodeIDs: ids, CycleLen: cycleLen, Latency: latency})
	srv := link.NewServer(backend)

	runner := fx.NewRunner().HandleSignals()
	ln, err := link.Listen(listenURL, func(rw link.PacketReadWriter) {
		glog.Info("MN connected")
		err := srv.Serve(runner.Context, rw)
		glog.Infof("MN disconnected: %v", err)
	})
	if err != nil {
		log.Fatalln(err)
	}
	glog.Infof("kernel stack listening on %s", ln.Addr())

	runner.Go(
		fx.NamedRun("stack", backend),
		fx.NamedRun("listener", fx.RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ln.Close()
		})),
	)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
