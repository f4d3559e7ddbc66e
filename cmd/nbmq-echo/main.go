// Command nbmq-echo is a minimal Dealer<->Dealer demo: run it once with
// -bind to act as a server that sends every received message back out
// through the Dealer's round-robin send (with a single connected client,
// that is the sender), and once with -connect to send stdin lines one at a
// time, each after the previous echo has arrived, and print whatever comes
// back. Prometheus metrics for the socket are served on -metrics-addr.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/naatebarber/nbmq"
	"github.com/naatebarber/nbmq/metrics"
	"github.com/naatebarber/nbmq/nbmqerr"
)

func main() {
	bindAddr := flag.String("bind", "", "listen as an echo server on host:port")
	connectAddr := flag.String("connect", "", "connect to an echo server at host:port")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on host:port (disabled if empty)")
	flag.Parse()

	if (*bindAddr == "") == (*connectAddr == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -bind or -connect is required")
		os.Exit(1)
	}

	opt := nbmq.DefaultOpt()
	builder := nbmq.NewBuilder(nbmq.KindDealer, opt)

	var socket *nbmq.Socket
	var err error
	if *bindAddr != "" {
		socket, err = builder.Bind(*bindAddr)
	} else {
		socket, err = builder.Connect(*connectAddr)
	}
	if err != nil {
		logrus.Fatalf("nbmq-echo: %v", err)
	}

	if *metricsAddr != "" {
		name := xid.New().String()
		collector := metrics.NewSocketCollector("nbmq_echo", prometheus.Labels{})
		collector.Add(name, socket.Metrics())
		prometheus.MustRegister(collector)

		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logrus.Infof("nbmq-echo: serving metrics on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logrus.WithError(err).Error("nbmq-echo: metrics server stopped")
			}
		}()
	}

	if *bindAddr != "" {
		runServer(socket)
	} else {
		runClient(socket)
	}
}

func runServer(socket *nbmq.Socket) {
	logrus.Infof("nbmq-echo: listening")
	for {
		if err := socket.Tick(); err != nil {
			logrus.WithError(err).Warn("nbmq-echo: tick failed")
		}

		for {
			parts, err := socket.Recv()
			if err == nbmqerr.ErrWouldBlock {
				break
			}
			if err != nil {
				logrus.WithError(err).Warn("nbmq-echo: recv failed")
				break
			}
			if err := socket.Send(parts); err != nil {
				logrus.WithError(err).Warn("nbmq-echo: echo send failed")
			}
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func runClient(socket *nbmq.Socket) {
	scanner := bufio.NewScanner(os.Stdin)
	pending := false

	for {
		if err := socket.Tick(); err != nil {
			logrus.WithError(err).Warn("nbmq-echo: tick failed")
		}

		if !pending && scanner.Scan() {
			line := scanner.Text()
			if err := socket.Send([][]byte{[]byte(line)}); err != nil {
				logrus.WithError(err).Warn("nbmq-echo: send failed")
			} else {
				pending = true
			}
		}

		parts, err := socket.Recv()
		switch err {
		case nil:
			for _, p := range parts {
				fmt.Println(string(p))
			}
			pending = false
		case nbmqerr.ErrWouldBlock:
		default:
			logrus.WithError(err).Warn("nbmq-echo: recv failed")
		}

		time.Sleep(5 * time.Millisecond)
	}
}
