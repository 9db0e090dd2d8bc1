package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dir, err := os.MkdirTemp("", "roxybus-example")

	if err != nil {
		logrus.Fatal(err)
	}

	defer os.RemoveAll(dir)

	cfg := bus.DefaultConfig()
	cfg.Dir = dir
	cfg.Name = "/roxy_example"
	cfg.Size = arena.HeaderSize + 1<<20
	cfg.ReplySize = arena.HeaderSize + 1<<16

	host, err := bus.Host(cfg)

	if err != nil {
		logrus.Fatal(err)
	}

	defer host.Close()

	client, err := bus.Connect(cfg)

	if err != nil {
		logrus.Error(err)
		return
	}

	defer client.Close()

	go runServer(ctx, host)
	runClient(ctx, client)
}

func runServer(ctx context.Context, host *bus.Client) {
	logrus.Info("server: started")

	err := host.Serve(ctx, bus.HandlerFunc(func(ctx context.Context, f frame.Frame) error {
		stats(host, "server", "READ", string(f.Payload))

		if f.Type != frame.TypeCommand {
			return nil
		}

		return host.Write(frame.TypeResponse, []byte(strings.ToUpper(string(f.Payload))))
	}))

	if err != nil {
		logrus.WithError(err).Error("server: stopped")
		return
	}

	logrus.Info("server: closing")
}

func runClient(ctx context.Context, client *bus.Client) {
	logrus.Info("client: started")

	rtt, err := client.Ping(time.Second)

	if err != nil {
		logrus.WithError(err).Error("client: ping")
		return
	}

	logrus.WithField("rtt", rtt).Info("client: server is alive")

	for ctx.Err() == nil {
		msg := fmt.Sprintf("%010d", time.Now().Unix())

		if err = client.WriteOrWait(frame.TypeCommand, []byte(msg), time.Second); err != nil {
			logrus.WithError(err).Error("client: write")
			return
		}

		stats(client, "client", "WRITE", msg)
		f, ok, err := client.Read(time.Second)

		if err != nil {
			logrus.WithError(err).Error("client: read")
			return
		}

		if ok {
			stats(client, "client", "REPLY", string(f.Payload))
		}

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}

	logrus.Info("client: closing")
}

func stats(c *bus.Client, who, what, msg string) {
	s := c.Writer().Stats()
	logrus.Infof("%s: %s - %5s | %02d frames pending on %s (%d bytes used)", who, msg, what, s.Backlog, s.Name, s.Used)
}
