// Package command holds the roxybus subcommands.
package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/markvandendool/roxy-sub003/config"
	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func loadBusConfig() (cfg bus.Config, err error) {
	c, err := config.Load(viper.GetViper())

	if err != nil {
		return
	}

	return c.Bus, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func logger() logrus.FieldLogger {
	return logrus.StandardLogger()
}

// printablePayload quotes text payloads and shows binary ones in hex,
// truncated to max bytes.
func printablePayload(p []byte, max int) string {
	suffix := ""

	if max > 0 && len(p) > max {
		p = p[:max]
		suffix = "..."
	}

	if utf8.Valid(p) {
		return strconv.Quote(string(p)) + suffix
	}

	return fmt.Sprintf("%x%s", p, suffix)
}

func printFrame(w io.Writer, f frame.Frame) {
	ts := time.Unix(0, int64(f.Timestamp)).Format(time.RFC3339Nano)
	fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", ts, f.Type, len(f.Payload), printablePayload(f.Payload, 256))
}
