package command

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gosuri/uilive"
	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/markvandendool/roxy-sub003/ring"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewMonitorCommand() *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show live statistics of both bus rings",
		Long: `Show live statistics of both bus rings.

monitor only attaches to the rings; it never reads frames or takes a reader
slot. When stdout is not a terminal, one log line per ring is written on
every tick instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadBusConfig()

			if err != nil {
				return
			}

			rings, err := attachRings(cfg)

			if err != nil {
				return
			}

			defer func() {
				for _, r := range rings {
					r.Arena().Close()
				}
			}()

			if once {
				for _, r := range rings {
					printStats(cmd.OutOrStdout(), r.Stats())
				}

				return
			}

			ctx, stop := signalContext()
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
				for {
					for _, r := range rings {
						logStats(r.Stats())
					}

					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
					}
				}
			}

			writer := uilive.New()
			writer.Out = cmd.OutOrStdout()
			lines := make([]io.Writer, len(rings))

			for i := range rings {
				if i == 0 {
					lines[i] = writer
				} else {
					lines[i] = writer.Newline()
				}
			}

			// start listening for updates and render
			writer.Start()
			defer writer.Stop()

			for {
				for i, r := range rings {
					printStats(lines[i], r.Stats())
				}

				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "refresh interval")
	cmd.Flags().BoolVar(&once, "once", false, "print the statistics once and exit")
	return cmd
}

// attachRings maps the inbox and, if it exists, the reply ring.
func attachRings(cfg bus.Config) (rings []*ring.Ring, err error) {
	opts := []arena.Option{arena.WithDir(cfg.Dir)}
	for i, name := range []string{cfg.Name, cfg.ReplyRing()} {
		a, aerr := arena.Attach(name, opts...)

		if i > 0 && errors.Is(aerr, arena.ErrNotFound) {
			break
		}

		if aerr != nil {
			for _, r := range rings {
				r.Arena().Close()
			}

			return nil, aerr
		}

		rings = append(rings, ring.New(a, ring.WithLogger(logger())))
	}

	return
}

func printStats(w io.Writer, s ring.Stats) {
	poisoned := ""

	if s.Poisoned {
		poisoned = "  POISONED"
	}

	fmt.Fprintf(w, "%-24s used %10d / %-10d  frames %8d  written %10d  read %10d  full %6d  wraps %6d  reader %6d%s\n",
		s.Name, s.Used, s.Capacity, s.Backlog, s.WriteSeq, s.ReadSeq, s.Full, s.Wraps, s.ReaderPID, poisoned)
}

func logStats(s ring.Stats) {
	entry := logger().WithFields(logrus.Fields{
		"ring":         s.Name,
		"capacity":     s.Capacity,
		"used":         s.Used,
		"backlog":      s.Backlog,
		"write_seq":    s.WriteSeq,
		"read_seq":     s.ReadSeq,
		"write_offset": s.WriteOffset,
		"read_offset":  s.ReadOffset,
		"full":         s.Full,
		"wraps":        s.Wraps,
		"reader_pid":   s.ReaderPID,
	})

	if s.Poisoned {
		entry.Error("ring poisoned")
		return
	}

	entry.Info("ring stats")
}
