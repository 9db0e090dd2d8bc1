package command

import (
	"fmt"
	"time"

	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/markvandendool/roxy-sub003/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewPingCommand() *cobra.Command {
	var (
		count    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the bus owner is draining its inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadBusConfig()

			if err != nil {
				return
			}

			c, err := bus.Connect(cfg, bus.WithLogger(logger()))

			if err != nil {
				return
			}

			defer c.Close()

			ctx, stop := signalContext()
			defer stop()

			lost := 0

			for i := 0; i < count && ctx.Err() == nil; i++ {
				if i > 0 {
					select {
					case <-ctx.Done():
						continue
					case <-time.After(interval):
					}
				}

				rtt, err := c.Ping(cfg.PingTimeout)

				if errors.Is(err, bus.ErrNoPong) {
					fmt.Fprintf(cmd.OutOrStdout(), "seq=%d timeout after %s\n", i, cfg.PingTimeout)
					lost++
					continue
				}

				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "seq=%d time=%s\n", i, rtt)
			}

			if lost > 0 {
				return errors.Wrapf(bus.ErrNoPong, "%d of %d pings lost", lost, count)
			}

			return
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of pings")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "pause between pings")
	cmd.Flags().Duration("timeout", bus.DefaultPingTimeout, "give up on a ping after this long")

	viper.BindPFlag(config.KeyBusPingTimeout, cmd.Flags().Lookup("timeout"))
	return cmd
}
