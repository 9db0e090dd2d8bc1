package command

import (
	"context"

	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/markvandendool/roxy-sub003/config"
	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewServeCommand() *cobra.Command {
	var echo bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Create the bus and drain its inbox until interrupted",
		Long: `Create the bus and drain its inbox until interrupted.

Pings are answered, every other frame is logged. With --echo, commands are
answered with a response carrying the same payload. Both rings are destroyed
on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadBusConfig()

			if err != nil {
				return
			}

			log := logger()
			host, err := bus.Host(cfg, bus.WithLogger(log))

			if err != nil {
				return
			}

			defer func() {
				if cerr := host.Close(); cerr != nil {
					log.WithError(cerr).Warn("closing bus")
				}
			}()

			ctx, stop := signalContext()
			defer stop()

			log.WithField("name", cfg.Name).Info("serving, interrupt to stop")

			err = host.Serve(ctx, bus.HandlerFunc(func(ctx context.Context, f frame.Frame) error {
				log.WithFields(logrus.Fields{
					"type":      f.Type.String(),
					"length":    len(f.Payload),
					"timestamp": f.Timestamp,
				}).Info(printablePayload(f.Payload, 128))

				if echo && f.Type == frame.TypeCommand {
					return host.WriteOrWait(frame.TypeResponse, f.Payload, cfg.PingTimeout)
				}

				return nil
			}))

			log.Info("shutting down")
			return
		},
	}

	cmd.Flags().BoolVar(&echo, "echo", false, "answer commands with their own payload")
	cmd.Flags().Int64("size", arena.DefaultSize, "inbox size in bytes, header included")
	cmd.Flags().Int64("reply-size", bus.DefaultReplySize, "reply ring size in bytes, header included")
	cmd.Flags().Duration("stall-after", bus.DefaultConfig().StallAfter, "report a claimed but unpublished frame after this long")

	viper.BindPFlag(config.KeyBusSize, cmd.Flags().Lookup("size"))
	viper.BindPFlag(config.KeyBusReplySize, cmd.Flags().Lookup("reply-size"))
	viper.BindPFlag(config.KeyBusStallAfter, cmd.Flags().Lookup("stall-after"))
	return cmd
}
