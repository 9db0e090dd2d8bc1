package command

import (
	"io"
	"time"

	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewSendCommand() *cobra.Command {
	var (
		wait  time.Duration
		reply time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send TYPE [PAYLOAD]",
		Short: "Write one frame to the bus inbox",
		Long: `Write one frame to the bus inbox.

TYPE is a registered name (ping, pong, command, response, event, state) or a
number. Without PAYLOAD, or with "-", the payload is read from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			t, err := frame.ParseType(args[0])

			if err != nil {
				return
			}

			var payload []byte

			if len(args) == 2 && args[1] != "-" {
				payload = []byte(args[1])
			} else if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return errors.Wrap(err, "read payload")
			}

			cfg, err := loadBusConfig()

			if err != nil {
				return
			}

			cfg.WriteOnly = reply <= 0
			c, err := bus.Connect(cfg, bus.WithLogger(logger()))

			if err != nil {
				return
			}

			defer c.Close()

			if err = c.WriteOrWait(t, payload, wait); err != nil {
				return
			}

			if reply <= 0 {
				return
			}

			f, ok, err := c.Read(reply)

			if err != nil {
				return
			}

			if !ok {
				return errors.Errorf("no reply within %s", reply)
			}

			printFrame(cmd.OutOrStdout(), f)
			return
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "keep retrying this long while the ring is full")
	cmd.Flags().DurationVar(&reply, "reply", 0, "wait this long for one reply frame and print it")
	return cmd
}
