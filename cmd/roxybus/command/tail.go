package command

import (
	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/spf13/cobra"
)

func NewTailCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print frames from the reply ring as they arrive",
		Long: `Print frames from the reply ring as they arrive.

tail takes the reply ring's reader slot, so no other client can read replies
while it runs.`,
		Args: cobra.NoArgs,
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

			for n := 0; ctx.Err() == nil && (count <= 0 || n < count); {
				f, ok, err := c.Read(cfg.ReadTimeout)

				if err != nil {
					return err
				}

				if ok {
					printFrame(cmd.OutOrStdout(), f)
					n++
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many frames (0: until interrupted)")
	return cmd
}
