package command

import (
	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewDestroyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Unlink both bus rings after their owner crashed",
		Long: `Unlink both bus rings after their owner crashed.

Processes that still have a ring mapped keep using the old memory; the next
serve creates fresh rings that they will not see until they reconnect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadBusConfig()

			if err != nil {
				return
			}

			removed := 0

			for _, name := range []string{cfg.Name, cfg.ReplyRing()} {
				rerr := arena.Remove(name, arena.WithDir(cfg.Dir))

				if errors.Is(rerr, arena.ErrNotFound) {
					logger().WithField("name", name).Warn("not found")
					continue
				}

				if rerr != nil {
					return rerr
				}

				logger().WithField("name", name).Info("removed")
				removed++
			}

			if removed == 0 {
				return errors.Wrap(arena.ErrNotFound, cfg.Name)
			}

			return
		},
	}
}
