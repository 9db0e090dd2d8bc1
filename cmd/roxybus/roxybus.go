package main

import (
	"fmt"
	"os"
	"path"

	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/markvandendool/roxy-sub003/cmd/roxybus/command"
	"github.com/markvandendool/roxy-sub003/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Set at build time with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	GitHash   = "unknown"
	BuildDate = "unknown"
)

var (
	binCleanName = path.Base(path.Clean(os.Args[0]))
	versionMsg   = fmt.Sprintf("%v version \"%s (%s)\" %s, bus protocol %d\n", binCleanName, Version, GitHash, BuildDate, arena.ProtocolVersion)
	rootCmd      = &cobra.Command{
		Use:           binCleanName,
		Short:         "Shared-memory message bus tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			conf, _ := cmd.Flags().GetString("config")

			if err := config.Init(viper.GetViper(), conf); err != nil {
				return err
			}

			cfg, err := config.Load(viper.GetViper())

			if err != nil {
				return err
			}

			if err = config.SetupLogging(logrus.StandardLogger(), cfg.Log, verbose || cfg.Debug); err != nil {
				return err
			}

			logrus.Debug(versionMsg)
			logrus.WithField("config", viper.ConfigFileUsed()).Debug("configuration loaded")
			return nil
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: fmt.Sprintf("Prints the version of %s", binCleanName),
		// do not execute any persistent actions
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionMsg)
		},
	}
)

func init() {
	rootCmd.AddCommand(
		versionCmd,
		command.NewServeCommand(),
		command.NewSendCommand(),
		command.NewTailCommand(),
		command.NewPingCommand(),
		command.NewMonitorCommand(),
		command.NewDestroyCommand(),
	)

	flags := rootCmd.PersistentFlags()
	flags.BoolP("debug", "d", false, "debug mode")
	flags.StringP("config", "c", "", "explicit assign a configuration file")
	flags.BoolP("verbose", "v", false, "log verbose")
	flags.StringP("name", "n", bus.DefaultName, "bus name")
	flags.String("dir", arena.DefaultDir, "shared memory directory")

	viper.BindPFlag(config.KeyDebug, flags.Lookup("debug"))
	viper.BindPFlag(config.KeyBusName, flags.Lookup("name"))
	viper.BindPFlag(config.KeyBusDir, flags.Lookup("dir"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("%s: %v", binCleanName, err)
		os.Exit(1)
	}
}
