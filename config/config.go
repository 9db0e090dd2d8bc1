// Package config loads roxybus settings from defaults, an optional config
// file, ROXY_* environment variables and bound command line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/markvandendool/roxy-sub003/bus"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Debug bool       `mapstructure:"debug"`
	Bus   bus.Config `mapstructure:"bus"`
	Log   LogConfig  `mapstructure:"log"`
}

// SetDefaults registers a default for every key, which also makes every key
// visible to environment overrides.
func SetDefaults(v *viper.Viper) {
	def := bus.DefaultConfig()

	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyBusName, def.Name)
	v.SetDefault(KeyBusDir, def.Dir)
	v.SetDefault(KeyBusSize, def.Size)
	v.SetDefault(KeyBusReplyName, "")
	v.SetDefault(KeyBusReplySize, def.ReplySize)
	v.SetDefault(KeyBusReadTimeout, def.ReadTimeout)
	v.SetDefault(KeyBusPingTimeout, def.PingTimeout)
	v.SetDefault(KeyBusStallAfter, def.StallAfter)
	v.SetDefault(KeyBusWriteOnly, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// Init prepares v for Load. An empty path searches the working directory and
// the user config directory for roxybus.{yaml,json,toml}; a missing file is
// not an error then.
func Init(v *viper.Viper, path string) (err error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err = v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", path)
		}

		return
	}

	v.SetConfigName("roxybus")
	v.AddConfigPath(".")

	if dir, derr := os.UserConfigDir(); derr == nil {
		v.AddConfigPath(filepath.Join(dir, "roxybus"))
	}

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		return errors.Wrap(err, "read config")
	}

	return
}

func Load(v *viper.Viper) (cfg *Config, err error) {
	cfg = &Config{}

	if err = v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	return
}

// LoadBus decodes only the bus section, e.g. for a client embedded in
// another program.
func LoadBus(v *viper.Viper) (cfg bus.Config, err error) {
	sub := v.Sub(KeyBus)

	if sub == nil {
		return cfg, errors.Errorf("key[%s] not found", KeyBus)
	}

	if err = sub.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode %s", KeyBus)
	}

	return
}

// SetupLogging applies the log section to log. verbose forces debug level.
func SetupLogging(log *logrus.Logger, cfg LogConfig, verbose bool) error {
	level, err := logrus.ParseLevel(cfg.Level)

	if err != nil {
		return errors.Wrapf(err, "%s", KeyLogLevel)
	}

	if verbose {
		level = logrus.DebugLevel
	}

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Errorf("%s: unknown format %q", KeyLogFormat, cfg.Format)
	}

	log.SetLevel(level)
	return nil
}
