package common

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	commonconfig "github.com/G-Research/popgen/internal/common/config"
	"github.com/G-Research/popgen/internal/common/logging"
)

const baseConfigFileName = "config"

// BindCommandlineArguments binds every flag in flags into v, so any config value may be overridden
// from the command line. Flags the user did not set leave the file values alone.
func BindCommandlineArguments(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	return errors.WithStack(v.BindPFlags(flags))
}

// LoadConfig reads config.yaml from defaultPath, merges every file in overrideConfigs on top and unmarshals the
// result into config. Environment variables prefixed with POPGEN_ take precedence over files, and flags set
// in flags take precedence over both.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string, flags *pflag.FlagSet) *viper.Viper {
	v, err := ReadConfig(config, defaultPath, overrideConfigs, flags, commonconfig.CustomHooks...)
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
	return v
}

// ReadConfig is LoadConfig without the exit, for callers (and tests) that want the error.
func ReadConfig(
	config interface{},
	defaultPath string,
	overrideConfigs []string,
	flags *pflag.FlagSet,
	hooks ...mapstructure.DecodeHookFunc,
) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(baseConfigFileName)
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "error reading base config from %s", defaultPath)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		if overrideConfig == "" {
			continue
		}
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config from %s", overrideConfig)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("POPGEN")
	v.AutomaticEnv()
	if err := BindCommandlineArguments(v, flags); err != nil {
		return nil, err
	}

	decodeHooks := append([]mapstructure.DecodeHookFunc{
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	}, hooks...)
	if err := v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(decodeHooks...))); err != nil {
		return nil, errors.WithStack(err)
	}
	return v, nil
}

// ConfigureLogging sets up logrus for a long-running service.
func ConfigureLogging() {
	log.SetLevel(readEnvironmentLogLevel())
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

// ConfigureCommandLineLogging sets up logrus for interactive commands: bare messages, no timestamps.
func ConfigureCommandLineLogging() {
	log.SetLevel(readEnvironmentLogLevel())
	log.SetFormatter(&logging.CommandLineFormatter{})
	log.SetOutput(os.Stdout)
}

func readEnvironmentLogLevel() log.Level {
	level, ok := os.LookupEnv("LOG_LEVEL")
	if ok {
		logLevel, err := log.ParseLevel(level)
		if err == nil {
			return logLevel
		}
	}
	return log.InfoLevel
}
