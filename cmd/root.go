/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allbin/go-mdt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logger  = zerolog.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mdt",
	Short: "Discover and drive Thorlabs MDT piezo controllers",
	Long: `mdt finds Thorlabs MDT693/MDT694 piezo controllers on the serial ports of
this machine and sets their output voltages within configured limits.

Every voltage write is clamped to the soft limit (default 100 V) and never
exceeds the 150 V hardware maximum.

Settings are read from flags, MDT_* environment variables and mdt.yaml
(current directory or $HOME/.config/mdt).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		return initLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./mdt.yaml or $HOME/.config/mdt/mdt.yaml)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.Float64("soft-limit", mdt.DefaultSoftLimit, "software voltage ceiling in volts")
	pf.String("backend", string(mdt.BackendAuto), "backend: auto, sdk, serial")
	pf.String("sdk-path", mdt.DefaultSDKPath, "path to MDT_COMMAND_LIB.dll")
	pf.Bool("sdk-fallback", false, "use the serial backend when the command library fails to load")
	pf.IntP("baud", "b", 115200, "baud rate")
	pf.Duration("command-timeout", 500*time.Millisecond, "timeout per device command")
	pf.String("lister", "auto", "port lister: auto, sysfs, enumerator")

	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("soft_limit", pf.Lookup("soft-limit"))
	_ = viper.BindPFlag("backend", pf.Lookup("backend"))
	_ = viper.BindPFlag("sdk_path", pf.Lookup("sdk-path"))
	_ = viper.BindPFlag("sdk_fallback", pf.Lookup("sdk-fallback"))
	_ = viper.BindPFlag("baud", pf.Lookup("baud"))
	_ = viper.BindPFlag("command_timeout", pf.Lookup("command-timeout"))
	_ = viper.BindPFlag("lister", pf.Lookup("lister"))

	viper.SetDefault("probe.timeout", time.Second)
	viper.SetDefault("probe.query_timeout", 300*time.Millisecond)
	viper.SetDefault("discovery.workers", mdt.DefaultWorkers)
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mdt")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "mdt"))
		}
	}

	viper.SetEnvPrefix("MDT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

func initLogger() error {
	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", viper.GetString("log_level"), err)
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().Timestamp().Logger()
	if f := viper.ConfigFileUsed(); f != "" {
		logger.Debug().Str("file", f).Msg("config loaded")
	}
	return nil
}

func serialOptions() []mdt.Option {
	return []mdt.Option{mdt.WithBaudRate(viper.GetInt("baud"))}
}

func lister() (mdt.Lister, error) {
	switch strings.ToLower(viper.GetString("lister")) {
	case "", "auto":
		return mdt.DefaultLister(), nil
	case "sysfs":
		return mdt.SysfsLister{}, nil
	case "enumerator":
		return mdt.EnumeratorLister{}, nil
	default:
		return nil, fmt.Errorf("%w: lister %q", mdt.ErrInvalidConfig, viper.GetString("lister"))
	}
}

func newProber() (*mdt.Prober, error) {
	opts := mdt.DefaultProbeOptions()
	opts.Timeout = viper.GetDuration("probe.timeout")
	opts.QueryTimeout = viper.GetDuration("probe.query_timeout")
	opts.Serial = serialOptions()
	opts.Logger = logger
	return mdt.NewProber(opts)
}

func discoveryOptions(extra ...mdt.DiscoveryOption) ([]mdt.DiscoveryOption, error) {
	l, err := lister()
	if err != nil {
		return nil, err
	}
	p, err := newProber()
	if err != nil {
		return nil, err
	}
	opts := []mdt.DiscoveryOption{
		mdt.WithLister(l),
		mdt.WithProber(p),
		mdt.WithWorkers(viper.GetInt("discovery.workers")),
		mdt.WithDiscoveryLogger(logger),
	}
	return append(opts, extra...), nil
}

func backendConfig() mdt.BackendConfig {
	bc := mdt.DefaultBackendConfig()
	bc.Mode = mdt.BackendMode(strings.ToLower(viper.GetString("backend")))
	bc.SDKPath = viper.GetString("sdk_path")
	bc.SDKFallback = viper.GetBool("sdk_fallback")
	bc.CommandTimeout = viper.GetDuration("command_timeout")
	bc.Serial = serialOptions()
	return bc
}

func controllerOptions() ([]mdt.ControllerOption, error) {
	dopts, err := discoveryOptions()
	if err != nil {
		return nil, err
	}
	d, err := mdt.NewDiscoverer(dopts...)
	if err != nil {
		return nil, err
	}
	return []mdt.ControllerOption{
		mdt.WithSoftLimit(viper.GetFloat64("soft_limit")),
		mdt.WithBackendConfig(backendConfig()),
		mdt.WithDiscoverer(d),
		mdt.WithLogger(logger),
	}, nil
}
