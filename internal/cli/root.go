// internal/cli/root.go
package eda

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/eda/internal/appconfig"
	"github.com/mwiater/eda/internal/logging"
	"github.com/mwiater/eda/internal/metrics"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	recorder      *metrics.Recorder
)

var rootCmd = &cobra.Command{
	Use:           "eda",
	Short:         "eda runs step-chained LLM workflows and cached retrieval over local data directories",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1) .env first so config-less API keys are visible to providers.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		// 2) Load config (file or defaults)
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		// 3) If user did NOT set a flag, copy the config value into the flag so
		//    both pflags and viper reflect the same, final value.
		if !cmd.Flags().Changed("debug") {
			_ = cmd.Flags().Set("debug", strconv.FormatBool(viper.GetBool("debug")))
		}

		// 4) Materialize the fully merged configuration into currentConfig
		//    (flags > config > defaults). This gives other packages a stable snapshot.
		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ConfigPath = viper.ConfigFileUsed()
		currentConfig = &cfg

		if err := logging.Init(logging.Options{
			Path:    cfg.LogFilePath(),
			Debug:   cfg.Debug,
			Console: cmd.ErrOrStderr(),
		}); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		recorder = metrics.NewRecorder()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return flushMetrics()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, failure("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// --config (defaults to config/config.json)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (JSON or YAML)")

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging and state dumps")
	rootCmd.PersistentFlags().String("logFile", "", "append logs to this file")
	rootCmd.PersistentFlags().String("model", "", "completion model (overrides completionModel)")
	rootCmd.PersistentFlags().String("metricsFile", "", "write Prometheus metrics to this file on exit")

	// Bind flags to Viper keys (flags override config)
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("logFile", rootCmd.PersistentFlags().Lookup("logFile"))
	_ = viper.BindPFlag("completionModel", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("metricsFile", rootCmd.PersistentFlags().Lookup("metricsFile"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// ensureConfigLoaded reads the config and sets safe defaults.
func ensureConfigLoaded() error {
	viper.SetDefault("debug", false)
	viper.SetDefault("onParseError", appconfig.ParseContinue)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// No file: fine, we'll use defaults/flags
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// getConfig returns the merged configuration snapshot.
func getConfig() *appconfig.Config {
	if currentConfig == nil {
		return &appconfig.Config{}
	}
	return currentConfig
}

// requireConfig returns the snapshot after checking it can drive providers.
func requireConfig() (*appconfig.Config, error) {
	cfg := getConfig()
	if err := cfg.Validate(); err != nil {
		if cfg.ConfigPath == "" {
			return nil, fmt.Errorf("%w (no config file loaded; pass --config)", err)
		}
		return nil, fmt.Errorf("%s: %w", cfg.ConfigPath, err)
	}
	return cfg, nil
}

func flushMetrics() error {
	cfg := getConfig()
	if cfg.MetricsFile == "" || recorder == nil {
		return nil
	}
	if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// DebugEnabled reflects the merged --debug/config value.
func DebugEnabled() bool { return viper.GetBool("debug") }
