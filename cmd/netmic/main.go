// Command netmic streams microphone audio between machines: the transmitter
// captures and sends, the receiver exposes the stream as a PulseAudio
// virtual microphone.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kzeller/netmic/internal/app"
	"github.com/kzeller/netmic/internal/config"
	"github.com/kzeller/netmic/internal/observe"
)

var version = "0.1.0"

var (
	cfgFile     string
	metricsAddr string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "netmic",
	Short: "Network microphone relay",
	Long: `netmic turns one machine's microphone into another machine's input device.

Run "netmic receiver" on the machine that should gain a virtual microphone
and "netmic transmitter" on the machine with the physical one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var receiverCmd = &cobra.Command{
	Use:   "receiver",
	Short: "Accept an audio stream and expose it as a virtual microphone",
	RunE:  runReceiver,
}

var transmitterCmd = &cobra.Command{
	Use:   "transmitter",
	Short: "Capture the microphone and stream it to a receiver",
	RunE:  runTransmitter,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("netmic v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "debug HTTP server address for /metrics and health endpoints")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	receiverCmd.Flags().String("host", config.DefaultBindHost, "address to listen on")
	receiverCmd.Flags().Int("port", config.DefaultPort, "TCP port to listen on")
	receiverCmd.Flags().Int("buffer-size", 4096, "socket read buffer size in bytes (max 65536)")
	receiverCmd.Flags().String("microphone-name", "netmic_virtual_microphone", "virtual microphone source name")
	receiverCmd.Flags().String("fifo-path", "/tmp/netmic_audio_pipe", "named pipe path backing the virtual microphone")

	transmitterCmd.Flags().String("host", config.DefaultTargetHost, "receiver address, host or host:port")
	transmitterCmd.Flags().Int("port", config.DefaultPort, "receiver TCP port")
	transmitterCmd.Flags().Int("buffer-size", 4096, "capture read buffer size in bytes (max 65536)")
	transmitterCmd.Flags().Int("reconnect-attempts", 5, "reconnection attempts before giving up")
	transmitterCmd.Flags().Int("queue-capacity", 256, "capture hand-off queue capacity in chunks")
	transmitterCmd.Flags().String("device", "", "capture device (default: system default input)")

	rootCmd.AddCommand(receiverCmd)
	rootCmd.AddCommand(transmitterCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "netmic: %v\n", err)
		os.Exit(1)
	}
}

func runReceiver(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	stringFlag(flags, "host", &cfg.Receiver.Host)
	intFlag(flags, "port", &cfg.Receiver.Port)
	intFlag(flags, "buffer-size", &cfg.Receiver.BufferSize)
	stringFlag(flags, "microphone-name", &cfg.Receiver.MicrophoneName)
	stringFlag(flags, "fifo-path", &cfg.Receiver.FifoPath)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	return run(cfg, "receiver", func(ctx context.Context) error {
		receiver, err := app.NewReceiver(cfg)
		if err != nil {
			return err
		}
		return receiver.Run(ctx)
	})
}

func runTransmitter(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	stringFlag(flags, "host", &cfg.Transmitter.Host)
	intFlag(flags, "port", &cfg.Transmitter.Port)
	intFlag(flags, "buffer-size", &cfg.Transmitter.BufferSize)
	intFlag(flags, "reconnect-attempts", &cfg.Transmitter.ReconnectAttempts)
	intFlag(flags, "queue-capacity", &cfg.Transmitter.QueueCapacity)
	stringFlag(flags, "device", &cfg.Transmitter.Device)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	return run(cfg, "transmitter", func(ctx context.Context) error {
		transmitter, err := app.NewTransmitter(cfg)
		if err != nil {
			return err
		}
		return transmitter.Run(ctx)
	})
}

// run performs the shared lifecycle: logger, telemetry provider, signal
// context, then the application body.
func run(cfg *config.Config, name string, body func(context.Context) error) error {
	slog.SetDefault(newLogger(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "netmic-" + name,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	slog.Info("netmic starting", "mode", name, "version", version, "log_level", cfg.LogLevel)

	if err := body(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return err
	}
	slog.Info("goodbye")
	return nil
}

// loadConfig assembles the configuration: defaults, then the optional YAML
// file, then the shared persistent flags. Subcommand flags are layered on
// by the caller.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if verbose {
		cfg.LogLevel = config.LogDebug
	}
	return cfg, nil
}

// stringFlag overwrites dst when the flag was set on the command line, so
// explicit flags win over YAML values but YAML wins over flag defaults.
func stringFlag(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Changed(name) {
		*dst, _ = flags.GetString(name)
	}
}

func intFlag(flags *pflag.FlagSet, name string, dst *int) {
	if flags.Changed(name) {
		*dst, _ = flags.GetInt(name)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
