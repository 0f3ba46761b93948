package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"nanobot/internal/bus"
	"nanobot/internal/channel"
	"nanobot/internal/config"
	"nanobot/internal/domain"
	"nanobot/internal/media"
	"nanobot/internal/provider"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	echoMode   bool
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "nanobot",
		Short:   "nanobot: Zalo bridge channel client",
		Long:    "nanobot connects a zca-js bridge process to an internal message bus,\nwith attachment download, classification and voice transcription.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.nanobot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg := config.Defaults()
			if cfg.Channels.Zalo.IMEI == "" {
				// Stable device ID, generated once and kept for the session lifetime.
				cfg.Channels.Zalo.IMEI = uuid.NewString()
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			workspace := config.ExpandPath(cfg.General.Workspace)
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", workspace)
			return nil
		},
	}
}

func gatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the Zalo channel gateway",
		Long:  "Connects to the Zalo bridge and routes messages through the internal bus until interrupted.",
		RunE:  runGateway,
	}
	cmd.Flags().BoolVar(&echoMode, "echo", false, "echo inbound messages back to the sender (connectivity test)")
	return cmd
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w (run 'nanobot init' first)", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))

	if !cfg.Channels.Zalo.Enabled {
		return fmt.Errorf("zalo channel is disabled; set channels.zalo.enabled in %s", cfgPath)
	}

	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return err
	}

	// Graceful shutdown on signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	mediaStore, err := media.NewStore(filepath.Join(cfg.General.Workspace, "media.db"), logger)
	if err != nil {
		return err
	}
	defer mediaStore.Close()

	whisper := provider.NewWhisperProvider(provider.WhisperConfig{
		APIBase:  cfg.Transcription.APIBase,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Logger:   logger,
	})

	fetcher := media.NewFetcher(media.FetcherConfig{
		MediaDir:    cfg.MediaDir(),
		FilePrefix:  "zalo",
		Transcriber: whisper,
		Store:       mediaStore,
		Logger:      logger,
	})

	zalo := channel.NewZalo(channel.ZaloChannelConfig{
		Config:  cfg.Channels.Zalo,
		Fetcher: fetcher,
		Logger:  logger,
	})

	if err := zalo.Start(ctx, messageBus); err != nil {
		return err
	}
	defer zalo.Stop()

	logger.Info("gateway running", "bridge_url", cfg.Channels.Zalo.BridgeURL, "echo", echoMode)

	// Message intake: normalized events land here. The agent runtime consumes
	// this stream in a full deployment; --echo wires it straight back out.
	inbound := messageBus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			logger.Info("gateway shutting down")
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			logger.Info("message intake",
				"channel", msg.Channel,
				"sender_id", msg.SenderID,
				"chat_id", msg.ChatID,
				"content_len", len(msg.Content),
				"media", len(msg.Media),
				"is_group", msg.IsGroup,
			)
			if echoMode {
				messageBus.SendOutbound(domain.OutboundMessage{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					Content: msg.Content,
				})
			}
		}
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and attachment index status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			fmt.Printf("nanobot v%s\n\n", version)
			fmt.Printf("Config:        %s\n", cfgPath)
			fmt.Printf("Workspace:     %s\n", cfg.General.Workspace)
			fmt.Printf("Zalo channel:  enabled=%t bridge=%s\n", cfg.Channels.Zalo.Enabled, cfg.Channels.Zalo.BridgeURL)
			fmt.Printf("Credentials:   cookie=%t imei=%t\n", !cfg.Channels.Zalo.Cookie.IsEmpty(), cfg.Channels.Zalo.IMEI != "")
			fmt.Printf("Transcription: configured=%t model=%s\n", cfg.Transcription.APIKey != "", cfg.Transcription.Model)

			store, err := media.NewStore(filepath.Join(cfg.General.Workspace, "media.db"), logger)
			if err == nil {
				defer store.Close()
				if n, err := store.Count(cmd.Context()); err == nil {
					fmt.Printf("Attachments:   %d indexed\n", n)
				}
			}
			return nil
		},
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
