package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"novabot/internal/channel"
	"novabot/internal/config"
	"novabot/internal/domain"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	_ = godotenv.Load()
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "novabot",
		Short:   "Nova: a conversational companion that remembers",
		Long:    "Nova blends a short-term dialogue buffer, a structured user profile, and semantic memory into every reply.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.novabot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(profileCmd())
	root.AddCommand(forgetCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		cfg.General.DataDir = config.ExpandPath(cfg.General.DataDir)
	}
	return cfg
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and create the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.DefaultConfigPath()
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := config.ExpandPath(cfg.General.DataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "data", dataDir)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to Nova interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			fmt.Println("Nova is listening. Type /quit to exit, /clear to reset the session.")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "/quit", "/exit":
					return nil
				case "/clear":
					app.Orchestrator.ClearSession(userID)
					fmt.Println("Session cleared.")
					continue
				}

				res, err := app.Orchestrator.Chat(ctx, userID, line)
				if err != nil {
					logger.Error("chat failed", "err", err)
					continue
				}
				fmt.Println(res.Response)
			}
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "user id for this session")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and any enabled channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			errCh := make(chan error, 2)

			if cfg.Channels.Telegram.Enabled {
				tg := channel.NewTelegram(channel.TelegramConfig{
					Token:        cfg.Channels.Telegram.Token,
					AllowFrom:    cfg.Channels.Telegram.AllowFrom,
					Orchestrator: app.Orchestrator,
					Logger:       logger,
				})
				go func() { errCh <- tg.Start(ctx) }()
			}

			if cfg.Channels.Web.Enabled {
				web := channel.NewWeb(channel.WebConfig{
					Orchestrator: app.Orchestrator,
					Addr:         cfg.Channels.Web.Addr,
					Logger:       logger,
				})
				go func() { errCh <- web.Start(ctx) }()
			}

			select {
			case <-ctx.Done():
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}

func statsCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory, session and LLM usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx := context.Background()
			app, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			out, err := json.MarshalIndent(app.Orchestrator.Stats(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if reset {
				app.Orchestrator.ResetUsage()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "zero the LLM usage counters after printing")
	return cmd
}

func profileCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "profile <user_id> [field value]",
		Short: "Show or update a user's profile",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx := context.Background()
			app, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			userID := args[0]
			if len(args) == 1 {
				p, err := app.Orchestrator.Profile(ctx, userID)
				if err != nil {
					return err
				}
				out, _ := json.MarshalIndent(p, "", "  ")
				fmt.Println(string(out))
				return nil
			}
			if len(args) != 3 {
				return fmt.Errorf("usage: profile <user_id> <field> <value>")
			}
			field, err := domain.ParseProfileField(args[1])
			if err != nil {
				return err
			}
			if err := app.Orchestrator.UpsertProfile(ctx, userID, field, args[2], force); err != nil {
				return err
			}
			logger.Info("profile updated", "user_id", userID, "field", field)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite a conflicting stored value")
	return cmd
}

func forgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <user_id>",
		Short: "Erase a user across all memory tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx := context.Background()
			app, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			removed, err := app.Orchestrator.ForgetUser(ctx, args[0])
			if err != nil {
				return err
			}
			logger.Info("user forgotten", "user_id", args[0], "memories_removed", removed)
			return nil
		},
	}
}
