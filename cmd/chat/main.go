package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/console"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/internal/tui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The terminal UI owns the screen, so its logs go to a file unless one is
// configured.
const defaultTUILogFile = "chat.log"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configPath string

	cmd := &cobra.Command{
		Use:          "chat",
		Short:        "Chat with everyone connected to a relay",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v, configPath)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a config file (default chat.yaml in . or ~/.config/relay-chat)")
	flags.String("host", "localhost", "Relay host")
	flags.IntP("port", "p", 6066, "Relay port")
	flags.StringP("transport", "t", "tcp", "Transport to the relay: tcp or ws")
	flags.Duration("dial-timeout", client.DefaultDialTimeout, "Give up connecting after this long")
	flags.String("ui", config.UITUI, "Front end: tui or console")
	flags.Int("max-name-attempts", 0, "Stop after this many refused usernames (0 means never)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Write logs to this file")

	bindFlags(v, cmd, map[string]string{
		"server.host":              "host",
		"server.port":              "port",
		"server.transport":         "transport",
		"server.dial_timeout":      "dial-timeout",
		"client.ui":                "ui",
		"client.max_name_attempts": "max-name-attempts",
		"log.level":                "log-level",
		"log.file":                 "log-file",
	})
	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func run(ctx context.Context, v *viper.Viper, configPath string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return err
	}

	if cfg.Log.File == "" && cfg.Client.UI == config.UITUI {
		cfg.Log.File = defaultTUILogFile
	}
	log, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	ccfg := client.Config{
		Address:         cfg.ServerAddress(),
		Transport:       cfg.Server.Transport,
		DialTimeout:     cfg.Server.DialTimeout,
		QueueSize:       cfg.Client.QueueSize,
		MaxNameAttempts: cfg.Client.MaxNameAttempts,
		Logger:          log,
	}
	dial := func(ctx context.Context, bridge client.Bridge) (*client.Connection, error) {
		return client.Dial(ctx, ccfg, bridge)
	}

	log.WithField("addr", ccfg.Address).WithField("transport", ccfg.Transport).Info("Starting chat client")

	if cfg.Client.UI == config.UIConsole {
		c := console.New(os.Stdin, os.Stdout)
		conn, err := dial(ctx, c)
		if err != nil {
			return err
		}
		defer conn.Close()
		return c.Run(ctx, conn)
	}

	return tui.Run(ctx, "relay-chat "+ccfg.Address, dial, tea.WithAltScreen())
}
