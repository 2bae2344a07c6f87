package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/internal/relay"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

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
		Use:          "relay",
		Short:        "Run a chat relay accepting TCP and WebSocket clients on one port",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v, configPath)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a config file")
	flags.StringP("listen", "l", ":6066", "Address to listen on")
	flags.Bool("remember-hosts", false, "Greet returning hosts with their previous name")
	flags.Duration("registry-ttl", 0, "Forget a host after this long (default 24h)")
	flags.String("registry-file", "", "Persist remembered hosts to this file")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Write logs to this file instead of stderr")

	for key, name := range map[string]string{
		"relay.listen":         "listen",
		"relay.remember_hosts": "remember-hosts",
		"relay.registry_ttl":   "registry-ttl",
		"relay.registry_file":  "registry-file",
		"log.level":            "log-level",
		"log.file":             "log-file",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
	return cmd
}

func run(ctx context.Context, v *viper.Viper, configPath string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return err
	}

	log, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	srv := relay.New(relay.Options{
		Address:       cfg.Relay.Listen,
		RememberHosts: cfg.Relay.RememberHosts,
		RegistryTTL:   cfg.Relay.RegistryTTL,
		RegistryFile:  cfg.Relay.RegistryFile,
		Logger:        log,
	})
	if err := srv.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.WithError(err).Error("Relay error")
		}
		if serr := srv.Stop(); err == nil {
			err = serr
		}
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
		return srv.Stop()
	}
}
