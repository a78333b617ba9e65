package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/config"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("studio", pflag.ContinueOnError)
	flags.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "control API port")
	flags.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "control API host")
	flags.StringVar(&cfg.Backend.URL, "backend", cfg.Backend.URL, "workspace backend base URL")
	flags.StringVar(&cfg.Backend.WorkspaceID, "workspace", cfg.Backend.WorkspaceID, "workspace id (empty creates a new workspace)")
	flags.StringVar(&cfg.Editor.LanguagesFile, "languages", cfg.Editor.LanguagesFile, "YAML or TOML file of editor language overrides")
	flags.StringVar(&cfg.Editor.TabClose, "tab-close", cfg.Editor.TabClose, `tab to select when the active tab closes: "left" or "first"`)
	flags.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	return srv.Run(ctx)
}
