// Package main runs the local development workspace backend.
//
// Usage:
//
//	./devbackend --root ./workspaces --port 5051
//	./devbackend --build "flutter pub get" --build "flutter build web --release"
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/devbackend"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/config"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
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
	dev := cfg.DevBackend

	host := "127.0.0.1"
	flags := pflag.NewFlagSet("devbackend", pflag.ContinueOnError)
	flags.StringVar(&dev.Root, "root", dev.Root, "directory holding workspaces")
	flags.StringVar(&dev.Template, "template", dev.Template, "directory copied into new workspaces")
	flags.StringArrayVar(&dev.BuildCmd, "build", dev.BuildCmd, "build command, repeatable, run in order")
	flags.StringVar(&dev.Port, "port", dev.Port, "listen port")
	flags.StringVar(&host, "host", host, "listen host")
	flags.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	logger := logging.NewDefault()
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	defer logger.Sync()

	store, err := devbackend.NewStore(dev.Root, dev.Template, nil)
	if err != nil {
		return err
	}
	api := devbackend.NewServer(store, devbackend.NewBuilder(dev.BuildCmd, logger.Named("build")), logger.Named("api"))
	defer api.Close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(host, dev.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting dev backend", zap.String("addr", srv.Addr), zap.String("root", dev.Root))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
