// Package cmd defines and implements the CLI commands for the leaders-scraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-leaders-scraper/internal/app"
	"github.com/JakeFAU/country-leaders-scraper/internal/config"
	"github.com/JakeFAU/country-leaders-scraper/internal/logging"
	"github.com/JakeFAU/country-leaders-scraper/internal/pipeline"
)

// ctxKeyType keys the values PersistentPreRunE stores in the command context.
type ctxKeyType string

const (
	configKey ctxKeyType = "config"
	loggerKey ctxKeyType = "logger"
)

// App defines the services commands use. Tests inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Pipeline() *pipeline.Pipeline
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...app.Option) (App, error) {
	return app.New(ctx, cfg, logger, opts...)
}

// newRootCmd creates and configures the root command.
func newRootCmd(stdout io.Writer) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "leaders-scraper",
		Short: "Scrapes country leaders and enriches them with their Wikipedia lead paragraph.",
		Long: `leaders-scraper pulls the list of countries and their political leaders from
the country-leaders API, enriches every leader with the opening paragraph of
their Wikipedia biography, and exports the result as JSON, CSV or YAML.`,
		SilenceUsage: true,

		// Loads config and the logger before any subcommand runs. Services are
		// built per command by withApp.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			ctx = context.WithValue(ctx, loggerKey, logger)
			cmd.SetContext(ctx)
			return nil
		},
	}
	cmd.SetOut(stdout)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("base-url", "", "country-leaders API base URL")
	cmd.PersistentFlags().String("log-level", "", "minimum log level (debug, info, warn, error)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newCountriesCmd())

	return cmd
}

// withApp builds the App for one command, runs fn and always releases the
// services afterwards, whether fn succeeded or not.
func withApp(cmd *cobra.Command, fn func(App) error, opts ...app.Option) error {
	ctx := cmd.Context()
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || logger == nil {
		return errors.New("application services not initialized")
	}
	appInstance, err := newApp(ctx, resolveConfig(ctx), logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		appInstance.Close()
		_ = appInstance.Logger().Sync()
	}()
	return fn(appInstance)
}

func resolveConfig(ctx context.Context) config.Config {
	cfg, _ := ctx.Value(configKey).(config.Config)
	return cfg
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
