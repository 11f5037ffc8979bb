package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/logger"
)

// app carries the state shared by all subcommands once the root command
// has loaded the configuration.
type app struct {
	configPath string
	backend    string
	namespace  string
	cfg        *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "finisher",
		Short:         "Autocompletion and spelling correction over a trained phrase corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&a.backend, "backend", "b", "", "storage backend: memory, redis, postgres or sqlite (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&a.namespace, "namespace", "n", "", "model namespace (overrides config)")

	rootCmd.AddCommand(createTrainCmd(a))
	rootCmd.AddCommand(createCorrectCmd(a))
	rootCmd.AddCommand(createGuessCmd(a))
	rootCmd.AddCommand(createCompleteCmd(a))
	rootCmd.AddCommand(createBustCmd(a))
	rootCmd.AddCommand(createServeCmd(a))
	rootCmd.AddCommand(createPublishCmd(a))
	rootCmd.AddCommand(createConsumeCmd(a))
	return rootCmd
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Storage.Backend = a.backend
	}
	if a.namespace != "" {
		cfg.Model.Namespace = a.namespace
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return nil
}
