package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"faqbot/config"
	"faqbot/internal/app"
	"faqbot/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "faqbot",
		Short:         "Bot de perguntas frequentes para o Telegram",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.Run(ctx, cfg, logger.With(zap.String("version", Version)))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "arquivo YAML de configuração")
	return cmd
}
