package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kalambet/prepgen/internal/config"
	"github.com/kalambet/prepgen/internal/workflow"
)

var (
	version = "dev"
	noColor bool
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:           "prepgen",
	Short:         "Study with AI summaries, chats and quizzes from your own materials",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level := cfg.Log.SlogLevel()
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
	rootCmd.AddCommand(contentCmd, summarizeCmd, youtubeCmd, chatCmd)
	rootCmd.AddCommand(quizCmd, resultsCmd, dashboardCmd)
	rootCmd.AddCommand(configCmd, mcpCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("%s", workflow.UserMessage(err))
		stop()
		os.Exit(1)
	}
}
