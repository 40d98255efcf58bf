package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mschweiger/twin/pkg/channels"
	"github.com/spf13/cobra"
)

func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "twin",
		Short: "Mike Schweiger digital twin: persona chat with voice input and fact capture",
		Long: strings.TrimSpace(`twin runs the Mike Schweiger digital-twin assistant.

The serve command exposes the chat JSON API the web page talks to; repl opens
a local console session against the same conversation store.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newServeCommand())
	root.AddCommand(newREPLCommand())
	root.AddCommand(newResetCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the chat API server",
		Example: "  twin serve --addr :8080",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if addr != "" {
				app.cfg.Addr = addr
			}
			return channels.NewWeb(app.cfg.Addr, app.session).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func newREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat with the twin on the local console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			return channels.NewREPL(app.session).Run(ctx)
		},
	}
}

func newResetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the entire conversation and fact history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete without --yes")
			}
			ctx := context.Background()
			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.session.Reset(ctx); err != nil {
				return err
			}
			fmt.Println("Conversation store cleared.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version metadata",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("twin %s\n", formatVersion())
		},
	}
}
