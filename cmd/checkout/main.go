package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"pickandplay/internal/app"
	"pickandplay/internal/checkout"
	"pickandplay/internal/config"
	"pickandplay/internal/logging"

	"github.com/spf13/cobra"
)

var Version = "dev"

type globals struct {
	cfg       config.Config
	shopURL   string
	userID    string
	backend   string
	push      string
	notify    string
	logLevel  string
	pollEvery time.Duration
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "checkout",
		Short:         "Pick & Play checkout client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.shopURL, "shop-url", "", "Shop backend base URL")
	flags.StringVar(&g.userID, "user", "", "Shopper id sent as X-User-ID")
	flags.StringVar(&g.backend, "state", "", "Client state backend (memory, redis, postgres)")
	flags.StringVar(&g.push, "push", "", "Payment push transport (websocket, rabbit, none)")
	flags.StringVar(&g.notify, "notify", "", "Completion notification transport (http, rabbit, none)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level")
	flags.DurationVar(&g.pollEvery, "poll-interval", 0, "Payment status poll interval")

	rootCmd.AddCommand(cartCmd(g))
	rootCmd.AddCommand(runCmd(g))
	rootCmd.AddCommand(statusCmd(g))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the environment and applies explicitly set flags on top.
func (g *globals) load(cmd *cobra.Command) {
	g.cfg = config.Load()

	changed := cmd.Flags().Changed
	if changed("shop-url") {
		g.cfg.ShopURL = g.shopURL
	}
	if changed("user") {
		g.cfg.UserID = g.userID
	}
	if changed("state") {
		g.cfg.StateBackend = g.backend
	}
	if changed("push") {
		g.cfg.PushTransport = g.push
	}
	if changed("notify") {
		g.cfg.NotifyTransport = g.notify
	}
	if changed("log-level") {
		g.cfg.LogLevel = g.logLevel
	}
	if changed("poll-interval") {
		g.cfg.PollInterval = g.pollEvery
	}
}

func (g *globals) open(ctx context.Context, nav checkout.Navigator) (*app.App, error) {
	logger := logging.New(os.Stderr, g.cfg.LogLevel, g.cfg.LogFormat)
	a, err := app.New(ctx, g.cfg, logger, nav)
	if err != nil {
		return nil, fmt.Errorf("init checkout: %w", err)
	}
	return a, nil
}
