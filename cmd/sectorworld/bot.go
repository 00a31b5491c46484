package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xiaonanln/sectorworld/components/bot"
	"github.com/xiaonanln/sectorworld/engine/binutil"
)

func botCmd() *cobra.Command {
	var (
		cfg      bot.Config
		n        int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run client bots against a server",
		Run: func(cmd *cobra.Command, args []string) {
			binutil.SetupGWLog("bot", logLevel, "", true)
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			bot.Run(ctx, cfg, n)
		},
	}
	cmd.Flags().StringVarP(&cfg.Addr, "addr", "a", "127.0.0.1:14000", "server address")
	cmd.Flags().StringVar(&cfg.Network, "net", "tcp", "transport: tcp, kcp or ws")
	cmd.Flags().StringVarP(&cfg.Password, "password", "p", "", "server password")
	cmd.Flags().StringVar(&cfg.NamePrefix, "prefix", "bot", "player name prefix")
	cmd.Flags().BoolVarP(&cfg.Quiet, "quiet", "q", false, "do not log round trips")
	cmd.Flags().IntVarP(&n, "num", "n", 10, "number of bots")
	cmd.Flags().StringVar(&logLevel, "log", "info", "log level")
	return cmd
}
