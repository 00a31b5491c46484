package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xiaonanln/sectorworld/components/server"
	"github.com/xiaonanln/sectorworld/engine/binutil"
	"github.com/xiaonanln/sectorworld/engine/config"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
)

func serveCmd() *cobra.Command {
	var (
		daemonMode bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemonMode {
				daemoncontext := binutil.Daemonize()
				defer daemoncontext.Release()
			}
			return runServer(logLevel)
		},
	}
	cmd.Flags().BoolVarP(&daemonMode, "daemon", "d", false, "run in daemon mode")
	cmd.Flags().StringVar(&logLevel, "log", "", "set log level, will override log level in config")
	return cmd
}

func runServer(logLevel string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc := &cfg.Server
	if logLevel == "" {
		logLevel = sc.LogLevel
	}
	binutil.SetupGWLog("sectorworld", logLevel, sc.LogFile, sc.LogStderr)
	defer gwlog.Sync()
	fmt.Fprintf(os.Stderr, "Read server config: \n%s\n", config.DumpPretty(cfg))

	if sc.GoMaxProcs > 0 {
		gwlog.Infof("SET GOMAXPROCS = %d", sc.GoMaxProcs)
		runtime.GOMAXPROCS(sc.GoMaxProcs)
	}

	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(sc, db)
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignals(cancel)
	return srv.Run(ctx)
}

func setupSignals(terminate func()) {
	gwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signalChan
		gwlog.Infof("Terminating on %s ...", sig)
		terminate()
	}()
}
