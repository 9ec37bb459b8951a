package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listingwatch/internal/app"
	logx "listingwatch/pkg/logx"
)

func main() {
	var (
		cfgPath string
		envPath string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.StringVar(&envPath, "env", ".env", "path to .env file with credentials (optional)")
	flag.BoolVar(&once, "once", false, "run a single polling cycle and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "main"))

	a, err := app.NewApp(cfgPath, app.WithEnvFile(envPath))
	if err != nil {
		bootLog.Error("startup failed", logx.String("config", cfgPath), logx.Err(err))
		os.Exit(1)
	}

	if once {
		_, err := a.RunOnce(ctx)
		_ = a.Stop(context.Background())
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		bootLog.Error("start failed", logx.Err(err))
		_ = a.Stop(context.Background())
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		bootLog.Error("stopped with error", logx.Err(err))
		stopCancel()
		os.Exit(1)
	}
}
