package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loopsched/internal/app"
	logx "loopsched/pkg/logx"
)

func main() {
	var (
		cfgPath string
		history string
		limit   int
	)
	flag.StringVar(&cfgPath, "config", "./loopd.yaml", "path to config (yaml or json)")
	flag.StringVar(&history, "history", "", "print recent fires of a job (or \"all\") and exit")
	flag.IntVar(&limit, "limit", 20, "number of fires printed by -history")
	flag.Parse()

	if history != "" {
		if err := app.PrintHistory(context.Background(), cfgPath, history, limit, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "history:", err)
			os.Exit(1)
		}
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// until the config is loaded
	boot := logx.NewConsole("info")

	a, err := app.NewApp(ctx, cfgPath)
	if err != nil {
		boot.Error("fatal", logx.String("config", cfgPath), logx.Err(err))
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		boot.Error("fatal start", logx.Err(err))
		os.Exit(1)
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigs:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		boot.Error("fatal", logx.Err(err))
		os.Exit(1)
	}
}
