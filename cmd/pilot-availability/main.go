package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rbright/pilot-availability/internal/app"
	"github.com/rbright/pilot-availability/internal/config"
	"github.com/rbright/pilot-availability/internal/log"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "-h", "--help", "help":
			printUsage()
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 0 || args[0] != "watch" {
		timeout := cfg.Timeout + 5*time.Second
		if timeout < 10*time.Second {
			timeout = 10 * time.Second
		}

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := app.Run(ctx, args, cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Println("pilot-availability <status|refresh|month [YYYY-MM]|next-month|prev-month|select-day YYYY-MM-DD|day [YYYY-MM-DD]|blockouts [--format json|yaml]|blockout add|edit ID|delete [ID]|export-ics [PATH]|import-ics PATH|import-bookings PATH|watch>")
}
