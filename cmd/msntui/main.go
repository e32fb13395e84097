package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/client"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/config"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/session"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/tui"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}

	var runtime *client.Runtime
	app := fx.New(
		client.Module(client.Params{
			SessionName: sessionName,
			APIBaseURL:  cfg.APIBaseURL,
			SocketURL:   cfg.SocketURL,
		}),
		fx.Populate(&runtime),
		// The TUI owns the terminal; fx's own logging would corrupt it.
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = app.Start(startCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ui := tui.NewApp(runtime)
	runErr := ui.Run()
	ui.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = app.Stop(stopCtx)
	cancel()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
