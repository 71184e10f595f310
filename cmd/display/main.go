// display connects to the notifier and draws the pipeline board in the
// terminal, redrawing after every status update.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/pscheid92/pipelinepulse/internal/display"
	"github.com/pscheid92/pipelinepulse/internal/domain"
	"github.com/pscheid92/pipelinepulse/internal/platform/logging"
	"github.com/pscheid92/pipelinepulse/internal/platform/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		url            string
		trigger        bool
		exitOnComplete bool
		logLevel       string
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("display", pflag.ContinueOnError)
	flagSet.StringVar(&url, "url", "ws://localhost:8080", "notifier WebSocket endpoint")
	flagSet.BoolVar(&trigger, "trigger", false, "send the start-simulation message after connecting")
	flagSet.BoolVar(&exitOnComplete, "exit-on-complete", false, "exit once every stage reports success")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println("display", version.Get().String())
		return nil
	}

	// The board owns stdout.
	slog.SetDefault(logging.New(os.Stderr, logLevel, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := display.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if trigger {
		if err := client.Trigger(); err != nil {
			return err
		}
	}

	doc := display.NewDocument()
	if err := doc.Render(os.Stdout); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var renderErr error
	err = client.Run(runCtx, doc, func(update domain.StatusUpdate, _ bool) {
		slog.Debug("Status update", "stage", update.Stage, "status", update.Status)
		if renderErr = doc.Render(os.Stdout); renderErr != nil {
			cancel()
			return
		}
		if exitOnComplete && doc.Complete() {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	return renderErr
}
