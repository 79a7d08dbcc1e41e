package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/NicolasHaas/textconf/pkg/client"
	"github.com/NicolasHaas/textconf/pkg/logging"
	"github.com/NicolasHaas/textconf/pkg/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("textconf-client", pflag.ContinueOnError)
	logLevel := flags.String("log-level", "", "log level: "+logging.LevelNames()+" (default: $TEXTCONF_LOG_LEVEL or warn)")
	logFormat := flags.String("log-format", "", "log format: text or json (default: $TEXTCONF_LOG_FORMAT or text)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		version.Print("textconf-client")
		return nil
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected arguments %q; connect with /login <id> <password> <ip> <port>", flags.Args())
	}

	// Logs go to stderr so they never interleave with chat output.
	opts := logging.FromEnv("TEXTCONF", logging.Options{Level: *logLevel, Format: *logFormat, Output: os.Stderr})
	if opts.Level == "" {
		opts.Level = "warn"
	}
	if err := logging.Setup(opts); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := client.NewConsole(os.Stdin, os.Stdout, client.ConsoleOptions{
		Settings: client.LoadSettings(client.SettingsPath()),
		Prompt:   term.IsTerminal(int(os.Stdin.Fd())),
	})
	return console.Run(ctx)
}
