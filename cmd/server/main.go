package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/NicolasHaas/textconf/pkg/credstore"
	"github.com/NicolasHaas/textconf/pkg/logging"
	"github.com/NicolasHaas/textconf/pkg/server"
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
	cfg := server.DefaultConfig()

	flags := pflag.NewFlagSet("textconf-server", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: textconf-server [flags] <port>\n\n")
		flags.PrintDefaults()
	}
	configPath := flags.String("config", "", "YAML config file, applied before the other flags")
	credentials := flags.String("credentials", cfg.CredentialsPath, "login file or SQLite database path")
	backend := flags.String("credentials-backend", cfg.CredentialsBackend, "credential store: file, sqlite or memory")
	httpAddr := flags.String("http", cfg.HTTPAddr, "HTTP bind address for /metrics, /healthz and /ws (empty to disable)")
	capacity := flags.Int("capacity", cfg.SessionCapacity, "maximum members per session")
	idle := flags.Duration("idle-timeout", cfg.IdleTimeout, "close connections idle this long (0 disables)")
	exportUsers := flags.Bool("export-users", false, "print registered usernames as YAML and exit")
	logLevel := flags.String("log-level", "info", "log level: "+logging.LevelNames())
	logFormat := flags.String("log-format", "text", "log format: text or json")
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		version.Print("textconf-server")
		return nil
	}

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	// Config file first, then any flag given explicitly on the command line.
	if *configPath != "" {
		if err := server.LoadConfigFile(*configPath, &cfg); err != nil {
			return err
		}
	}
	if flags.Changed("credentials") {
		cfg.CredentialsPath = *credentials
	}
	if flags.Changed("credentials-backend") {
		cfg.CredentialsBackend = *backend
	}
	if flags.Changed("http") {
		cfg.HTTPAddr = *httpAddr
	}
	if flags.Changed("capacity") {
		cfg.SessionCapacity = *capacity
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = *idle
	}
	cfg.ExportUsers = *exportUsers

	st, err := credstore.Open(cfg.CredentialsBackend, cfg.CredentialsPath)
	if err != nil {
		return err
	}

	if cfg.ExportUsers {
		defer func() { _ = st.Close() }()
		data, err := server.ExportUsersYAML(st)
		if err != nil {
			return fmt.Errorf("export users: %w", err)
		}
		fmt.Print(string(data))
		return nil
	}

	switch rest := flags.Args(); {
	case len(rest) == 1:
		port, err := strconv.Atoi(rest[0])
		if err != nil || port < 1 || port > 65535 {
			_ = st.Close()
			return fmt.Errorf("invalid port %q", rest[0])
		}
		cfg.ListenAddr = net.JoinHostPort("", rest[0])
	case len(rest) > 1 || *configPath == "":
		_ = st.Close()
		flags.Usage()
		return errors.New("expected exactly one <port> argument")
	}

	slog.Info("starting textconf server", "version", version.String())
	srv := server.New(cfg, server.Dependencies{Credentials: st})
	return srv.Run()
}
