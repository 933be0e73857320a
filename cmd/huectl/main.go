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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huebridge/internal/config"
)

const usage = `usage: huectl [flags] <command> [args]

commands:
  get <kind> <ident> [attr]             read an attribute (or whole documents)
  set <kind> <ident> attr=value...      write attributes
  list <kind>                           list ids and names
  refresh                               load every resource, print counts and load times
  create group <name> <light ids>
  create scene <name> <light ids>
  create schedule <name> <time> <light ident> attr=value...
  create sensor <name> <type> <model id> <unique id>
  delete <kind> <ident>
  scene <group name> <scene name>       run a scene on a group
  name [new name]                       show or change the bridge name
  script <file.lua>                     run a Lua script
  token import <record.json>            store a token record obtained elsewhere
  token refresh                         rotate the remote token pair now
  token status                          show token expiry

ident is an id, a name, a comma-separated list or "all".

flags:
`

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	address := flag.String("address", "", "Bridge address, overrides bridge.address")
	username := flag.String("username", "", "Bridge username, overrides bridge.username")
	logLevel := flag.String("log-level", "", "Log level, overrides log.level")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(configPath, isFlagSet("config") || isFlagSet("c"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *address != "" {
		cfg.Bridge.Address = *address
	}
	if *username != "" {
		cfg.Bridge.Username = *username
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Setup logging
	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	ctx, stop := signalContext()
	defer stop()

	if err := run(ctx, cfg, flag.Args()); err != nil {
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(os.Stderr, uerr.Error())
			flag.Usage()
			os.Exit(2)
		}
		log.Error().Err(err).Str("command", flag.Arg(0)).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing default file falls back to built-in
// defaults so that flags alone are enough for local use.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Read(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// signalContext cancels on SIGINT or SIGTERM, so long scripts stop cleanly.
func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
