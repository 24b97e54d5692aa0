package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"seedfetch/internal/seedfetch"
)

const usage = `usage: seedfetch [-config path] [command]

commands:
  fetch     fetch the seed unless an attempt already completed (default)
  show      print the stored seed and flags
  consume   print the stored seed, then clear it and mark it as taken
  reset     clear the initialized flag so the next fetch reaches the server
  clear     remove every stored preference, seed and flags included
`

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", getenvDefault("SEEDFETCH_CONFIG", "/seedfetch.yaml"), "path to seedfetch.yaml")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log := seedfetch.NewLogger(os.Stderr, "seedfetch", seedfetch.LogLevel(""))
	cfg, err := seedfetch.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("load config")
	}
	log = log.Level(seedfetch.LogLevel(cfg.Logging.Level))

	store, err := seedfetch.OpenStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("open preference store")
	}
	defer store.Close()

	cmd := "fetch"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	switch cmd {
	case "fetch":
		err = runFetch(cfg, store, log)
	case "show":
		err = runShow(store)
	case "consume":
		err = runConsume(store)
	case "reset":
		err = store.ResetInitialized()
	case "clear":
		err = store.Clear()
	default:
		flag.Usage()
		store.Close()
		os.Exit(2)
	}
	if err != nil {
		store.Close()
		log.Fatal().Err(err).Str("command", cmd).Msg("command failed")
	}
}

func runFetch(cfg seedfetch.Config, store *seedfetch.Store, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	transport := seedfetch.NewHTTPTransport(cfg.Server.URL, &http.Client{Timeout: cfg.Timeout()})
	fetcher := seedfetch.NewFetcher(transport, store, cfg.Platform(),
		seedfetch.WithLogger(log),
		seedfetch.WithMetrics(seedfetch.NewMetrics(reg)),
		seedfetch.WithMaxSeedSize(cfg.MaxSeedSize()),
	)

	res := fetcher.FetchSeed(ctx, cfg.Server.RestrictGroup)
	log.Info().Str("result", res.String()).Str("platform", cfg.Platform().String()).Msg("seed fetch finished")

	if cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func runShow(store *seedfetch.Store) error {
	initialized, err := store.Initialized()
	if err != nil {
		return err
	}
	taken, err := store.SeedStored()
	if err != nil {
		return err
	}
	seed, err := store.LoadSeed()
	if err != nil {
		return err
	}

	fmt.Printf("initialized: %t\n", initialized)
	fmt.Printf("seed taken:  %t\n", taken)
	printSeed(seed)
	return nil
}

func runConsume(store *seedfetch.Store) error {
	seed, err := store.TakeSeed()
	if err != nil {
		return err
	}
	printSeed(seed)
	return nil
}

func printSeed(seed seedfetch.SeedState) {
	if seed.Empty() {
		fmt.Println("seed:        none")
		return
	}
	fmt.Printf("signature:   %s\n", seed.Signature)
	fmt.Printf("country:     %s\n", seed.Country)
	fmt.Printf("date:        %s\n", seed.Date)
	fmt.Printf("gzip:        %t\n", seed.IsGzipCompressed)
	fmt.Printf("payload:     %s\n", seed.PayloadBase64)
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
