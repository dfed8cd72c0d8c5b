package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"lbstats"
)

func main() {
	configFilePath := flag.String("c", "", "path to configuration file (.toml or .yaml).")
	dryRun := flag.Bool("dry-run", false, "log metrics instead of calling gmetric.")
	statsFile := flag.String("stats-file", "", "read stats from a CSV dump instead of the socket.")
	flag.Parse()

	config := lbstats.DefaultConfig()
	if *configFilePath != "" {
		var err error
		config, err = lbstats.LoadConfig(*configFilePath)
		if err != nil {
			log.Fatal().Msgf("can't load config: %+v", err)
		}
	}
	if *dryRun {
		config.Emitter.DryRun = true
	}
	if *statsFile != "" {
		config.Source.StatsFile = *statsFile
	}
	initLog(config)

	collector, err := lbstats.NewCollector(config)
	if err != nil {
		log.Fatal().Msgf("can't init collector: %+v", err)
	}
	err = collector.Run(context.Background())
	if gmetric, ok := collector.Emitter.(*lbstats.GmetricEmitter); ok {
		log.Debug().Uint64("sent", gmetric.Sent()).Uint64("failed", gmetric.Failed()).Msg("gmetric calls")
	}
	if err != nil {
		log.Error().Msgf("collector run failed: %+v", err)
		os.Exit(1)
	}
}

func initLog(config *lbstats.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(config.Global.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Msgf("unknown log level %q, using info", config.Global.LogLevel)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
