package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"handbook-rag/internal/config"
)

const configFilePath = "./configs/config.yaml"

var cli struct {
	Config string `help:"Path to the yaml config file." default:"${config_path}" type:"path"`

	Ingest IngestCmd `cmd:"" help:"Chunk, embed and store handbook documents."`
	Ask    AskCmd    `cmd:"" help:"Answer a question from the stored handbooks."`
	Search SearchCmd `cmd:"" help:"Show the chunks retrieved for a query."`
	Serve  ServeCmd  `cmd:"" help:"Serve the HTTP API."`
	Debug  DebugCmd  `cmd:"" help:"Probe the model endpoint and the vector store."`
}

// app is bound into every command's Run
type app struct {
	ctx context.Context
	cfg *config.Config
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("handbook-rag"),
		kong.Description("Answer questions about the school handbooks."),
		kong.UsageOnError(),
		kong.Vars{"config_path": configFilePath},
	)

	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(cfg.Log)
	log.Debug().Interface("config", cfg.Masked()).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kctx.Run(&app{ctx: ctx, cfg: cfg}); err != nil {
		log.Fatal().Err(err).Str("command", kctx.Command()).Msg("Command failed")
	}
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.JSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
