package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agentbridge/agentbridge/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Local .env is a convenience for development; absence is not an error.
	_ = godotenv.Load()

	var (
		listenAddr   string
		apiKey       string
		upstreamURL  string
		bearerToken  string
		refreshURL   string
		registryURL  string
		registryKey  string
		modelsURL    string
		model        string
		clientVer    string
		osCategory   string
		osVersion    string
		requestType  string
		responseType string
		configPath   string
		verbose      bool
	)

	flag.StringVar(&listenAddr, "listen", os.Getenv("LISTEN_ADDR"), "Bind address for the inbound HTTP server")
	flag.StringVar(&apiKey, "api.key", os.Getenv("API_KEY"), "Shared secret required on /v1 requests (empty disables auth)")
	flag.StringVar(&upstreamURL, "upstream.url", os.Getenv("UPSTREAM_URL"), "Upstream agent send endpoint URL")
	flag.StringVar(&bearerToken, "upstream.token", os.Getenv("BEARER_TOKEN"), "Bearer token for the upstream")
	flag.StringVar(&refreshURL, "upstream.refreshURL", os.Getenv("REFRESH_URL"), "Token refresh endpoint POSTed after quota rejections")
	flag.StringVar(&registryURL, "registry.url", os.Getenv("REGISTRY_URL"), "Schema-registry bridge base URL (empty selects the JSON codec)")
	flag.StringVar(&registryKey, "registry.key", os.Getenv("REGISTRY_KEY"), "API key for the schema-registry bridge")
	flag.StringVar(&modelsURL, "models.url", os.Getenv("MODELS_URL"), "Optional catalog URL proxied by GET /v1/models")
	flag.StringVar(&model, "model", os.Getenv("MODEL"), "Default base model when the caller names none")
	flag.StringVar(&clientVer, "client.version", os.Getenv("CLIENT_VERSION"), "Client version header sent upstream")
	flag.StringVar(&osCategory, "client.osCategory", os.Getenv("OS_CATEGORY"), "OS category header sent upstream")
	flag.StringVar(&osVersion, "client.osVersion", os.Getenv("OS_VERSION"), "OS version header sent upstream")
	flag.StringVar(&requestType, "messages.requestType", os.Getenv("REQUEST_MESSAGE_TYPE"), "Codec message type for outgoing envelopes")
	flag.StringVar(&responseType, "messages.responseType", os.Getenv("RESPONSE_MESSAGE_TYPE"), "Codec message type for incoming frames")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "Optional YAML or JSON config file")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	cfg := app.Config{
		ListenAddr:          listenAddr,
		APIKey:              apiKey,
		UpstreamURL:         upstreamURL,
		BearerToken:         bearerToken,
		RefreshURL:          refreshURL,
		RegistryURL:         registryURL,
		RegistryKey:         registryKey,
		ModelsURL:           modelsURL,
		Model:               model,
		ClientVersion:       clientVer,
		OSCategory:          osCategory,
		OSVersion:           osVersion,
		RequestMessageType:  requestType,
		ResponseMessageType: responseType,
		Verbose:             verbose,
	}
	app.ApplyEnvToConfig(&cfg)
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("cannot read config file")
		}
		app.ApplyFileConfig(&cfg, fc)
		// Env still beats file values for anything the file filled in.
		app.ApplyEnvOverrides(&cfg)
	}
	cfg.ApplyDefaults()

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	srv, err := app.NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
