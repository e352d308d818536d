package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentbridge/agentbridge/internal/auth"
	"github.com/agentbridge/agentbridge/internal/observe"
	"github.com/agentbridge/agentbridge/internal/openaiapi"
	"github.com/agentbridge/agentbridge/internal/packet"
	"github.com/agentbridge/agentbridge/internal/state"
	"github.com/agentbridge/agentbridge/internal/upstream"
	"github.com/agentbridge/agentbridge/internal/wire"
)

// Server is the fully wired gateway.
type Server struct {
	cfg  Config
	api  *openaiapi.Server
	http *http.Server
}

// NewServer assembles the pipeline from configuration: session state, codec,
// token source, upstream client, packet builder, observability hub, and the
// inbound HTTP surface.
func NewServer(cfg Config) (*Server, error) {
	cfg.ApplyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	session := &state.Session{}

	var codec wire.Codec = wire.JSONCodec{}
	if cfg.RegistryURL != "" {
		codec = &wire.RegistryCodec{BaseURL: cfg.RegistryURL, APIKey: cfg.RegistryKey}
	}

	var tokens auth.TokenSource = auth.Static{Value: cfg.BearerToken}
	if cfg.RefreshURL != "" {
		tokens = auth.NewRefresher(cfg.RefreshURL, cfg.BearerToken)
	}

	dns := upstream.NewDNSCache()
	client := &upstream.Client{
		URL:           cfg.UpstreamURL,
		Codec:         codec,
		Tokens:        tokens,
		ClientVersion: cfg.ClientVersion,
		OSCategory:    cfg.OSCategory,
		OSVersion:     cfg.OSVersion,
		RequestType:   cfg.RequestMessageType,
		ResponseType:  cfg.ResponseMessageType,
		Session:       session,
		HTTPClient:    upstream.NewHTTPClient(dns),
	}

	api := &openaiapi.Server{
		APIKey:    cfg.APIKey,
		Builder:   &packet.Builder{Session: session, Model: cfg.Model},
		Upstream:  client,
		Hub:       observe.NewHub(),
		ModelsURL: cfg.ModelsURL,
		Version:   BuildVersion,
		Commit:    BuildCommit,
		Built:     BuildDate,
	}

	return &Server{
		cfg: cfg,
		api: api,
		http: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until ctx is cancelled, then drains with a shutdown grace
// period.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("gateway listening")
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the wired route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
