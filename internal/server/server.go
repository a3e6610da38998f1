package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

// Server exposes the read and operations API over HTTP plus a websocket
// event feed. Caller identity comes from the request body: the daemon
// trusts its fronting gateway the way the provider trusts its channel keys.
type Server struct {
	web    *http.Server
	svc    Service
	feed   *feed
	logger zerolog.Logger
}

func NewServer(addr string, svc Service, bus *ebus.Bus, logger zerolog.Logger) *Server {
	s := &Server{
		web: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
		},
		svc:    svc,
		feed:   newFeed(logger),
		logger: logger,
	}
	s.web.Handler = s.router()
	s.feed.attach(bus)
	return s
}

func (s *Server) router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/prices", s.handleGetPrices)
	mux.HandleFunc("POST /api/v1/prices", s.handleSetPrices)
	mux.HandleFunc("GET /api/v1/buckets/{id}", s.handleGetBucket)
	mux.HandleFunc("GET /api/v1/buckets/{id}/renewals", s.handleGetRenewals)
	mux.HandleFunc("POST /api/v1/mint", s.handleMint)
	mux.HandleFunc("POST /api/v1/renew", s.handleRenew)
	mux.HandleFunc("POST /api/v1/burn", s.handleBurn)
	mux.HandleFunc("POST /api/v1/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /api/v1/pause", s.handlePause)
	mux.HandleFunc("POST /api/v1/unpause", s.handleUnpause)
	mux.HandleFunc("GET /api/v1/events", s.feed.handleSubscribe)

	return mux
}

func (s *Server) Run(ctx context.Context) error {
	closed := make(chan error, 1)

	go func() {
		closed <- s.web.ListenAndServe()
	}()

	s.logger.Info().Str("addr", s.web.Addr).Msg("api server started")

	select {
	case err := <-closed:
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.web.Shutdown(shCtx)
		return ctx.Err()
	}
}
