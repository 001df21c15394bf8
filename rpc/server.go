package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subclone/pcidss-oracle/core/domain"
	"github.com/subclone/pcidss-oracle/crypto"
	"github.com/subclone/pcidss-oracle/observability"
)

// MessageProcessor is the submit pipeline contract the dispatcher consumes.
// The gateway passes buffers through unmodified and never pre-validates.
type MessageProcessor interface {
	Process(ctx context.Context, raw []byte) ([]byte, error)
}

// ServerConfig carries the dispatcher's construction-time settings.
type ServerConfig struct {
	// OCWPublicKey authenticates batch balance reads. Fixed for the
	// server's lifetime; key rotation means a restart.
	OCWPublicKey *crypto.PublicKey
	// SubmitRatePerMinute caps pcidss_submit_iso8583 calls per source.
	// Zero disables the cap.
	SubmitRatePerMinute int
	// TrustProxyHeaders reads the client source from X-Forwarded-For.
	// Leave off unless a proxy in front strips inbound copies.
	TrustProxyHeaders bool
	Logger            *slog.Logger
}

// Server dispatches the oracle's JSON-RPC surface over HTTP POST and
// WebSocket on one listener. It holds no per-call or cross-call state beyond
// the rate limiter's buckets.
type Server struct {
	processor    MessageProcessor
	accounts     domain.BankAccountStore
	transactions domain.TransactionStore
	ocwKey       *crypto.PublicKey
	limiter      *sourceLimiter
	trustProxy   bool
	logger       *slog.Logger
	metrics      *observability.RPCMetrics
}

func NewServer(processor MessageProcessor, accounts domain.BankAccountStore, transactions domain.TransactionStore, cfg ServerConfig) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("rpc: message processor required")
	}
	if accounts == nil || transactions == nil {
		return nil, fmt.Errorf("rpc: account and transaction stores required")
	}
	if cfg.OCWPublicKey == nil {
		return nil, fmt.Errorf("rpc: ocw public key required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		processor:    processor,
		accounts:     accounts,
		transactions: transactions,
		ocwKey:       cfg.OCWPublicKey,
		limiter:      newSourceLimiter(cfg.SubmitRatePerMinute),
		trustProxy:   cfg.TrustProxyHeaders,
		logger:       logger,
		metrics:      observability.RPC(),
	}, nil
}

// Handler returns the full HTTP surface: JSON-RPC on POST /, the same
// protocol on GET /ws, health on GET /healthz, Prometheus on GET /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handlePost)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
