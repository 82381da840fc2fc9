package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"offerswap/crypto"
	"offerswap/observability"
	"offerswap/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeTxRejected     = -32010
	codeRateLimited    = -32020
)

// ServerConfig carries the RPC settings resolved from the node config.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	SubmitTimeout     time.Duration
	RateLimitPerSec   float64
	RateLimitBurst    int
	TrustProxyHeaders bool

	DevFaucet    bool
	JWTSecretEnv string
	JWTIssuer    string
}

type Server struct {
	node    Node
	cfg     ServerConfig
	logger  *slog.Logger
	limiter *rateLimiter
	auth    *tokenVerifier
	methods map[string]methodHandler
}

type methodHandler func(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError)

// NewServer wires the JSON-RPC methods to node. The dev faucet is only
// registered when enabled and a signing secret is available.
func NewServer(node Node, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	s := &Server{
		node:   node,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "rpc")),
	}
	if cfg.RateLimitPerSec > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst, cfg.TrustProxyHeaders)
	}
	if cfg.DevFaucet {
		secret := strings.TrimSpace(os.Getenv(cfg.JWTSecretEnv))
		if secret == "" {
			return nil, fmt.Errorf("rpc: dev faucet enabled but %s is empty", cfg.JWTSecretEnv)
		}
		s.auth = newTokenVerifier([]byte(secret), cfg.JWTIssuer)
	}
	s.methods = s.routes()
	return s, nil
}

func (s *Server) routes() map[string]methodHandler {
	methods := map[string]methodHandler{
		"chain_height":           s.handleChainHeight,
		"tx_send":                s.handleSendTransaction,
		"tx_submit":              s.handleSubmitTransaction,
		"tx_getReceipt":          s.handleGetReceipt,
		"ledger_getBalance":      s.handleGetBalance,
		"ledger_getHolding":      s.handleGetHolding,
		"ledger_getNative":       s.handleGetNativeBalance,
		"ledger_listAssets":      s.handleListAssets,
		"escrow_getOffer":        s.handleGetOffer,
		"escrow_deriveAddresses": s.handleDeriveAddresses,
		"escrow_listOffers":      s.handleListOffers,
		"escrow_listStaleOffers": s.handleListStaleOffers,
	}
	if s.auth != nil {
		methods["dev_mint"] = s.handleDevMint
	}
	return methods
}

// UseIndex exposes the indexed offer history over escrow_offerHistory.
func (s *Server) UseIndex(idx OfferIndex) {
	s.methods["escrow_offerHistory"] = func(ctx context.Context, params []json.RawMessage) (interface{}, *RPCError) {
		maker, err := addressParam(params, 0)
		if err != nil {
			return nil, invalidParams("maker: %v", err)
		}
		rows, err := idx.OffersByMaker(ctx, crypto.FormatAccount(maker))
		if err != nil {
			return nil, serverError(err)
		}
		out := make([]OfferHistoryResult, 0, len(rows))
		for _, row := range rows {
			out = append(out, offerHistoryResult(row))
		}
		return out, nil
	}
}

// Handler returns the HTTP surface: JSON-RPC on POST /, the event stream on
// /ws, Prometheus metrics and a health probe.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}
		r.Post("/", s.handle)
		r.Get("/ws", s.handleEventsWS)
	})
	return otelhttp.NewHandler(r, "offerswap.rpc")
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	handler, ok := s.methods[req.Method]
	if !ok {
		observability.RPC().Observe(req.Method, codeMethodNotFound, time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		return
	}
	ctx := r.Context()
	if req.Method == "dev_mint" {
		if rpcErr := s.auth.authorize(r); rpcErr != nil {
			observability.RPC().Observe(req.Method, rpcErr.Code, time.Since(start))
			s.logger.Warn("dev_mint rejected",
				slog.String("request_id", requestIDFrom(ctx)),
				slog.String("reason", rpcErr.Message),
				logging.MaskField("authorization", r.Header.Get("Authorization")))
			writeError(w, http.StatusUnauthorized, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
	}

	result, rpcErr := handler(ctx, req.Params)
	if rpcErr != nil {
		observability.RPC().Observe(req.Method, rpcErr.Code, time.Since(start))
		if rpcErr.Code == codeServerError {
			s.logger.Error("rpc handler failed",
				slog.String("method", req.Method),
				slog.String("request_id", requestIDFrom(ctx)),
				slog.String("error", rpcErr.Message))
		}
		writeError(w, statusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	observability.RPC().Observe(req.Method, 0, time.Since(start))
	writeResult(w, req.ID, result)
}

func statusFor(code int) int {
	switch code {
	case codeServerError:
		return http.StatusInternalServerError
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeNotFound:
		return http.StatusNotFound
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeTxRejected:
		return http.StatusOK
	default:
		return http.StatusBadRequest
	}
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func serverError(err error) *RPCError {
	return &RPCError{Code: codeServerError, Message: err.Error()}
}
