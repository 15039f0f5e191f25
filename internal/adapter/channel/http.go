package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
	"switchboard/internal/infra/middleware"
)

const maxChatBody = 1 << 20 // 1MB

// AgentLister reports the registered agents for GET /api/v1/agents.
type AgentLister interface {
	List() []domain.AgentInfo
}

// HTTPChannel implements domain.Channel for the JSON HTTP API.
type HTTPChannel struct {
	cfg     config.GatewayConfig
	agents  AgentLister
	logger  *slog.Logger
	handler domain.MessageHandler

	server    *http.Server
	boundAddr string

	// Lifecycle of the rate limiter sweep goroutine.
	cancel context.CancelFunc
}

var _ domain.Channel = (*HTTPChannel)(nil)

type chatRequest struct {
	SessionID string            `json:"session_id"`
	Content   string            `json:"content"`
	UserID    string            `json:"user_id,omitempty"`
	Agents    []string          `json:"agents,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type chatResponse struct {
	SessionID  string            `json:"session_id,omitempty"`
	Content    string            `json:"content,omitempty"`
	Agent      string            `json:"agent,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Error      string            `json:"error,omitempty"`
	Code       string            `json:"code,omitempty"`
}

type agentsResponse struct {
	Agents []domain.AgentInfo `json:"agents"`
}

// NewHTTPChannel creates an HTTP API channel.
func NewHTTPChannel(cfg config.GatewayConfig, agents AgentLister, logger *slog.Logger) *HTTPChannel {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPChannel{cfg: cfg, agents: agents, logger: logger}
}

// Handler returns the routed API wrapped in the middleware chain:
// request ID, access log, security headers, per-client rate limit.
func (h *HTTPChannel) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", h.handleChat)
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)
	mux.HandleFunc("GET /api/v1/agents", h.handleAgents)

	rpm, burst := h.cfg.RequestsPerMin, h.cfg.Burst
	if rpm <= 0 {
		rpm = 100
	}
	if burst <= 0 {
		burst = 20
	}
	limited := middleware.RateLimitWithConfig(ctx, middleware.RateLimitConfig{
		RequestsPerMin: rpm,
		BurstSize:      burst,
		TrustedProxies: h.cfg.TrustedProxies,
	})(mux)

	return middleware.RequestID(
		middleware.AccessLog(h.logger, h.cfg.TrustedProxies)(
			middleware.SecurityHeaders(limited),
		),
	)
}

// Start begins serving. Non-blocking.
func (h *HTTPChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	h.handler = handler

	var lctx context.Context
	lctx, h.cancel = context.WithCancel(ctx)

	readTimeout := h.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := h.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 120 * time.Second
	}

	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		Handler:           h.Handler(lctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		h.cancel()
		return fmt.Errorf("listen %s: %w", h.cfg.Addr, err)
	}
	h.boundAddr = ln.Addr().String()

	go func() {
		h.logger.Info("http channel started", "addr", h.boundAddr)
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address once started.
func (h *HTTPChannel) Addr() string { return h.boundAddr }

// Stop gracefully shuts down the HTTP server.
func (h *HTTPChannel) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// Name implements domain.Channel.
func (h *HTTPChannel) Name() string { return "http" }

func (h *HTTPChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.handler == nil {
		writeJSON(w, http.StatusServiceUnavailable, chatResponse{Error: "channel not started"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "invalid JSON: " + err.Error()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large (max 1MB)"
		}
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: msg, Code: string(domain.CodeInvalidInput)})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{
			SessionID: req.SessionID,
			Error:     "content is required",
			Code:      string(domain.CodeInvalidInput),
		})
		return
	}

	out, err := h.handler(r.Context(), domain.InboundMessage{
		SessionID:       req.SessionID,
		Content:         req.Content,
		ChannelName:     h.Name(),
		SenderID:        req.UserID,
		AvailableAgents: req.Agents,
		Metadata:        req.Metadata,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		h.logger.Warn("chat request failed", "session_id", req.SessionID, "error", err)
		writeJSON(w, status, chatResponse{
			SessionID: req.SessionID,
			Error:     http.StatusText(status),
			Code:      string(domain.ErrorCodeOf(err)),
		})
		return
	}

	resp := chatResponse{
		SessionID:  out.SessionID,
		Content:    out.Content,
		Agent:      out.Agent,
		Confidence: out.Confidence,
		Metadata:   out.Metadata,
	}
	if out.IsError {
		resp.Code = string(domain.CodeRoutingFailure)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPChannel) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPChannel) handleAgents(w http.ResponseWriter, _ *http.Request) {
	resp := agentsResponse{Agents: []domain.AgentInfo{}}
	if h.agents != nil {
		resp.Agents = append(resp.Agents, h.agents.List()...)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
