package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"switchboard/internal/domain"
	"switchboard/internal/infra/tracer"
	"switchboard/internal/usecase/multiagent"
)

// Router decides which agent answers a query. *multiagent.Orchestrator
// satisfies it.
type Router interface {
	RouteByConfidence(ctx context.Context, candidates []string, query string, ac *domain.AgentContext) multiagent.RouteResult
}

// ContextEnricher attaches optional collaborators (search backends, document
// stores, credentials) to the context of every turn.
type ContextEnricher func(ac *domain.AgentContext) *domain.AgentContext

// ChatConfig holds the per-turn settings of a ChatService.
type ChatConfig struct {
	HistoryLimit int
	Topic        string
	// Agents is the default candidate set; empty means every registered agent.
	Agents []string
}

// ChatService turns one inbound message into one routed reply: it reads the
// session's recent history, routes, persists both turns and publishes the
// message and routing events.
type ChatService struct {
	router    Router
	history   domain.HistoryStore
	locker    *SessionLocker
	bus       domain.EventBus
	model     domain.LanguageModel
	cfg       ChatConfig
	enrichers []ContextEnricher
	logger    *slog.Logger
}

// ChatOption configures a ChatService.
type ChatOption func(*ChatService)

// WithEventBus publishes chat events on bus.
func WithEventBus(bus domain.EventBus) ChatOption {
	return func(s *ChatService) { s.bus = bus }
}

// WithLanguageModel sets the model handed to agents through the context.
func WithLanguageModel(m domain.LanguageModel) ChatOption {
	return func(s *ChatService) { s.model = m }
}

// WithEnrichers appends context enrichers.
func WithEnrichers(e ...ContextEnricher) ChatOption {
	return func(s *ChatService) { s.enrichers = append(s.enrichers, e...) }
}

// NewChatService creates a ChatService.
func NewChatService(router Router, history domain.HistoryStore, cfg ChatConfig, logger *slog.Logger, opts ...ChatOption) *ChatService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &ChatService{
		router:  router,
		history: history,
		locker:  NewSessionLocker(),
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one inbound message end-to-end. Routing never fails, so
// the only errors are invalid input and a cancelled context.
func (s *ChatService) Handle(ctx context.Context, msg domain.InboundMessage) (domain.OutboundMessage, error) {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return domain.OutboundMessage{}, domain.NewDomainError("ChatService.Handle", domain.ErrInvalidInput, "empty message")
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
		s.publish(ctx, domain.NewEvent(domain.EventSessionCreated, sessionID, map[string]string{"channel": msg.ChannelName}))
	}

	requestID := domain.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	}
	ctx = domain.ContextWithSessionID(ctx, sessionID)
	ctx = domain.ContextWithRequestID(ctx, requestID)

	ctx, span := tracer.StartSpan(ctx, "chat.handle")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("session.id", sessionID), tracer.StringAttr("channel", msg.ChannelName))

	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.OutboundMessage{}, domain.WrapOp("ChatService.Handle", err)
	}
	defer unlock()

	s.publish(ctx, domain.NewEvent(domain.EventMessageReceived, sessionID, map[string]string{
		"channel": msg.ChannelName,
		"content": content,
	}))

	history, err := s.history.RecentMessages(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		// A turn without history is still worth answering.
		s.logger.WarnContext(ctx, "history read failed", "error", err)
		history = nil
	}

	ac := s.buildContext(sessionID, content, history, msg)
	candidates := msg.AvailableAgents
	if len(candidates) == 0 {
		candidates = s.cfg.Agents
	}

	rr := s.router.RouteByConfidence(ctx, candidates, content, ac)

	s.publish(ctx, domain.NewEvent(domain.EventAgentRouted, sessionID, domain.AgentRoutedPayload{
		Agent:      rr.Agent,
		Path:       rr.Path,
		Confidence: rr.Result.Confidence,
		RequestID:  requestID,
	}))

	now := time.Now()
	if err := s.history.Append(ctx, sessionID,
		domain.Message{Role: domain.RoleUser, Content: content, Timestamp: now},
		domain.Message{Role: domain.RoleAssistant, Content: rr.Result.Output, Name: rr.Agent, Timestamp: now},
	); err != nil {
		s.logger.WarnContext(ctx, "history append failed", "error", err, "code", domain.ErrorCodeOf(err))
	}

	out := domain.OutboundMessage{
		SessionID:  sessionID,
		Content:    rr.Result.Output,
		IsError:    rr.Agent == domain.AgentFallback,
		Agent:      rr.Agent,
		Confidence: rr.Result.Confidence,
		Metadata: map[string]string{
			domain.MetaRoutePath: rr.Path,
			"request_id":         requestID,
		},
	}

	s.publish(ctx, domain.NewEvent(domain.EventMessageSent, sessionID, map[string]any{
		"agent":      rr.Agent,
		"confidence": rr.Result.Confidence,
		"length":     len(out.Content),
	}))

	span.SetAttributes(tracer.StringAttr("agent", rr.Agent), tracer.StringAttr("route.path", rr.Path))
	tracer.SetOK(span)

	s.logger.InfoContext(ctx, "chat turn handled",
		"agent", rr.Agent, "path", rr.Path,
		"confidence", fmt.Sprintf("%.2f", rr.Result.Confidence),
		"history", len(history))
	return out, nil
}

func (s *ChatService) buildContext(sessionID, content string, history []domain.Message, msg domain.InboundMessage) *domain.AgentContext {
	ac := domain.NewAgentContext(sessionID, content, history)
	ac.UserID = msg.SenderID
	ac.Model = s.model
	ac.Topic = s.cfg.Topic
	ac.AvailableAgents = msg.AvailableAgents
	if len(ac.AvailableAgents) == 0 {
		ac.AvailableAgents = s.cfg.Agents
	}
	for k, v := range msg.Metadata {
		ac = ac.WithValue(k, v)
	}
	for _, enrich := range s.enrichers {
		ac = enrich(ac)
	}
	return ac
}

func (s *ChatService) publish(ctx context.Context, ev domain.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, ev)
	}
}
