package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promptforge-app/promptforge/internal/config"
	"github.com/promptforge-app/promptforge/internal/gemini"
	"github.com/promptforge-app/promptforge/internal/metrics"
	"github.com/promptforge-app/promptforge/internal/nats"
	"github.com/promptforge-app/promptforge/internal/quota"
)

const (
	generateTemperature = 0.7
	generateMaxTokens   = 2000
	questionsMaxTokens  = 500
)

// Completer is the slice of the Gemini client the service needs.
type Completer interface {
	Complete(ctx context.Context, opts gemini.Options, msgs []gemini.Message) (string, error)
}

// Allowancer enforces the per-user daily generation allowance.
type Allowancer interface {
	Consume(ctx context.Context, userID uuid.UUID) error
	Status(ctx context.Context, userID uuid.UUID) (quota.Status, error)
	Limit() int
}

// EventPublisher records generation outcomes for the audit trail.
type EventPublisher interface {
	PublishAuditEvent(ctx context.Context, event nats.AuditEvent) error
}

// Service turns a user's raw idea into an engineered prompt. Generate is
// gated by the daily allowance; Questions is not, so users can iterate on
// their idea freely before spending a unit.
type Service struct {
	guard     Allowancer
	llm       Completer
	publisher EventPublisher
	cfg       config.GeminiConfig
	logger    *slog.Logger
}

func NewService(guard Allowancer, llm Completer, publisher EventPublisher, cfg config.GeminiConfig, logger *slog.Logger) *Service {
	return &Service{guard: guard, llm: llm, publisher: publisher, cfg: cfg, logger: logger}
}

// Generate consumes one unit of the user's daily allowance and synthesizes
// the final prompt. The unit is consumed before the model is called and is
// not refunded on failure.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, req GenerateRequest) (string, error) {
	if err := s.guard.Consume(ctx, userID); err != nil {
		if quota.IsExceeded(err) {
			metrics.QuotaRejectionsTotal.Inc()
			metrics.GenerationsTotal.WithLabelValues("prompt", "quota_rejected").Inc()
			s.publishEvent(ctx, userID, nats.EventQuotaRejected, "warning", "", "daily allowance exhausted")
		}
		return "", err
	}

	text, err := s.llm.Complete(ctx, gemini.Options{
		Model:           s.cfg.Model,
		System:          finalPromptSystem,
		Temperature:     generateTemperature,
		MaxOutputTokens: generateMaxTokens,
	}, []gemini.Message{
		{Role: "user", Text: buildUserContent(req.InitialIdea, req.ContextQuestions)},
	})
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("prompt", "error").Inc()
		return "", fmt.Errorf("generating prompt: %w", err)
	}

	metrics.GenerationsTotal.WithLabelValues("prompt", "success").Inc()
	s.publishEvent(ctx, userID, nats.EventPromptGenerated, "info", s.cfg.Model, "")
	return text, nil
}

// Questions asks the model for clarifying questions about the idea. It does
// not touch the allowance.
func (s *Service) Questions(ctx context.Context, userID uuid.UUID, req QuestionsRequest) ([]string, error) {
	raw, err := s.llm.Complete(ctx, gemini.Options{
		Model:           s.cfg.QuestionsModel,
		System:          questionsSystem,
		Temperature:     generateTemperature,
		MaxOutputTokens: questionsMaxTokens,
	}, []gemini.Message{
		{Role: "user", Text: req.InitialIdea},
	})
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("questions", "error").Inc()
		return nil, fmt.Errorf("generating questions: %w", err)
	}

	questions, err := parseQuestions(raw)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("questions", "error").Inc()
		return nil, fmt.Errorf("%w: %v", gemini.ErrEmptyCompletion, err)
	}

	metrics.GenerationsTotal.WithLabelValues("questions", "success").Inc()
	s.publishEvent(ctx, userID, nats.EventQuestionsGenerated, "info", s.cfg.QuestionsModel, "")
	return questions, nil
}

// QuotaStatus reports the user's remaining allowance.
func (s *Service) QuotaStatus(ctx context.Context, userID uuid.UUID) (quota.Status, error) {
	return s.guard.Status(ctx, userID)
}

// publishEvent records an audit event best-effort: losing an audit entry is
// preferable to failing the user's request.
func (s *Service) publishEvent(ctx context.Context, userID uuid.UUID, eventType, severity, model, details string) {
	if s.publisher == nil {
		return
	}
	event := nats.AuditEvent{
		OwnerUserID: userID,
		EventType:   eventType,
		Severity:    severity,
		Model:       model,
		Details:     details,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.publisher.PublishAuditEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish audit event", "event_type", eventType, "error", err)
	}
}
