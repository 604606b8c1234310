package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/internal/observability/metrics"
	"github.com/salonchat/supportdesk/pkg/logging"
)

// MaxSuggestions caps the drafted replies offered to staff.
const MaxSuggestions = 3

var (
	ErrEmptyQuestion = errors.New("assistant: question is empty")
	ErrUnavailable   = errors.New("assistant: no language model configured")
)

var assistantTracer = otel.Tracer("supportdesk.internal.assistant")

// Knowledge is the venue information the model may quote.
type Knowledge interface {
	GetSettings(ctx context.Context) (*catalog.AppSettings, error)
	ListBranches(ctx context.Context) ([]catalog.Branch, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

// Service answers questions and drafts replies.
type Service struct {
	client    LLMClient
	knowledge Knowledge
	metrics   *metrics.ChatMetrics
	logger    *logging.Logger
	language  string
	timeout   time.Duration
}

// NewService creates the assistant. client may be nil, in which case every
// call fails with ErrUnavailable.
func NewService(client LLMClient, knowledge Knowledge, language string, timeout time.Duration, m *metrics.ChatMetrics, logger *logging.Logger) *Service {
	if knowledge == nil {
		panic("assistant: knowledge source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if language == "" {
		language = "vi"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{client: client, knowledge: knowledge, metrics: m, logger: logger, language: language, timeout: timeout}
}

// Enabled reports whether a model is wired.
func (s *Service) Enabled() bool {
	return s != nil && s.client != nil
}

// AnswerQuestion replies to a customer using the venue's settings, branches
// and active products as context.
func (s *Service) AnswerQuestion(ctx context.Context, question string, history []ChatMessage) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	system, err := s.venueContext(ctx)
	if err != nil {
		return "", err
	}
	system = append([]string{
		fmt.Sprintf("You are the customer support assistant of this venue. Reply in %s. Be brief and friendly. "+
			"Only state prices, services and opening details that appear in the venue information below; "+
			"when unsure, offer to connect the customer with staff.", languageName(s.language)),
	}, system...)

	messages := append(trimHistory(history), ChatMessage{Role: RoleUser, Content: question})
	resp, err := s.complete(ctx, "answer", Prompt{System: system, Messages: messages, MaxTokens: 512, Temperature: 0.3})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// SuggestReplies drafts up to MaxSuggestions replies staff could send to the
// customer's latest message.
func (s *Service) SuggestReplies(ctx context.Context, customerMessage string, history []ChatMessage) ([]string, error) {
	customerMessage = strings.TrimSpace(customerMessage)
	if customerMessage == "" {
		return nil, ErrEmptyQuestion
	}
	system, err := s.venueContext(ctx)
	if err != nil {
		return nil, err
	}
	system = append([]string{
		fmt.Sprintf("You help support staff reply to customers. Write %d short alternative replies in %s to the "+
			"customer's last message. Respond with a JSON array of strings and nothing else.", MaxSuggestions, languageName(s.language)),
	}, system...)

	messages := append(trimHistory(history), ChatMessage{Role: RoleUser, Content: customerMessage})
	resp, err := s.complete(ctx, "suggest", Prompt{System: system, Messages: messages, MaxTokens: 512, Temperature: 0.7})
	if err != nil {
		return nil, err
	}
	return parseSuggestions(resp.Text), nil
}

func (s *Service) complete(ctx context.Context, op string, req Prompt) (Completion, error) {
	if !s.Enabled() {
		return Completion{}, ErrUnavailable
	}
	ctx, span := assistantTracer.Start(ctx, "assistant."+op)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		s.metrics.ObserveAssistant(op, "error", time.Since(start).Seconds())
		span.RecordError(err)
		s.logger.Warn("assistant: completion failed", "operation", op, "error", err)
		return Completion{}, err
	}
	s.metrics.ObserveAssistant(op, "ok", time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("supportdesk.llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("supportdesk.llm.output_tokens", resp.Usage.OutputTokens),
	)
	s.logger.Debug("assistant: completion", "operation", op, "stop_reason", resp.StopReason, "total_tokens", resp.Usage.Total())
	return resp, nil
}

func (s *Service) venueContext(ctx context.Context) ([]string, error) {
	settings, err := s.knowledge.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("assistant: load settings: %w", err)
	}
	branches, err := s.knowledge.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("assistant: load branches: %w", err)
	}
	products, err := s.knowledge.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("assistant: load products: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Venue: %s\n", settings.VenueName)
	if settings.Description != "" {
		fmt.Fprintf(&b, "About: %s\n", settings.Description)
	}
	if settings.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", settings.Address)
	}
	if settings.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", settings.Phone)
	}
	if len(settings.WorkingHours) > 0 {
		fmt.Fprintf(&b, "Appointment start times: %s\n", strings.Join(settings.WorkingHours, ", "))
	}
	for _, br := range branches {
		if !br.IsActive {
			continue
		}
		fmt.Fprintf(&b, "Branch: %s, %s\n", br.Name, br.Address)
	}
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		fmt.Fprintf(&b, "Service: %s (%s) %d VND", p.Name, p.Category, p.PriceVND)
		if p.IsSessionBased() {
			fmt.Fprintf(&b, ", package of %d sessions", *p.SessionCount)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
		b.WriteString("\n")
	}
	return []string{b.String()}, nil
}

// parseSuggestions accepts a JSON array, optionally fenced, and falls back to
// one suggestion per non-empty line.
func parseSuggestions(text string) []string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		raw = strings.Split(text, "\n")
	}
	out := make([]string, 0, MaxSuggestions)
	for _, s := range raw {
		s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "-*0123456789.) "))
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

func trimHistory(history []ChatMessage) []ChatMessage {
	const maxTurns = 20
	out := make([]ChatMessage, 0, len(history)+1)
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	for _, m := range history {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		out = append(out, m)
	}
	return out
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "vi", "vi-vn":
		return "Vietnamese"
	case "en", "en-us":
		return "English"
	default:
		return code
	}
}
