package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/RichardoC/leadline/internal/config"
	"github.com/RichardoC/leadline/internal/intelligence"
	"github.com/RichardoC/leadline/internal/models"
)

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("model returned an empty response")

const requestTimeout = 60 * time.Second

// HistoryStore is the part of the database the chat needs.
type HistoryStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
}

type Service struct {
	llm          llms.Model
	store        HistoryStore
	limiter      *rate.Limiter
	logger       *zap.Logger
	temperature  float64
	maxTokens    int
	historyLimit int
}

// New connects to an OpenAI-compatible endpoint (OpenAI, Ollama, vLLM, ...).
func New(cfg config.LLMConfig, store HistoryStore, logger *zap.Logger) (*Service, error) {
	token := cfg.APIKey
	if token == "" {
		// local servers ignore the key but the client insists on one
		token = "unused"
	}
	model, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model client: %w", err)
	}
	return NewWithModel(model, cfg, store, logger), nil
}

// NewWithModel wraps an existing model, e.g. a fake in tests.
func NewWithModel(model llms.Model, cfg config.LLMConfig, store HistoryStore, logger *zap.Logger) *Service {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Service{
		llm:          model,
		store:        store,
		limiter:      newLimiter(cfg.RateLimitBurst, cfg.RateLimitPerMin),
		logger:       logger,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		historyLimit: historyLimit,
	}
}

type ChatRequest struct {
	SessionID   string
	Message     string
	Context     *models.ConversationContext
	Suggestions []intelligence.Capability
}

// Chat stores the visitor message, asks the model for a reply and stores
// that too. When onToken is set the reply is streamed through it as it is
// generated; the returned message still carries the full text.
func (s *Service) Chat(ctx context.Context, req ChatRequest, onToken func(token string) error) (*models.Message, error) {
	userMsg := &models.Message{
		SessionID: req.SessionID,
		Role:      models.RoleUser,
		Content:   req.Message,
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	history, err := s.store.GetSessionHistory(ctx, req.SessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt(req.Context, req.Suggestions)),
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case models.RoleAssistant:
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		}
	}

	opts := s.callOptions()
	if onToken != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return onToken(string(chunk))
		}))
	}

	reply, err := s.generate(ctx, content, opts...)
	if err != nil {
		return nil, err
	}

	assistantMsg := &models.Message{
		SessionID: req.SessionID,
		Role:      models.RoleAssistant,
		Content:   reply,
	}
	if err := s.store.SaveMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	return assistantMsg, nil
}

// Summarize condenses a chat transcript for the lead record.
func (s *Service) Summarize(ctx context.Context, history []models.Message) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summaryInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, transcript(history)),
	}
	summary, err := s.generate(ctx, content, llms.WithTemperature(0.2), llms.WithMaxTokens(200))
	if err != nil {
		return "", fmt.Errorf("failed to summarize conversation: %w", err)
	}
	return summary, nil
}

// SummarizeSession loads the stored transcript and summarizes it.
func (s *Service) SummarizeSession(ctx context.Context, sessionID string) (string, error) {
	history, err := s.store.GetSessionHistory(ctx, sessionID, s.historyLimit)
	if err != nil {
		return "", err
	}
	return s.Summarize(ctx, history)
}

// Ask sends a single prompt, used by the CLI to check provider settings.
func (s *Service) Ask(ctx context.Context, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, s.callOptions()...)
}

// newLimiter builds the token bucket shared by every provider call.
func newLimiter(burst int, perMinute float64) *rate.Limiter {
	if burst <= 0 {
		burst = 10
	}
	if perMinute <= 0 {
		perMinute = 60
	}
	return rate.NewLimiter(rate.Limit(perMinute/60), burst)
}

func (s *Service) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if s.temperature > 0 {
		opts = append(opts, llms.WithTemperature(s.temperature))
	}
	if s.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.maxTokens))
	}
	return opts
}

func (s *Service) generate(ctx context.Context, content []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	s.logger.Debug("completion generated",
		zap.Int("messages", len(content)),
		zap.Duration("duration", time.Since(start)))

	return strings.TrimSpace(resp.Choices[0].Content), nil
}
