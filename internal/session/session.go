// Package session keeps the per-visitor conversation context: the detected
// role and intent and which chat capabilities were already used.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/cache"
	"github.com/RichardoC/leadline/internal/db"
	"github.com/RichardoC/leadline/internal/intelligence"
	"github.com/RichardoC/leadline/internal/models"
)

const cacheService = "leadline"

// Store is the persistence the service needs; *db.Database satisfies it.
type Store interface {
	GetContext(ctx context.Context, sessionID string) (*models.ConversationContext, error)
	UpsertContext(ctx context.Context, c *models.ConversationContext) error
	AddCapability(ctx context.Context, sessionID, name string) (bool, *models.ConversationContext, error)
	LogActivity(ctx context.Context, kind models.ActivityKind, subjectID, detail string) error
}

type Service struct {
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewService(store Store, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Service {
	if c == nil {
		c = cache.Nop()
	}
	return &Service{store: store, cache: c, ttl: ttl, logger: logger}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID accepts the ids NewID hands out.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func cacheKey(sessionID string) string {
	return cache.Key(cacheService, "context", "session_id", sessionID)
}

// Get returns the context for sessionID, or an empty one if nothing was
// recorded yet.
func (s *Service) Get(ctx context.Context, sessionID string) (*models.ConversationContext, error) {
	var cached models.ConversationContext
	hit, err := s.cache.Get(ctx, cacheKey(sessionID), &cached)
	if err != nil {
		s.logger.Warn("context cache read failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	c, err := s.store.GetContext(ctx, sessionID)
	if errors.Is(err, db.ErrNotFound) {
		return &models.ConversationContext{SessionID: sessionID, CapabilitiesUsed: models.StringList{}}, nil
	}
	if err != nil {
		return nil, err
	}
	s.remember(ctx, c)
	return c, nil
}

// Observe merges a newly detected intent and role into the session. Weak
// signals never overwrite what is already known.
func (s *Service) Observe(ctx context.Context, sessionID string, intent intelligence.Intent, role intelligence.Role) (*models.ConversationContext, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	changed := false
	if intent.Type != intelligence.IntentOther && intent.Type != "" && string(intent.Type) != c.Intent {
		c.Intent = string(intent.Type)
		changed = true
	}
	if c.Intent == "" {
		c.Intent = string(intelligence.IntentOther)
		changed = true
	}
	// a free-form guess never replaces a known role; a table match replaces anything
	if !role.Empty() && role.Title != c.Role && (c.Role == "" || role.Category != intelligence.RoleOther) {
		c.Role = role.Title
		c.RoleCategory = string(role.Category)
		changed = true
	}
	if !changed {
		return c, nil
	}

	if err := s.store.UpsertContext(ctx, c); err != nil {
		return nil, err
	}
	s.forget(ctx, sessionID)
	return c, nil
}

// RecordCapability notes the first use of a capability. recorded is false
// when it had been used before in this session.
func (s *Service) RecordCapability(ctx context.Context, sessionID, name string) (bool, *models.ConversationContext, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !intelligence.KnownCapability(name) {
		return false, nil, models.Invalid("capability", fmt.Sprintf("unknown capability %q", name))
	}

	recorded, c, err := s.store.AddCapability(ctx, sessionID, name)
	if err != nil {
		return false, nil, err
	}
	if recorded {
		s.forget(ctx, sessionID)
		if err := s.store.LogActivity(ctx, models.ActivityCapabilityUsed, sessionID, name); err != nil {
			s.logger.Warn("failed to log capability use", zap.Error(err))
		}
	}
	return recorded, c, nil
}

// AttachLead links a captured lead to the session.
func (s *Service) AttachLead(ctx context.Context, sessionID, leadID string) error {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if c.LeadID == leadID {
		return nil
	}
	c.LeadID = leadID
	if err := s.store.UpsertContext(ctx, c); err != nil {
		return err
	}
	s.forget(ctx, sessionID)
	return nil
}

func (s *Service) remember(ctx context.Context, c *models.ConversationContext) {
	if err := s.cache.Set(ctx, cacheKey(c.SessionID), c, s.ttl); err != nil {
		s.logger.Warn("context cache write failed", zap.String("session_id", c.SessionID), zap.Error(err))
	}
}

func (s *Service) forget(ctx context.Context, sessionID string) {
	if err := s.cache.Delete(ctx, cacheKey(sessionID)); err != nil {
		s.logger.Warn("context cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}
