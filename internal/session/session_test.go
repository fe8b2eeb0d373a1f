package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/db"
	"github.com/RichardoC/leadline/internal/intelligence"
	"github.com/RichardoC/leadline/internal/models"
)

// mapCache is an in-memory cache.Cache that counts hits.
type mapCache struct {
	values map[string][]byte
	hits   int
}

func newMapCache() *mapCache { return &mapCache{values: map[string][]byte{}} }

func (m *mapCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	b, ok := m.values[key]
	if !ok {
		return false, nil
	}
	m.hits++
	return true, json.Unmarshal(b, dest)
}

func (m *mapCache) Set(_ context.Context, key string, v interface{}, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.values[key] = b
	return nil
}

func (m *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *mapCache) Close() error { return nil }

func newService(t *testing.T) (*Service, *db.Database, *mapCache) {
	t.Helper()
	database, err := db.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate(context.Background()))

	c := newMapCache()
	return NewService(database, c, time.Hour, zap.NewNop()), database, c
}

func TestGet_EmptyForUnknownSession(t *testing.T) {
	s, _, _ := newService(t)
	c, err := s.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", c.SessionID)
	assert.Empty(t, c.CapabilitiesUsed)
}

func TestObserve(t *testing.T) {
	ctx := context.Background()
	s, _, c := newService(t)

	got, err := s.Observe(ctx, "s1",
		intelligence.DetectIntent("we want a workshop"),
		intelligence.DetectRole("I'm the CTO"))
	require.NoError(t, err)
	assert.Equal(t, "workshop", got.Intent)
	assert.Equal(t, "cto", got.Role)
	assert.Equal(t, "technical_leader", got.RoleCategory)

	// a weak follow-up keeps what we know
	got, err = s.Observe(ctx, "s1",
		intelligence.DetectIntent("thanks!"),
		intelligence.DetectRole("my role is general dogsbody"))
	require.NoError(t, err)
	assert.Equal(t, "workshop", got.Intent)
	assert.Equal(t, "cto", got.Role)

	// second read is served from cache
	_, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	_, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.hits, 1)

	// a stronger signal replaces the old one and invalidates the cache
	got, err = s.Observe(ctx, "s1",
		intelligence.DetectIntent("we need a consultant for our automation strategy"),
		intelligence.Role{})
	require.NoError(t, err)
	assert.Equal(t, "consulting", got.Intent)

	fresh, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "consulting", fresh.Intent)
}

func TestObserve_DefaultsToOther(t *testing.T) {
	s, _, _ := newService(t)
	got, err := s.Observe(context.Background(), "s2", intelligence.DetectIntent("hello"), intelligence.Role{})
	require.NoError(t, err)
	assert.Equal(t, "other", got.Intent)
}

func TestRecordCapability(t *testing.T) {
	ctx := context.Background()
	s, database, _ := newService(t)

	recorded, c, err := s.RecordCapability(ctx, "s1", "ROI_calculator")
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, models.StringList{"roi_calculator"}, c.CapabilitiesUsed)

	recorded, _, err = s.RecordCapability(ctx, "s1", "roi_calculator")
	require.NoError(t, err)
	assert.False(t, recorded)

	activity, err := database.ListActivity(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, activity, 1, "only the first use is logged")
	assert.Equal(t, models.ActivityCapabilityUsed, activity[0].Kind)

	_, _, err = s.RecordCapability(ctx, "s1", "teleport")
	var verrs models.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestAttachLead(t *testing.T) {
	ctx := context.Background()
	s, database, _ := newService(t)

	require.NoError(t, s.AttachLead(ctx, "s1", "lead-1"))
	stored, err := database.GetContext(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "lead-1", stored.LeadID)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID("nope"))
}
