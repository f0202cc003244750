package promotions

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/counterpos/pkg/db/models"
	"github.com/angelmondragon/counterpos/pkg/logger"
	"github.com/angelmondragon/counterpos/pkg/redis"
)

// Source supplies the promotions active on a given date. ListActiveTx reads
// inside tx and never consults the cache.
type Source interface {
	ListActive(ctx context.Context, date time.Time) ([]Promotion, error)
	ListActiveTx(ctx context.Context, tx *gorm.DB, date time.Time) ([]Promotion, error)
}

// CachedSource reads active promotions through a short-lived redis cache.
// Cache failures fall back to the database.
type CachedSource struct {
	repo  Repository
	cache redis.Cache
	ttl   time.Duration
	logg  *logger.Logger
}

// NewSource returns a Source over repo. A nil cache or non-positive ttl disables caching.
func NewSource(repo Repository, cache redis.Cache, ttl time.Duration, logg *logger.Logger) *CachedSource {
	return &CachedSource{repo: repo, cache: cache, ttl: ttl, logg: logg}
}

func (s *CachedSource) ListActive(ctx context.Context, date time.Time) ([]Promotion, error) {
	day := date.Format(DateLayout)
	rows, err := s.load(ctx, day)
	if err != nil {
		return nil, err
	}
	return s.decode(ctx, rows), nil
}

// ListActiveTx reads the active set straight from the repository bound to tx.
func (s *CachedSource) ListActiveTx(ctx context.Context, tx *gorm.DB, date time.Time) ([]Promotion, error) {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	rows, err := repo.ListActive(ctx, date.Format(DateLayout))
	if err != nil {
		return nil, err
	}
	return s.decode(ctx, rows), nil
}

func (s *CachedSource) decode(ctx context.Context, rows []models.Promotion) []Promotion {
	out := make([]Promotion, 0, len(rows))
	for _, row := range rows {
		p, err := FromModel(row)
		if err != nil {
			s.warn(ctx, "promotions.skip_undecodable", map[string]any{"promotion_id": row.ID.String(), "error": err.Error()})
			continue
		}
		out = append(out, p)
	}
	return out
}

// Invalidate drops the cached set for date.
func (s *CachedSource) Invalidate(ctx context.Context, date time.Time) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Del(ctx, s.key(date.Format(DateLayout))); err != nil {
		s.warn(ctx, "promotions.cache_invalidate_failed", map[string]any{"error": err.Error()})
	}
}

func (s *CachedSource) load(ctx context.Context, day string) ([]models.Promotion, error) {
	if !s.cacheEnabled() {
		return s.repo.ListActive(ctx, day)
	}

	key := s.key(day)
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		var rows []models.Promotion
		if jerr := json.Unmarshal([]byte(cached), &rows); jerr == nil {
			return rows, nil
		}
	} else if !redis.IsMiss(err) {
		s.warn(ctx, "promotions.cache_read_failed", map[string]any{"error": err.Error()})
	}

	rows, err := s.repo.ListActive(ctx, day)
	if err != nil {
		return nil, err
	}
	if raw, jerr := json.Marshal(rows); jerr == nil {
		if serr := s.cache.Set(ctx, key, string(raw), s.ttl); serr != nil {
			s.warn(ctx, "promotions.cache_write_failed", map[string]any{"error": serr.Error()})
		}
	}
	return rows, nil
}

func (s *CachedSource) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *CachedSource) key(day string) string {
	return s.cache.CacheKey("promotions", "active", day)
}

func (s *CachedSource) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}
