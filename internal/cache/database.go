package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/blotter/internal/models"
)

var errNoDatabase = errors.New("cache: database store not initialised")

// DatabaseStore keeps counters in the rate_counters table so limits hold
// across replicas without Redis.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore returns nil for a nil db.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

// WithClock swaps the time source.
func (s *DatabaseStore) WithClock(now func() time.Time) *DatabaseStore {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

// Consume takes one point inside a transaction. The row is first inserted
// already expired if missing, so concurrent first hits never collide on the
// primary key, then locked and advanced.
func (s *DatabaseStore) Consume(ctx context.Context, key string, limit int64, window time.Duration) (Counter, error) {
	if s == nil {
		return Counter{}, errNoDatabase
	}
	if window <= 0 {
		window = time.Minute
	}
	now := s.now()

	var out Counter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.RateCounter{Key: key, ExpiresAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var row models.RateCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&row, "counter_key = ?", key).Error; err != nil {
			return err
		}

		var dirty bool
		out, dirty = advance(&row, now, limit, window)
		if !dirty {
			return nil
		}
		return tx.Model(&row).Updates(map[string]any{
			"hits":       row.Hits,
			"expires_at": row.ExpiresAt,
		}).Error
	})
	if err != nil {
		return Counter{}, err
	}
	return out, nil
}

// Peek reads the counter without locking or writing it. A missing or elapsed
// row reads as an unused window.
func (s *DatabaseStore) Peek(ctx context.Context, key string, limit int64) (Counter, error) {
	if s == nil {
		return Counter{}, errNoDatabase
	}
	now := s.now()

	var row models.RateCounter
	err := s.db.WithContext(ctx).Take(&row, "counter_key = ?", key).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Counter{Allowed: limit > 0}, nil
	case err != nil:
		return Counter{}, err
	case !now.Before(row.ExpiresAt):
		return Counter{Allowed: limit > 0}, nil
	}
	return Counter{Used: row.Hits, Allowed: row.Hits < limit, ResetIn: row.ExpiresAt.Sub(now)}, nil
}

// advance applies one hit to row and reports whether it changed. An elapsed
// window restarts at now; a full window is left untouched.
func advance(row *models.RateCounter, now time.Time, limit int64, window time.Duration) (Counter, bool) {
	dirty := false
	if !now.Before(row.ExpiresAt) {
		row.Hits = 0
		row.ExpiresAt = now.Add(window)
		dirty = true
	}

	out := Counter{Used: row.Hits, ResetIn: row.ExpiresAt.Sub(now)}
	if row.Hits >= limit {
		return out, dirty
	}
	row.Hits++
	out.Used = row.Hits
	out.Allowed = true
	return out, true
}

// Delete removes keys, ignoring missing ones.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errNoDatabase
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("counter_key IN ?", keys).Delete(&models.RateCounter{}).Error
}

// PurgeExpired deletes counters whose window has closed and returns how many.
func (s *DatabaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errNoDatabase
	}
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.RateCounter{})
	return res.RowsAffected, res.Error
}
