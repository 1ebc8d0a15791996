package preferenceRepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"ankaa/models"
)

// CachedPreferenceRepo fronts a PreferenceRepository with Redis. Misses are
// cached too so unknown types do not hit the store on every dispatch. Redis
// failures fall through to the store.
type CachedPreferenceRepo struct {
	next   PreferenceRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedPreferenceRepo(next PreferenceRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedPreferenceRepo {
	return &CachedPreferenceRepo{next: next, client: client, ttl: ttl, logger: logger.Named("preference_cache")}
}

func userCacheKey(recipientID, notificationType string) string {
	return "ankaa:pref:user:" + recipientID + ":" + notificationType
}

func globalCacheKey(notificationType string) string {
	return "ankaa:pref:global:" + notificationType
}

func (c *CachedPreferenceRepo) GetUserPreference(ctx context.Context, recipientID, notificationType string) (*models.ChannelPreference, error) {
	key := userCacheKey(recipientID, notificationType)
	var pref *models.ChannelPreference
	if c.lookup(ctx, key, &pref) {
		return pref, nil
	}
	pref, err := c.next.GetUserPreference(ctx, recipientID, notificationType)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, pref)
	return pref, nil
}

func (c *CachedPreferenceRepo) GetGlobalDefault(ctx context.Context, notificationType string) (*models.GlobalChannelDefault, error) {
	key := globalCacheKey(notificationType)
	var def *models.GlobalChannelDefault
	if c.lookup(ctx, key, &def) {
		return def, nil
	}
	def, err := c.next.GetGlobalDefault(ctx, notificationType)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, def)
	return def, nil
}

func (c *CachedPreferenceRepo) SaveUserPreference(ctx context.Context, pref models.ChannelPreference) error {
	if err := c.next.SaveUserPreference(ctx, pref); err != nil {
		return err
	}
	c.invalidate(ctx, userCacheKey(pref.RecipientID, pref.NotificationType))
	return nil
}

func (c *CachedPreferenceRepo) SaveGlobalDefault(ctx context.Context, def models.GlobalChannelDefault) error {
	if err := c.next.SaveGlobalDefault(ctx, def); err != nil {
		return err
	}
	c.invalidate(ctx, globalCacheKey(def.NotificationType))
	return nil
}

// lookup decodes a cached value into out and reports whether the cache answered.
func (c *CachedPreferenceRepo) lookup(ctx context.Context, key string, out any) bool {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("Preference cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.logger.Warn("Preference cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedPreferenceRepo) store(ctx context.Context, key string, value any) {
	// a nil pointer is stored as "null" and read back as a cached miss
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Preference cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedPreferenceRepo) invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("Preference cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
