package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ryckox/syntagma/internal/metrics"
	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/pkg/logger"
)

const (
	keyPrefix  = "syntagma:ruleset:"
	defaultTTL = 5 * time.Minute
)

// RulesetCache 规则集详情缓存
//
// nil 值可以直接使用，所有操作都是空操作。Redis 错误按未命中处理。
type RulesetCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRulesetCache 创建规则集缓存，client 为 nil 时返回 nil
func NewRulesetCache(client redis.UniversalClient, ttl time.Duration) *RulesetCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RulesetCache{client: client, ttl: ttl}
}

func key(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// Get 读取缓存
func (c *RulesetCache) Get(ctx context.Context, id int64) (*model.Ruleset, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("ruleset cache read failed", zap.Int64("id", id), zap.Error(err))
			metrics.RecordCacheRequest("error")
		} else {
			metrics.RecordCacheRequest("miss")
		}
		return nil, false
	}

	var ruleset model.Ruleset
	if err := json.Unmarshal(data, &ruleset); err != nil {
		logger.Warn("ruleset cache entry is malformed", zap.Int64("id", id), zap.Error(err))
		metrics.RecordCacheRequest("error")
		c.Invalidate(ctx, id)
		return nil, false
	}
	metrics.RecordCacheRequest("hit")
	return &ruleset, true
}

// Set 写入缓存
func (c *RulesetCache) Set(ctx context.Context, ruleset *model.Ruleset) {
	if c == nil || ruleset == nil {
		return
	}
	data, err := json.Marshal(ruleset)
	if err != nil {
		logger.Warn("ruleset cache encode failed", zap.Int64("id", ruleset.ID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key(ruleset.ID), data, c.ttl).Err(); err != nil {
		logger.Warn("ruleset cache write failed", zap.Int64("id", ruleset.ID), zap.Error(err))
	}
}

// Invalidate 删除缓存
func (c *RulesetCache) Invalidate(ctx context.Context, id int64) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		logger.Warn("ruleset cache invalidate failed", zap.Int64("id", id), zap.Error(err))
	}
}
