package embedding

import (
	"backend/internal/config"
	"backend/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewProviderFromConfig 按配置构建向量化提供者
// 开启缓存时外层包一层 CachedProvider，Redis 不可用则只用本地缓存
func NewProviderFromConfig(cfg *config.EmbeddingConfig, redisClient *redis.Client) Provider {
	var provider Provider

	switch cfg.Provider {
	case "openai":
		provider = NewOpenAIProvider(cfg.APIKey, cfg.Model)
	default:
		provider = NewLocalProvider(cfg.Model, cfg.CacheDir, cfg.Dimension)
	}

	logger.Info("向量化提供者已创建",
		zap.String("provider", provider.GetProviderName()),
		zap.String("model", provider.GetModel()),
		zap.Int("dimension", provider.Dimension()),
	)

	if cfg.Cache.Enabled {
		cache := NewCache(redisClient, cfg.Cache.Prefix, cfg.Cache.TTL)
		provider = NewCachedProvider(provider, cache)
	}

	return provider
}
