package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 向量缓存（L1 本地 + L2 Redis）
// Redis 客户端为 nil 时退化为纯内存缓存
type Cache struct {
	redis        *redis.Client
	localCache   sync.Map
	prefix       string
	ttl          time.Duration
	maxLocalSize int
	localCount   int64
	mu           sync.RWMutex
}

// cachedVector 缓存的向量条目
type cachedVector struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewCache 创建向量缓存
func NewCache(redisClient *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "emb:"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour // 默认 7 天
	}
	return &Cache{
		redis:        redisClient,
		prefix:       prefix,
		ttl:          ttl,
		maxLocalSize: 10000, // 本地最多缓存 1 万条
	}
}

// Get 获取缓存的向量
func (c *Cache) Get(ctx context.Context, text, model string) ([]float32, bool) {
	key := c.makeKey(text, model)

	// 先查本地缓存
	if val, ok := c.localCache.Load(key); ok {
		cached := val.(*cachedVector)
		return cached.Vector, true
	}

	// 再查 Redis
	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			var cached cachedVector
			if json.Unmarshal(data, &cached) == nil {
				c.setLocal(key, &cached)
				return cached.Vector, true
			}
		}
	}

	return nil, false
}

// Set 设置缓存
func (c *Cache) Set(ctx context.Context, text, model string, vector []float32) error {
	key := c.makeKey(text, model)
	cached := &cachedVector{
		Vector:    vector,
		Model:     model,
		CreatedAt: time.Now(),
	}

	c.setLocal(key, cached)

	if c.redis != nil {
		data, err := json.Marshal(cached)
		if err != nil {
			return err
		}
		return c.redis.Set(ctx, key, data, c.ttl).Err()
	}

	return nil
}

// GetBatch 批量获取缓存，返回命中结果和未命中文本
func (c *Cache) GetBatch(ctx context.Context, texts []string, model string) (map[string][]float32, []string) {
	results := make(map[string][]float32)
	var missing []string

	for _, text := range texts {
		if vec, ok := c.Get(ctx, text, model); ok {
			results[text] = vec
		} else {
			missing = append(missing, text)
		}
	}

	return results, missing
}

// SetBatch 批量设置缓存
func (c *Cache) SetBatch(ctx context.Context, texts []string, model string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("texts and vectors length mismatch")
	}

	for i, text := range texts {
		if err := c.Set(ctx, text, model, vectors[i]); err != nil {
			return err
		}
	}

	return nil
}

// makeKey 生成缓存键
func (c *Cache) makeKey(text, model string) string {
	hash := sha256.Sum256([]byte(text))
	return c.prefix + model + ":" + hex.EncodeToString(hash[:16]) // 只取前 16 字节
}

// setLocal 设置本地缓存
func (c *Cache) setLocal(key string, cached *cachedVector) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 如果本地缓存已满，清理一半
	if c.localCount >= int64(c.maxLocalSize) {
		c.evictLocal()
	}

	// 覆盖已有键不增加计数
	if _, loaded := c.localCache.Load(key); loaded {
		c.localCache.Store(key, cached)
		return
	}
	c.localCache.Store(key, cached)
	c.localCount++
}

// evictLocal 清理本地缓存
func (c *Cache) evictLocal() {
	count := 0
	c.localCache.Range(func(key, value interface{}) bool {
		if count < c.maxLocalSize/2 {
			c.localCache.Delete(key)
			count++
			return true
		}
		return false
	})
	c.localCount -= int64(count)
}

// CachedProvider 带缓存的向量化提供者包装器
type CachedProvider struct {
	provider Provider
	cache    *Cache
}

// NewCachedProvider 创建带缓存的向量化提供者
func NewCachedProvider(provider Provider, cache *Cache) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    cache,
	}
}

// Initialize 透传给底层提供者
func (p *CachedProvider) Initialize(ctx context.Context) error {
	return p.provider.Initialize(ctx)
}

// Embed 单条向量化 (带缓存)
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	model := p.provider.GetModel()

	if vec, ok := p.cache.Get(ctx, text, model); ok {
		return vec, nil
	}

	vec, err := p.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	p.cache.Set(ctx, text, model, vec)

	return vec, nil
}

// EmbedBatch 批量向量化 (带缓存)
func (p *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := p.provider.GetModel()

	cached, missing := p.cache.GetBatch(ctx, texts, model)

	// 全部命中，直接返回
	if len(missing) == 0 {
		result := make([][]float32, len(texts))
		for i, text := range texts {
			result[i] = cached[text]
		}
		return result, nil
	}

	missingVectors, err := p.provider.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	p.cache.SetBatch(ctx, missing, model, missingVectors)

	missingMap := make(map[string][]float32)
	for i, text := range missing {
		missingMap[text] = missingVectors[i]
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := cached[text]; ok {
			result[i] = vec
		} else {
			result[i] = missingMap[text]
		}
	}

	return result, nil
}

// Dimension 获取向量维度
func (p *CachedProvider) Dimension() int {
	return p.provider.Dimension()
}

// GetModel 获取模型名称
func (p *CachedProvider) GetModel() string {
	return p.provider.GetModel()
}

// GetProviderName 获取提供者名称
func (p *CachedProvider) GetProviderName() string {
	return p.provider.GetProviderName()
}
