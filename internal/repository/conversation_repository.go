// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"shopchat-go/internal/model"
)

// ConversationRepository 保存每个用户的对话记录，只支持追加。
type ConversationRepository interface {
	Load(ctx context.Context, userID string) ([]model.ConversationEntry, error)
	Append(ctx context.Context, userID string, entry model.ConversationEntry) error
	Users(ctx context.Context) ([]string, error)
}

const conversationKeyPrefix = "shopchat:conversation:"

func conversationKey(userID string) string {
	return conversationKeyPrefix + userID
}

type redisConversationRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewConversationRepository 创建基于 Redis 列表的 ConversationRepository，每次追加都会刷新过期时间。
func NewConversationRepository(redisClient *redis.Client, ttl time.Duration) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, ttl: ttl}
}

func (r *redisConversationRepository) Load(ctx context.Context, userID string) ([]model.ConversationEntry, error) {
	raw, err := r.redisClient.LRange(ctx, conversationKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	entries := make([]model.ConversationEntry, 0, len(raw))
	for _, item := range raw {
		var e model.ConversationEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *redisConversationRepository) Append(ctx context.Context, userID string, entry model.ConversationEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation entry: %w", err)
	}
	key := conversationKey(userID)
	pipe := r.redisClient.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append conversation entry: %w", err)
	}
	return nil
}

func (r *redisConversationRepository) Users(ctx context.Context) ([]string, error) {
	var users []string
	iter := r.redisClient.Scan(ctx, 0, conversationKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		users = append(users, strings.TrimPrefix(iter.Val(), conversationKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan conversation keys: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

type memoryConversationRepository struct {
	mu      sync.RWMutex
	entries map[string][]model.ConversationEntry
}

// NewMemoryConversationRepository 创建进程内的 ConversationRepository，未配置 Redis 时使用。
func NewMemoryConversationRepository() ConversationRepository {
	return &memoryConversationRepository{entries: make(map[string][]model.ConversationEntry)}
}

func (r *memoryConversationRepository) Load(_ context.Context, userID string) ([]model.ConversationEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ConversationEntry, len(r.entries[userID]))
	copy(out, r.entries[userID])
	return out, nil
}

func (r *memoryConversationRepository) Append(_ context.Context, userID string, entry model.ConversationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userID] = append(r.entries[userID], entry)
	return nil
}

func (r *memoryConversationRepository) Users(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.entries))
	for u := range r.entries {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}
