package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"shopchat-go/internal/model"
)

// PreferenceRepository 保存界面设置和消息评价。
type PreferenceRepository interface {
	// GetSettings 返回用户保存过的设置；没有保存过时 ok 为 false。
	GetSettings(ctx context.Context, userID string) (settings model.ChatSettings, ok bool, err error)
	SaveSettings(ctx context.Context, userID string, settings model.ChatSettings) error
	GetFeedback(ctx context.Context, userID string) (map[string]model.Feedback, error)
	// SetFeedback 记录评价，FeedbackNone 表示清除。
	SetFeedback(ctx context.Context, userID, entryID string, fb model.Feedback) error
}

type redisPreferenceRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewPreferenceRepository 创建基于 Redis 的 PreferenceRepository。
func NewPreferenceRepository(redisClient *redis.Client, ttl time.Duration) PreferenceRepository {
	return &redisPreferenceRepository{redisClient: redisClient, ttl: ttl}
}

func settingsKey(userID string) string { return "shopchat:settings:" + userID }
func feedbackKey(userID string) string { return "shopchat:feedback:" + userID }

func (r *redisPreferenceRepository) GetSettings(ctx context.Context, userID string) (model.ChatSettings, bool, error) {
	raw, err := r.redisClient.Get(ctx, settingsKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.ChatSettings{}, false, nil
	}
	if err != nil {
		return model.ChatSettings{}, false, fmt.Errorf("failed to get settings: %w", err)
	}
	var s model.ChatSettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return model.ChatSettings{}, false, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return s, true, nil
}

func (r *redisPreferenceRepository) SaveSettings(ctx context.Context, userID string, settings model.ChatSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	if err := r.redisClient.Set(ctx, settingsKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (r *redisPreferenceRepository) GetFeedback(ctx context.Context, userID string) (map[string]model.Feedback, error) {
	raw, err := r.redisClient.HGetAll(ctx, feedbackKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	out := make(map[string]model.Feedback, len(raw))
	for id, v := range raw {
		out[id] = model.Feedback(v)
	}
	return out, nil
}

func (r *redisPreferenceRepository) SetFeedback(ctx context.Context, userID, entryID string, fb model.Feedback) error {
	key := feedbackKey(userID)
	if fb == model.FeedbackNone {
		return r.redisClient.HDel(ctx, key, entryID).Err()
	}
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key, entryID, string(fb))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

type memoryPreferenceRepository struct {
	mu       sync.RWMutex
	settings map[string]model.ChatSettings
	feedback map[string]map[string]model.Feedback
}

// NewMemoryPreferenceRepository 创建进程内的 PreferenceRepository。
func NewMemoryPreferenceRepository() PreferenceRepository {
	return &memoryPreferenceRepository{
		settings: make(map[string]model.ChatSettings),
		feedback: make(map[string]map[string]model.Feedback),
	}
}

func (r *memoryPreferenceRepository) GetSettings(_ context.Context, userID string) (model.ChatSettings, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[userID]
	return s, ok, nil
}

func (r *memoryPreferenceRepository) SaveSettings(_ context.Context, userID string, settings model.ChatSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[userID] = settings
	return nil
}

func (r *memoryPreferenceRepository) GetFeedback(_ context.Context, userID string) (map[string]model.Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.Feedback, len(r.feedback[userID]))
	for k, v := range r.feedback[userID] {
		out[k] = v
	}
	return out, nil
}

func (r *memoryPreferenceRepository) SetFeedback(_ context.Context, userID, entryID string, fb model.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.feedback[userID]
	if !ok {
		m = make(map[string]model.Feedback)
		r.feedback[userID] = m
	}
	if fb == model.FeedbackNone {
		delete(m, entryID)
		return nil
	}
	m[entryID] = fb
	return nil
}
