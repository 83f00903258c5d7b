// Package kafka 负责对话事件在 Kafka 上的发布与消费。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"shopchat-go/internal/config"
	"shopchat-go/pkg/events"
	"shopchat-go/pkg/log"
)

// 同一事件处理失败达到该次数后提交 offset，不再重试。
const maxAttempts = 3

// EventHandler 处理一条对话事件。
type EventHandler interface {
	Handle(ctx context.Context, ev events.TranscriptEvent) error
}

// AttemptCounter 记录事件的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

// Producer 把对话事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}
	log.Infow("Kafka 生产者初始化成功", "topic", cfg.Topic)
	return p
}

// Publish 发送一条事件，以用户 ID 作为分区键，保证同一用户的事件有序。
func (p *Producer) Publish(ctx context.Context, ev events.TranscriptEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.UserID),
		Value: value,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// retryBackoff 是同一条消息两次处理之间的等待时间。
const retryBackoff = 500 * time.Millisecond

// messageReader 是 consume 用到的 kafka.Reader 方法。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// StartConsumer 消费对话事件直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, handler EventHandler, counter AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Error("关闭 Kafka 消费者失败", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, handler, counter, retryBackoff)
}

// consume 逐条处理消息。同一个 reader 不会重投未提交的消息，
// 所以失败的消息在这里原地重试，处理完（或放弃）之后才提交并读取下一条。
func consume(ctx context.Context, r messageReader, handler EventHandler, counter AttemptCounter, backoff time.Duration) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
			} else {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}
		if !handleWithRetry(ctx, m.Value, handler, counter, backoff) {
			// 只有 ctx 取消才会走到这里，不提交，重启后由消费组重投
			return
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handleWithRetry 重试同一条消息，直到成功或达到 maxAttempts，返回 false 表示 ctx 已取消。
// 计数器不可用时按本地次数兜底，保证不会无限重试。
func handleWithRetry(ctx context.Context, value []byte, handler EventHandler, counter AttemptCounter, backoff time.Duration) bool {
	for attempt := 1; ; attempt++ {
		if processMessage(ctx, value, handler, counter) {
			return true
		}
		if attempt >= maxAttempts {
			log.Errorf("对话事件重试 %d 次仍未成功，跳过", attempt)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
}

// processMessage 处理一条消息并返回是否应提交 offset。
func processMessage(ctx context.Context, value []byte, handler EventHandler, counter AttemptCounter) bool {
	var ev events.TranscriptEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		// 格式错误的消息直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s:%s", ev.Type, ev.Key())
	if err := handler.Handle(ctx, ev); err != nil {
		log.Warnw("处理对话事件失败", "type", ev.Type, "key", ev.Key(), "error", err)
		attempts, incErr := counter.Incr(ctx, attemptsKey)
		if incErr != nil {
			// 计数失败时不提交，让 Kafka 重投
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("对话事件多次失败(>=%d)，提交 offset 终止重试: %s", maxAttempts, ev.Key())
			counter.Reset(ctx, attemptsKey)
			return true
		}
		return false
	}
	counter.Reset(ctx, attemptsKey)
	return true
}

// RedisCounter 在 Redis 中记录失败次数，计数 24 小时后过期。
type RedisCounter struct {
	RDB *redis.Client
}

func (c RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.RDB.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.RDB.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (c RedisCounter) Reset(ctx context.Context, key string) {
	_ = c.RDB.Del(ctx, key).Err()
}

// MemoryCounter 是没有 Redis 时使用的进程内计数器。
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (c *MemoryCounter) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func (c *MemoryCounter) Reset(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key)
}
