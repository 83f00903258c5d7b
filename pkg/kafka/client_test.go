package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat-go/internal/model"
	"shopchat-go/pkg/events"
)

type flakyHandler struct {
	failures int
	calls    int
}

func (h *flakyHandler) Handle(context.Context, events.TranscriptEvent) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("archive unavailable")
	}
	return nil
}

func encode(t *testing.T, ev events.TranscriptEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestProcessMessageCommitsOnSuccess(t *testing.T) {
	h := &flakyHandler{}
	ev := events.TranscriptEvent{Type: events.EntryAppended, UserID: "u", Entry: &model.ConversationEntry{ID: "e-1"}}

	assert.True(t, processMessage(context.Background(), encode(t, ev), h, NewMemoryCounter()))
	assert.Equal(t, 1, h.calls)
}

func TestProcessMessageRetriesThenGivesUp(t *testing.T) {
	h := &flakyHandler{failures: 10}
	counter := NewMemoryCounter()
	value := encode(t, events.TranscriptEvent{Type: events.FeedbackRecorded, UserID: "u", EntryID: "e-1", Feedback: model.FeedbackLike})

	assert.False(t, processMessage(context.Background(), value, h, counter))
	assert.False(t, processMessage(context.Background(), value, h, counter))
	assert.True(t, processMessage(context.Background(), value, h, counter))
	assert.Empty(t, counter.counts)
}

func TestProcessMessageResetsCounterAfterRecovery(t *testing.T) {
	h := &flakyHandler{failures: 1}
	counter := NewMemoryCounter()
	value := encode(t, events.TranscriptEvent{Type: events.EntryAppended, UserID: "u", Entry: &model.ConversationEntry{ID: "e-2"}})

	assert.False(t, processMessage(context.Background(), value, h, counter))
	assert.True(t, processMessage(context.Background(), value, h, counter))
	assert.Empty(t, counter.counts)
}

func TestProcessMessageSkipsGarbage(t *testing.T) {
	h := &flakyHandler{}
	assert.True(t, processMessage(context.Background(), []byte("not json"), h, NewMemoryCounter()))
	assert.Zero(t, h.calls)
}

// fakeReader 依次返回预置消息，读完后返回 context.Canceled。
type fakeReader struct {
	messages  []kafka.Message
	committed []string
}

func (r *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, string(m.Key))
	}
	return nil
}

// orderedHandler 记录处理顺序，按 key 配置失败次数。
type orderedHandler struct {
	failures map[string]int
	seen     []string
}

func (h *orderedHandler) Handle(_ context.Context, ev events.TranscriptEvent) error {
	h.seen = append(h.seen, ev.Key())
	if h.failures[ev.Key()] > 0 {
		h.failures[ev.Key()]--
		return errors.New("mysql timeout")
	}
	return nil
}

func TestConsumeRetriesFailedMessageBeforeNext(t *testing.T) {
	a := events.TranscriptEvent{Type: events.EntryAppended, UserID: "u", Entry: &model.ConversationEntry{ID: "a"}}
	b := events.TranscriptEvent{Type: events.EntryAppended, UserID: "u", Entry: &model.ConversationEntry{ID: "b"}}
	r := &fakeReader{messages: []kafka.Message{
		{Key: []byte("a"), Value: encode(t, a)},
		{Key: []byte("b"), Value: encode(t, b)},
	}}
	h := &orderedHandler{failures: map[string]int{"a": 2}}
	counter := NewMemoryCounter()

	consume(context.Background(), r, h, counter, time.Millisecond)

	assert.Equal(t, []string{"a", "a", "a", "b"}, h.seen)
	assert.Equal(t, []string{"a", "b"}, r.committed)
	assert.Empty(t, counter.counts)
}

func TestConsumeGivesUpAfterMaxAttempts(t *testing.T) {
	a := events.TranscriptEvent{Type: events.FeedbackRecorded, UserID: "u", EntryID: "a", Feedback: model.FeedbackLike}
	r := &fakeReader{messages: []kafka.Message{{Key: []byte("a"), Value: encode(t, a)}}}
	h := &orderedHandler{failures: map[string]int{"a": 100}}

	consume(context.Background(), r, h, NewMemoryCounter(), time.Millisecond)

	assert.Len(t, h.seen, maxAttempts)
	assert.Equal(t, []string{"a"}, r.committed)
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string) (int64, error) { return 0, errors.New("redis down") }
func (brokenCounter) Reset(context.Context, string)               {}

func TestHandleWithRetryStopsWithoutCounter(t *testing.T) {
	h := &flakyHandler{failures: 100}
	value := encode(t, events.TranscriptEvent{Type: events.FeedbackRecorded, UserID: "u", EntryID: "e-9"})

	assert.True(t, handleWithRetry(context.Background(), value, h, brokenCounter{}, time.Millisecond))
	assert.Equal(t, maxAttempts, h.calls)
}

func TestHandleWithRetryHonoursCancel(t *testing.T) {
	h := &flakyHandler{failures: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	value := encode(t, events.TranscriptEvent{Type: events.FeedbackRecorded, UserID: "u", EntryID: "e-9"})

	assert.False(t, handleWithRetry(ctx, value, h, NewMemoryCounter(), time.Hour))
	assert.Equal(t, 1, h.calls)
}
