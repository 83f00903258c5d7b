package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat-go/internal/config"
	"shopchat-go/internal/model"
	"shopchat-go/internal/repository"
	"shopchat-go/pkg/events"
	"shopchat-go/pkg/schedule"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TranscriptEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.TranscriptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) all() []events.TranscriptEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.TranscriptEvent(nil), p.events...)
}

type chatFixture struct {
	svc       ChatService
	backend   *fakeBackend
	sched     *schedule.Manual
	convRepo  repository.ConversationRepository
	prefRepo  repository.PreferenceRepository
	publisher *recordingPublisher
}

var testChatConfig = config.ChatConfig{
	LanguageCode:    "ko",
	PollInterval:    2 * time.Second,
	MaxPollAttempts: 15,
	DefaultDemoMode: true,
	DefaultChatMode: model.ChatModeCS,
}

func newChatFixture(t *testing.T, convRepo repository.ConversationRepository) *chatFixture {
	t.Helper()
	if convRepo == nil {
		convRepo = repository.NewMemoryConversationRepository()
	}
	f := &chatFixture{
		backend:   &fakeBackend{},
		sched:     schedule.NewManual(),
		convRepo:  convRepo,
		prefRepo:  repository.NewMemoryPreferenceRepository(),
		publisher: &recordingPublisher{},
	}
	welcome := Welcome{Message: DefaultWelcomeMessage, Products: []model.Product{{ID: 1, Title: "iPhone"}}}
	f.svc = NewChatService(f.backend, f.sched, f.convRepo, f.prefRepo, f.publisher, testChatConfig, config.BackendConfig{}, welcome)
	t.Cleanup(f.svc.Close)
	return f
}

func TestNewConversationStartsWithWelcome(t *testing.T) {
	f := newChatFixture(t, nil)

	snap, err := f.svc.Snapshot(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	welcome := snap.Entries[0]
	assert.Equal(t, model.WelcomeEntryID, welcome.ID)
	assert.Equal(t, model.MessageTypeRecommendation, welcome.MessageType)
	assert.Equal(t, DefaultWelcomeMessage, welcome.Content)
	assert.Len(t, welcome.Products, 1)

	stored, err := f.convRepo.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestConversationIsPersistedAndRestored(t *testing.T) {
	repo := repository.NewMemoryConversationRepository()
	f := newChatFixture(t, repo)
	f.backend.results = []fakeResult{{body: `{"id":"r-1","message":"네, 찾아볼게요"}`}}

	_, err := f.svc.Submit(context.Background(), "bob", "노트북 추천해줘")
	require.NoError(t, err)
	f.sched.Tick()
	f.svc.Close()

	stored, err := repo.Load(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, model.WelcomeEntryID, stored[0].ID)
	assert.Equal(t, model.RoleUser, stored[1].Role)
	assert.Equal(t, "네, 찾아볼게요", stored[2].Content)

	published := f.publisher.all()
	require.Len(t, published, 2)
	assert.Equal(t, events.EntryAppended, published[0].Type)
	assert.Equal(t, stored[1].ID, published[0].Key())
	assert.Equal(t, stored[2].ID, published[1].Key())

	// 新实例从仓库恢复，不会再次写入欢迎消息
	g := newChatFixture(t, repo)
	snap, err := g.svc.Snapshot(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 3)
	assert.False(t, snap.Busy)
}

func TestUsersHaveIndependentWorkflows(t *testing.T) {
	f := newChatFixture(t, nil)

	_, err := f.svc.Submit(context.Background(), "alice", "first")
	require.NoError(t, err)
	_, err = f.svc.Submit(context.Background(), "alice", "second")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.svc.Submit(context.Background(), "bob", "hello")
	require.NoError(t, err)

	active, err := f.svc.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alice", active[0].UserID)
	assert.True(t, active[0].Busy)
	assert.True(t, active[0].Live)
	assert.Equal(t, 2, active[0].Entries)
	assert.Equal(t, StatePolling, active[1].State)
}

func TestListConversationsIncludesStoredUsers(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryConversationRepository()
	require.NoError(t, repo.Append(ctx, "carol", model.ConversationEntry{ID: "c-1", Role: model.RoleUser, Content: "안녕"}))
	require.NoError(t, repo.Append(ctx, "carol", model.ConversationEntry{ID: "c-2", Role: model.RoleAssistant, Content: "반가워요"}))
	f := newChatFixture(t, repo)

	_, err := f.svc.Submit(ctx, "alice", "hi")
	require.NoError(t, err)

	list, err := f.svc.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].UserID)
	assert.True(t, list[0].Live)
	assert.True(t, list[0].Busy)
	assert.Equal(t, ConversationSummary{UserID: "carol", Entries: 2, State: StateIdle}, list[1])
}

// stallingRepo 在 release 关闭前挡住除欢迎消息外的所有写入。
type stallingRepo struct {
	repository.ConversationRepository
	release chan struct{}
}

func (r *stallingRepo) Append(ctx context.Context, userID string, entry model.ConversationEntry) error {
	if entry.ID != model.WelcomeEntryID {
		<-r.release
	}
	return r.ConversationRepository.Append(ctx, userID, entry)
}

func TestSlowRepositoryDoesNotBlockWorkflow(t *testing.T) {
	repo := &stallingRepo{ConversationRepository: repository.NewMemoryConversationRepository(), release: make(chan struct{})}
	f := newChatFixture(t, repo)
	defer close(repo.release)
	f.backend.results = []fakeResult{{body: `{"id":"r-1","message":"ok"}`}}
	ctx := context.Background()

	const rounds = 100
	done := make(chan error, 1)
	go func() {
		for i := 0; i < rounds; i++ {
			if _, err := f.svc.Submit(ctx, "dave", "again"); err != nil {
				done <- err
				return
			}
			f.sched.Tick()
		}
		done <- nil
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("workflow stalled behind the repository")
	}
	snap, err := f.svc.Snapshot(ctx, "dave")
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1+2*rounds)
	assert.False(t, snap.Busy)
}

// blockingLoadRepo 让指定用户的 Load 一直等到 release 关闭。
type blockingLoadRepo struct {
	repository.ConversationRepository
	slowUser string
	release  chan struct{}
}

func (r *blockingLoadRepo) Load(ctx context.Context, userID string) ([]model.ConversationEntry, error) {
	if userID == r.slowUser {
		<-r.release
	}
	return r.ConversationRepository.Load(ctx, userID)
}

func TestSlowLoadDoesNotBlockOtherUsers(t *testing.T) {
	repo := &blockingLoadRepo{ConversationRepository: repository.NewMemoryConversationRepository(), slowUser: "slow", release: make(chan struct{})}
	f := newChatFixture(t, repo)
	ctx := context.Background()

	slow := make(chan error, 1)
	go func() {
		_, err := f.svc.Snapshot(ctx, "slow")
		slow <- err
	}()

	fast := make(chan error, 1)
	go func() {
		_, err := f.svc.Snapshot(ctx, "fast")
		fast <- err
	}()
	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loading one user blocked another")
	}

	close(repo.release)
	require.NoError(t, <-slow)
	snap, err := f.svc.Snapshot(ctx, "slow")
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1)
}

func TestSettingsDefaultsAndValidation(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()

	got, err := f.svc.Settings(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, model.ChatSettings{DemoMode: true, ChatMode: model.ChatModeCS}, got)

	_, err = f.svc.UpdateSettings(ctx, "u", model.ChatSettings{ChatMode: "karaoke"})
	assert.ErrorIs(t, err, ErrInvalidChatMode)

	want := model.ChatSettings{DemoMode: false, ChatMode: model.ChatModeProductSearch}
	_, err = f.svc.UpdateSettings(ctx, "u", want)
	require.NoError(t, err)
	got, err = f.svc.Settings(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFeedbackRules(t *testing.T) {
	f := newChatFixture(t, nil)
	ctx := context.Background()
	f.backend.sendErr = assert.AnError

	_, err := f.svc.Submit(ctx, "u", "hello")
	require.ErrorIs(t, err, ErrSendFailed)
	snap, err := f.svc.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 3)
	userEntry, errorEntry := snap.Entries[1], snap.Entries[2]

	assert.ErrorIs(t, f.svc.SetFeedback(ctx, "u", "missing", model.FeedbackLike), ErrEntryNotFound)
	assert.ErrorIs(t, f.svc.SetFeedback(ctx, "u", userEntry.ID, model.FeedbackLike), ErrFeedbackNotAllowed)
	assert.ErrorIs(t, f.svc.SetFeedback(ctx, "u", errorEntry.ID, model.FeedbackLike), ErrFeedbackNotAllowed)
	assert.ErrorIs(t, f.svc.SetFeedback(ctx, "u", model.WelcomeEntryID, "meh"), ErrInvalidFeedback)

	require.NoError(t, f.svc.SetFeedback(ctx, "u", model.WelcomeEntryID, model.FeedbackDislike))
	fb, err := f.svc.Feedback(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Feedback{model.WelcomeEntryID: model.FeedbackDislike}, fb)

	var recorded []events.TranscriptEvent
	for _, ev := range f.publisher.all() {
		if ev.Type == events.FeedbackRecorded {
			recorded = append(recorded, ev)
		}
	}
	require.Len(t, recorded, 1)
	assert.Equal(t, model.WelcomeEntryID, recorded[0].Key())
}

func TestClosedServiceRejectsCalls(t *testing.T) {
	f := newChatFixture(t, nil)
	_, err := f.svc.Submit(context.Background(), "u", "hello")
	require.NoError(t, err)

	f.svc.Close()
	assert.Equal(t, 0, f.sched.Active())
	_, err = f.svc.Snapshot(context.Background(), "u")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisherFuncForwardsEvents(t *testing.T) {
	var got []events.TranscriptEvent
	pub := PublisherFunc(func(_ context.Context, ev events.TranscriptEvent) error {
		got = append(got, ev)
		return nil
	})
	ev := events.TranscriptEvent{Type: events.FeedbackRecorded, UserID: "u", EntryID: "e-1"}
	require.NoError(t, pub.Publish(context.Background(), ev))
	assert.Equal(t, []events.TranscriptEvent{ev}, got)
}
