package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"shopchat-go/internal/config"
	"shopchat-go/internal/model"
	"shopchat-go/internal/repository"
	"shopchat-go/pkg/backend"
	"shopchat-go/pkg/events"
	"shopchat-go/pkg/log"
	"shopchat-go/pkg/schedule"
)

var (
	ErrEntryNotFound      = errors.New("conversation entry not found")
	ErrFeedbackNotAllowed = errors.New("feedback is only accepted on assistant entries")
	ErrInvalidFeedback    = errors.New("invalid feedback rating")
	ErrInvalidChatMode    = errors.New("invalid chat mode")
)

// persistTimeout 限制单次落库/发布事件的耗时。
const persistTimeout = 5 * time.Second

// EventPublisher 发布对话事件，Kafka 未启用时使用 NopPublisher。
type EventPublisher interface {
	Publish(ctx context.Context, ev events.TranscriptEvent) error
}

// NopPublisher 丢弃所有事件。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, events.TranscriptEvent) error { return nil }

// PublisherFunc 把普通函数适配为 EventPublisher，Kafka 未启用时用来直接调用归档服务。
type PublisherFunc func(ctx context.Context, ev events.TranscriptEvent) error

func (f PublisherFunc) Publish(ctx context.Context, ev events.TranscriptEvent) error {
	return f(ctx, ev)
}

// ConversationSummary 是管理端看到的一个对话。Live 表示当前进程中已载入流程。
type ConversationSummary struct {
	UserID  string `json:"userId"`
	Entries int    `json:"entries"`
	Busy    bool   `json:"busy"`
	State   State  `json:"state"`
	Live    bool   `json:"live"`
}

// ChatService 按用户管理对话流程，并负责对话记录的持久化与事件发布。
type ChatService interface {
	Submit(ctx context.Context, userID, text string) (string, error)
	Snapshot(ctx context.Context, userID string) (Snapshot, error)
	// Subscribe 返回当前快照并注册监听器，之后的每次变化都会送达。
	Subscribe(ctx context.Context, userID string, fn Listener) (Snapshot, func(), error)
	Settings(ctx context.Context, userID string) (model.ChatSettings, error)
	UpdateSettings(ctx context.Context, userID string, settings model.ChatSettings) (model.ChatSettings, error)
	Feedback(ctx context.Context, userID string) (map[string]model.Feedback, error)
	SetFeedback(ctx context.Context, userID, entryID string, fb model.Feedback) error
	// ListConversations 列出仓库中保存的全部对话，并合并已载入流程的实时状态。
	ListConversations(ctx context.Context) ([]ConversationSummary, error)
	Close()
}

// chatSession 是一个已载入的用户对话。监听器只往无界队列里追加，
// 落库再慢也不会阻塞 Workflow。
type chatSession struct {
	workflow *Workflow
	cancel   func()

	mu     sync.Mutex
	queue  []model.ConversationEntry
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newChatSession(wf *Workflow) *chatSession {
	return &chatSession{
		workflow: wf,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (c *chatSession) enqueue(e model.ConversationEntry) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, e)
	c.mu.Unlock()
	c.signal()
}

func (c *chatSession) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// next 取走队列中的全部条目；队列为空时等待，关闭且取空后返回 false。
func (c *chatSession) next() ([]model.ConversationEntry, bool) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			batch := c.queue
			c.queue = nil
			c.mu.Unlock()
			return batch, true
		}
		if c.closed {
			c.mu.Unlock()
			return nil, false
		}
		c.mu.Unlock()
		<-c.wake
	}
}

// shutdown 停止流程并等待已排队的条目写完。
func (c *chatSession) shutdown() {
	c.workflow.Close()
	c.cancel()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
	<-c.done
}

type chatService struct {
	client     backend.Client
	sched      schedule.Scheduler
	convRepo   repository.ConversationRepository
	prefRepo   repository.PreferenceRepository
	publisher  EventPublisher
	chatCfg    config.ChatConfig
	backendCfg config.BackendConfig
	welcome    Welcome
	wfOptions  []Option
	now        func() time.Time

	// loads 合并同一用户的并发首次载入
	loads singleflight.Group

	mu       sync.Mutex
	sessions map[string]*chatSession
	closed   bool
}

// NewChatService 创建一个新的 ChatService 实例。publisher 为 nil 时不发布事件。
func NewChatService(
	client backend.Client,
	sched schedule.Scheduler,
	convRepo repository.ConversationRepository,
	prefRepo repository.PreferenceRepository,
	publisher EventPublisher,
	chatCfg config.ChatConfig,
	backendCfg config.BackendConfig,
	welcome Welcome,
	wfOptions ...Option,
) ChatService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &chatService{
		client:     client,
		sched:      sched,
		convRepo:   convRepo,
		prefRepo:   prefRepo,
		publisher:  publisher,
		chatCfg:    chatCfg,
		backendCfg: backendCfg,
		welcome:    welcome,
		wfOptions:  wfOptions,
		now:        time.Now,
		sessions:   make(map[string]*chatSession),
	}
}

// lookup 返回已载入的流程。
func (s *chatService) lookup(userID string) (*Workflow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	if sess, ok := s.sessions[userID]; ok {
		return sess.workflow, true, nil
	}
	return nil, false, nil
}

// workflowFor 返回用户的 Workflow。第一次访问时在锁外从仓库恢复历史，
// 不同用户的载入互不阻塞，同一用户的并发载入只执行一次。
func (s *chatService) workflowFor(ctx context.Context, userID string) (*Workflow, error) {
	if wf, ok, err := s.lookup(userID); err != nil || ok {
		return wf, err
	}
	v, err, _ := s.loads.Do(userID, func() (interface{}, error) {
		if wf, ok, err := s.lookup(userID); err != nil || ok {
			return wf, err
		}
		sess, err := s.open(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			sess.shutdown()
			return nil, ErrClosed
		}
		s.sessions[userID] = sess
		s.mu.Unlock()
		return sess.workflow, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workflow), nil
}

// open 载入历史并创建流程；历史为空时写入欢迎消息。
func (s *chatService) open(ctx context.Context, userID string) (*chatSession, error) {
	history, err := s.convRepo.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if len(history) == 0 {
		welcome := s.welcome.Entry(userID, s.chatCfg.LanguageCode, s.now())
		if err := s.convRepo.Append(ctx, userID, welcome); err != nil {
			return nil, fmt.Errorf("failed to save welcome entry: %w", err)
		}
		history = append(history, welcome)
	}

	wf := NewWorkflow(s.client, s.sched, WorkflowOptions{
		UserID:          userID,
		LanguageCode:    s.chatCfg.LanguageCode,
		PollInterval:    s.chatCfg.PollInterval,
		MaxPollAttempts: s.chatCfg.MaxPollAttempts,
		RequestTimeout:  s.backendCfg.RequestTimeout,
	}, history, s.wfOptions...)

	sess := newChatSession(wf)
	sess.cancel = wf.Subscribe(func(u Update) {
		if u.Entry != nil {
			sess.enqueue(*u.Entry)
		}
	})
	go s.persist(userID, sess)
	log.Infow("对话已载入", "userId", userID, "entries", len(history))
	return sess, nil
}

// persist 按追加顺序把新条目写入仓库并发布事件，失败只记录日志。
func (s *chatService) persist(userID string, sess *chatSession) {
	defer close(sess.done)
	for {
		batch, ok := sess.next()
		if !ok {
			return
		}
		for _, entry := range batch {
			s.persistEntry(userID, entry)
		}
	}
}

func (s *chatService) persistEntry(userID string, entry model.ConversationEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.convRepo.Append(ctx, userID, entry); err != nil {
		log.Error("保存对话条目失败", err)
	}
	ev := events.TranscriptEvent{Type: events.EntryAppended, UserID: userID, Entry: &entry, OccurredAt: s.now()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warnw("发布对话事件失败", "userId", userID, "entryId", entry.ID, "error", err)
	}
}
func (s *chatService) Submit(ctx context.Context, userID, text string) (string, error) {
	wf, err := s.workflowFor(ctx, userID)
	if err != nil {
		return "", err
	}
	return wf.Submit(ctx, text)
}

func (s *chatService) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	wf, err := s.workflowFor(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return wf.Snapshot(), nil
}

func (s *chatService) Subscribe(ctx context.Context, userID string, fn Listener) (Snapshot, func(), error) {
	wf, err := s.workflowFor(ctx, userID)
	if err != nil {
		return Snapshot{}, nil, err
	}
	snap, cancel := wf.SubscribeWithSnapshot(fn)
	return snap, cancel, nil
}

func (s *chatService) Settings(ctx context.Context, userID string) (model.ChatSettings, error) {
	settings, ok, err := s.prefRepo.GetSettings(ctx, userID)
	if err != nil {
		return model.ChatSettings{}, err
	}
	if !ok {
		settings = model.ChatSettings{DemoMode: s.chatCfg.DefaultDemoMode, ChatMode: s.chatCfg.DefaultChatMode}
	}
	if !model.ValidChatMode(settings.ChatMode) {
		settings.ChatMode = model.ChatModeCS
	}
	return settings, nil
}

func (s *chatService) UpdateSettings(ctx context.Context, userID string, settings model.ChatSettings) (model.ChatSettings, error) {
	if !model.ValidChatMode(settings.ChatMode) {
		return model.ChatSettings{}, ErrInvalidChatMode
	}
	if err := s.prefRepo.SaveSettings(ctx, userID, settings); err != nil {
		return model.ChatSettings{}, err
	}
	log.Infow("界面设置已更新", "userId", userID, "demoMode", settings.DemoMode, "chatMode", settings.ChatMode)
	return settings, nil
}

func (s *chatService) Feedback(ctx context.Context, userID string) (map[string]model.Feedback, error) {
	return s.prefRepo.GetFeedback(ctx, userID)
}

// SetFeedback 记录对助手消息的评价。条目本身不变，评价单独存放。
func (s *chatService) SetFeedback(ctx context.Context, userID, entryID string, fb model.Feedback) error {
	if !fb.Valid() {
		return ErrInvalidFeedback
	}
	wf, err := s.workflowFor(ctx, userID)
	if err != nil {
		return err
	}
	entry, ok := wf.Entry(entryID)
	if !ok {
		return ErrEntryNotFound
	}
	if entry.Role != model.RoleAssistant || entry.IsError() {
		return ErrFeedbackNotAllowed
	}
	if err := s.prefRepo.SetFeedback(ctx, userID, entryID, fb); err != nil {
		return err
	}
	ev := events.TranscriptEvent{Type: events.FeedbackRecorded, UserID: userID, EntryID: entryID, Feedback: fb, OccurredAt: s.now()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warnw("发布评价事件失败", "userId", userID, "entryId", entryID, "error", err)
	}
	return nil
}

func (s *chatService) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	s.mu.Lock()
	live := make(map[string]ConversationSummary, len(s.sessions))
	for userID, sess := range s.sessions {
		snap := sess.workflow.Snapshot()
		live[userID] = ConversationSummary{
			UserID:  userID,
			Entries: len(snap.Entries),
			Busy:    snap.Busy,
			State:   snap.State,
			Live:    true,
		}
	}
	s.mu.Unlock()

	stored, err := s.convRepo.Users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(stored)+len(live))
	for _, userID := range stored {
		if _, ok := live[userID]; ok {
			continue
		}
		entries, err := s.convRepo.Load(ctx, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{UserID: userID, Entries: len(entries), State: StateIdle})
	}
	for _, summary := range live {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Close 停止所有在途的轮询，并等待尚未落库的条目写完。
func (s *chatService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = map[string]*chatSession{}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.shutdown()
	}
}
