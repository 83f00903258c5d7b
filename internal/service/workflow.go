// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shopchat-go/internal/model"
	"shopchat-go/pkg/backend"
	"shopchat-go/pkg/log"
	"shopchat-go/pkg/schedule"
)

var (
	ErrBusy         = errors.New("a submission is already in flight")
	ErrEmptyMessage = errors.New("message is empty")
	ErrSendFailed   = errors.New("backend did not accept the message")
	ErrClosed       = errors.New("workflow is closed")
)

// State 是单次提交的状态。
type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
	StatePolling State = "polling"
)

// Update 描述一次状态变化：可能追加了一条消息，以及最新的 busy 标志。
type Update struct {
	Entry *model.ConversationEntry `json:"entry,omitempty"`
	Busy  bool                     `json:"busy"`
}

// Snapshot 是对话记录在某一时刻的副本。
type Snapshot struct {
	Entries []model.ConversationEntry `json:"entries"`
	Busy    bool                      `json:"busy"`
	State   State                     `json:"state"`
}

// Listener 接收状态变化。回调在通知锁内按追加顺序串行执行，不能再调用 Workflow 的方法。
type Listener func(Update)

// WorkflowOptions 是提交/轮询流程的参数。
type WorkflowOptions struct {
	UserID          string
	LanguageCode    string
	PollInterval    time.Duration
	MaxPollAttempts int
	RequestTimeout  time.Duration
}

// Option 调整 Workflow 的可替换依赖，主要用于测试。
type Option func(*Workflow)

// WithIDGenerator 替换会话 ID 与消息 ID 的生成函数。
func WithIDGenerator(fn func() string) Option {
	return func(w *Workflow) { w.newID = fn }
}

// WithClock 替换时间来源。
func WithClock(fn func() time.Time) Option {
	return func(w *Workflow) { w.now = fn }
}

type pendingSession struct {
	sessionID string
	attempts  int
	task      schedule.Task
}

type subscriber struct {
	id int
	fn Listener
}

// Workflow 负责一个用户的消息提交与结果轮询：
// Idle → Sending → Polling → {Completed | Errored | TimedOut} → Idle。
// 同一时间只允许一个提交在途。
type Workflow struct {
	opts   WorkflowOptions
	client backend.Client
	sched  schedule.Scheduler
	newID  func() string
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries []model.ConversationEntry
	index   map[string]int
	state   State
	current string
	pending *pendingSession
	closed  bool

	// notifyMu 总是在持有 mu 时获取，保证通知顺序与追加顺序一致
	notifyMu    sync.Mutex
	subscribers []subscriber
	nextSubID   int
}

// NewWorkflow 创建一个 Workflow，history 作为已有对话记录载入（不触发通知）。
func NewWorkflow(client backend.Client, sched schedule.Scheduler, opts WorkflowOptions, history []model.ConversationEntry, options ...Option) *Workflow {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workflow{
		opts:    opts,
		client:  client,
		sched:   sched,
		newID:   uuid.NewString,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		entries: make([]model.ConversationEntry, 0, len(history)+8),
		index:   make(map[string]int, len(history)+8),
		state:   StateIdle,
	}
	for _, o := range options {
		o(w)
	}
	for _, e := range history {
		if _, dup := w.index[e.ID]; dup {
			continue
		}
		w.index[e.ID] = len(w.entries)
		w.entries = append(w.entries, e)
	}
	return w
}

// UserID 返回该流程所属的用户。
func (w *Workflow) UserID() string {
	return w.opts.UserID
}

// Submit 追加用户消息并把它发送给后端；发送成功后开始轮询结果。
// 用户消息总是在任何网络调用之前同步追加。
// 发送失败时追加一条错误消息并返回包装了 ErrSendFailed 的错误，不会重试。
func (w *Workflow) Submit(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return "", ErrClosed
	}
	if w.state != StateIdle {
		w.mu.Unlock()
		return "", ErrBusy
	}
	sessionID := w.newID()
	w.state = StateSending
	w.current = sessionID
	entry := model.ConversationEntry{
		ID:           w.newID(),
		Role:         model.RoleUser,
		Content:      text,
		SessionID:    sessionID,
		UserID:       w.opts.UserID,
		LanguageCode: w.opts.LanguageCode,
		CreatedAt:    w.now(),
	}
	w.appendLocked(&entry)
	w.commitLocked(Update{Entry: &entry, Busy: true})

	sendCtx, cancel := w.requestContext(context.WithoutCancel(ctx))
	err := w.client.Send(sendCtx, model.SendRequest{
		SessionID:    sessionID,
		UserID:       w.opts.UserID,
		Message:      text,
		LanguageCode: w.opts.LanguageCode,
	})
	cancel()
	if err != nil {
		log.Warnw("消息发送失败", "userId", w.opts.UserID, "sessionId", sessionID, "error", err)
		w.finish(sessionID, w.errorEntry(sessionID, model.ErrorSendFailed))
		return sessionID, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.current != sessionID {
		return sessionID, nil
	}
	w.state = StatePolling
	p := &pendingSession{sessionID: sessionID}
	p.task = w.sched.Every(w.opts.PollInterval, func() { w.tick(p) })
	w.pending = p
	log.Infow("消息已发送，开始轮询结果", "userId", w.opts.UserID, "sessionId", sessionID)
	return sessionID, nil
}

// tick 是一次轮询：查询结果并根据状态码决定是否结束。
func (w *Workflow) tick(p *pendingSession) {
	w.mu.Lock()
	if w.pending != p {
		w.mu.Unlock()
		return
	}
	p.attempts++
	attempt := p.attempts
	w.mu.Unlock()

	ctx, cancel := w.requestContext(w.ctx)
	body, err := w.client.FetchResult(ctx, p.sessionID)
	cancel()

	switch {
	case errors.Is(err, backend.ErrResultPending):
		if attempt >= w.opts.MaxPollAttempts {
			log.Warnw("轮询次数用尽，结果仍未就绪", "sessionId", p.sessionID, "attempts", attempt)
			w.finish(p.sessionID, w.errorEntry(p.sessionID, model.ErrorTimeout))
		}
	case err != nil:
		kind := classifyPollError(err)
		log.Warnw("轮询结果失败", "sessionId", p.sessionID, "attempt", attempt, "kind", kind, "error", err)
		w.finish(p.sessionID, w.errorEntry(p.sessionID, kind))
	default:
		w.finish(p.sessionID, w.resultEntry(p.sessionID, body))
	}
}

// finish 结束当前提交：停止定时任务、追加最终消息并清除 busy 标志。
// sessionID 与在途提交不符时（例如已关闭）什么也不做。
func (w *Workflow) finish(sessionID string, entry model.ConversationEntry) {
	w.mu.Lock()
	if w.current != sessionID || w.state == StateIdle {
		w.mu.Unlock()
		return
	}
	if w.pending != nil {
		w.pending.task.Stop()
		w.pending = nil
	}
	w.state = StateIdle
	w.current = ""
	w.appendLocked(&entry)
	w.commitLocked(Update{Entry: &entry, Busy: false})
}

// resultEntry 把 200 响应转换成助手消息；负载不完整时返回兜底错误消息。
func (w *Workflow) resultEntry(sessionID string, body []byte) model.ConversationEntry {
	var payload model.ResultPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warnw("无法解析结果负载", "sessionId", sessionID, "error", err)
		return w.errorEntry(sessionID, model.ErrorMalformedResult)
	}
	if err := payload.Validate(); err != nil {
		log.Warnw("结果负载缺少必需字段", "sessionId", sessionID, "error", err)
		return w.errorEntry(sessionID, model.ErrorMalformedResult)
	}

	messageType := payload.MessageType
	if messageType == "" {
		messageType = model.MessageTypeText
	}
	echoed := payload.SessionID
	if echoed == "" {
		echoed = sessionID
	}
	log.Infow("收到助手回复", "sessionId", sessionID, "resultId", payload.ID, "products", len(payload.Products))
	return model.ConversationEntry{
		ID:            w.newID(),
		Role:          model.RoleAssistant,
		Content:       payload.Body(),
		Products:      payload.Products,
		MessageType:   messageType,
		AnalysisInfo:  payload.AnalysisInfo,
		AnalysisTrace: payload.AnalysisTrace,
		SessionID:     echoed,
		UserID:        payload.UserID,
		Sender:        payload.Sender,
		LanguageCode:  payload.LanguageCode,
		Timestamp:     payload.Timestamp,
		ResultID:      payload.ID,
		CreatedAt:     w.now(),
	}
}

func (w *Workflow) errorEntry(sessionID string, kind model.ErrorKind) model.ConversationEntry {
	return model.ConversationEntry{
		ID:           w.newID(),
		Role:         model.RoleAssistant,
		Content:      ErrorMessage(kind),
		MessageType:  model.MessageTypeError,
		SessionID:    sessionID,
		UserID:       w.opts.UserID,
		Sender:       model.SenderSystem,
		LanguageCode: w.opts.LanguageCode,
		ErrorKind:    kind,
		CreatedAt:    w.now(),
	}
}

// Snapshot 返回当前对话记录与 busy 标志的副本。
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	entries := make([]model.ConversationEntry, len(w.entries))
	copy(entries, w.entries)
	return Snapshot{Entries: entries, Busy: w.state != StateIdle, State: w.state}
}

// Busy 报告是否有提交在途。
func (w *Workflow) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state != StateIdle
}

// Entry 按 ID 查找一条消息。
func (w *Workflow) Entry(id string) (model.ConversationEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index[id]
	if !ok {
		return model.ConversationEntry{}, false
	}
	return w.entries[i], true
}

// Subscribe 注册监听器并返回取消函数。
func (w *Workflow) Subscribe(fn Listener) func() {
	_, cancel := w.SubscribeWithSnapshot(fn)
	return cancel
}

// SubscribeWithSnapshot 原子地获取快照并注册监听器，快照之后的每次变化都会送达。
func (w *Workflow) SubscribeWithSnapshot(fn Listener) (Snapshot, func()) {
	w.mu.Lock()
	snap := w.snapshotLocked()
	w.notifyMu.Lock()
	w.mu.Unlock()
	id := w.nextSubID
	w.nextSubID++
	w.subscribers = append(w.subscribers, subscriber{id: id, fn: fn})
	w.notifyMu.Unlock()

	var once sync.Once
	return snap, func() {
		once.Do(func() {
			w.notifyMu.Lock()
			defer w.notifyMu.Unlock()
			for i, s := range w.subscribers {
				if s.id == id {
					w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close 停止在途的轮询并拒绝后续提交。
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.pending != nil {
		w.pending.task.Stop()
		w.pending = nil
	}
	w.state = StateIdle
	w.current = ""
	w.cancel()
}

func (w *Workflow) appendLocked(entry *model.ConversationEntry) {
	if _, dup := w.index[entry.ID]; dup {
		entry.ID = w.newID()
	}
	w.index[entry.ID] = len(w.entries)
	w.entries = append(w.entries, *entry)
}

// commitLocked 必须在持有 mu 时调用，返回时 mu 已释放。
func (w *Workflow) commitLocked(u Update) {
	w.notifyMu.Lock()
	w.mu.Unlock()
	defer w.notifyMu.Unlock()
	for _, s := range w.subscribers {
		s.fn(u)
	}
}

func (w *Workflow) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if w.opts.RequestTimeout > 0 {
		return context.WithTimeout(parent, w.opts.RequestTimeout)
	}
	return context.WithCancel(parent)
}
