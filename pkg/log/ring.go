package log

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Line 是调试面板展示的一条日志。
type Line struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Ring 是一个固定容量的日志环形缓冲区，写满后覆盖最旧的记录。
type Ring struct {
	mu    sync.Mutex
	lines []Line
	next  int
	full  bool
}

// NewRing 创建容量为 size 的缓冲区。
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{lines: make([]Line, size)}
}

// Add 追加一条 zap 日志。
func (r *Ring) Add(e zapcore.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = Line{Time: e.Time, Level: e.Level.String(), Message: e.Message}
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines 按时间顺序返回缓冲区内容的副本。
func (r *Ring) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Line, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]Line, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// Clear 清空缓冲区。
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = make([]Line, len(r.lines))
	r.next = 0
	r.full = false
}
