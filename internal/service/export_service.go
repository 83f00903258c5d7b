package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopchat-go/internal/model"
	"shopchat-go/pkg/log"
)

// ObjectStore 保存导出文件并生成下载链接。
type ObjectStore interface {
	PutObject(ctx context.Context, objectName, contentType string, data []byte) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ExportResult 是一次导出的结果。
type ExportResult struct {
	ObjectName string    `json:"objectName"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Entries    int       `json:"entries"`
}

type transcriptExport struct {
	UserID     string                    `json:"userId"`
	ExportedAt time.Time                 `json:"exportedAt"`
	Entries    []model.ConversationEntry `json:"entries"`
	Feedback   map[string]model.Feedback `json:"feedback"`
}

// ExportService 把用户当前的对话记录导出到对象存储。
type ExportService interface {
	Export(ctx context.Context, userID string) (ExportResult, error)
}

type exportService struct {
	chat   ChatService
	store  ObjectStore
	expiry time.Duration
	now    func() time.Time
}

// NewExportService 创建一个新的 ExportService。
func NewExportService(chat ChatService, store ObjectStore, expiry time.Duration) ExportService {
	return &exportService{chat: chat, store: store, expiry: expiry, now: time.Now}
}

func (s *exportService) Export(ctx context.Context, userID string) (ExportResult, error) {
	snap, err := s.chat.Snapshot(ctx, userID)
	if err != nil {
		return ExportResult{}, err
	}
	feedback, err := s.chat.Feedback(ctx, userID)
	if err != nil {
		return ExportResult{}, err
	}

	now := s.now().UTC()
	data, err := json.MarshalIndent(transcriptExport{
		UserID:     userID,
		ExportedAt: now,
		Entries:    snap.Entries,
		Feedback:   feedback,
	}, "", "  ")
	if err != nil {
		return ExportResult{}, fmt.Errorf("failed to marshal transcript: %w", err)
	}

	objectName := fmt.Sprintf("exports/%s/%s.json", userID, now.Format("20060102T150405Z"))
	if err := s.store.PutObject(ctx, objectName, "application/json", data); err != nil {
		return ExportResult{}, err
	}
	url, err := s.store.PresignedURL(ctx, objectName, s.expiry)
	if err != nil {
		return ExportResult{}, err
	}
	log.Infow("对话记录已导出", "userId", userID, "object", objectName, "entries", len(snap.Entries))
	return ExportResult{ObjectName: objectName, URL: url, ExpiresAt: now.Add(s.expiry), Entries: len(snap.Entries)}, nil
}
