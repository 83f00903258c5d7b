package service

import (
	"context"
	"encoding/json"
	"fmt"

	"shopchat-go/internal/model"
	"shopchat-go/internal/repository"
	"shopchat-go/pkg/events"
	"shopchat-go/pkg/log"
)

// EntryIndexer 把对话条目写入全文索引。
type EntryIndexer interface {
	IndexEntry(ctx context.Context, doc model.EsEntryDocument) error
}

// HistoryPage 是归档历史的一页。
type HistoryPage struct {
	Entries []model.ArchivedEntry `json:"entries"`
	Total   int64                 `json:"total"`
	Page    int                   `json:"page"`
	Size    int                   `json:"size"`
}

// ArchiveService 消费对话事件写入 MySQL 归档（以及可选的 Elasticsearch 索引），并提供历史查询。
type ArchiveService interface {
	Handle(ctx context.Context, ev events.TranscriptEvent) error
	History(ctx context.Context, userID string, page, size int) (HistoryPage, error)
}

type archiveService struct {
	repo    repository.ArchiveRepository
	indexer EntryIndexer
}

// NewArchiveService 创建一个新的 ArchiveService。indexer 为 nil 时只写 MySQL。
func NewArchiveService(repo repository.ArchiveRepository, indexer EntryIndexer) ArchiveService {
	return &archiveService{repo: repo, indexer: indexer}
}

func (s *archiveService) Handle(ctx context.Context, ev events.TranscriptEvent) error {
	switch ev.Type {
	case events.EntryAppended:
		if ev.Entry == nil {
			log.Warnw("对话事件缺少条目，已忽略", "userId", ev.UserID)
			return nil
		}
		return s.archiveEntry(ctx, ev.UserID, *ev.Entry)
	case events.FeedbackRecorded:
		if err := s.repo.UpdateFeedback(ctx, ev.EntryID, ev.Feedback); err != nil {
			return fmt.Errorf("failed to archive feedback: %w", err)
		}
		return nil
	default:
		log.Warnw("未知的对话事件类型，已忽略", "type", ev.Type)
		return nil
	}
}

func (s *archiveService) archiveEntry(ctx context.Context, userID string, e model.ConversationEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	record := &model.ArchivedEntry{
		EntryID:     e.ID,
		UserID:      userID,
		SessionID:   e.SessionID,
		Role:        string(e.Role),
		Content:     e.Content,
		MessageType: e.MessageType,
		ErrorKind:   string(e.ErrorKind),
		Payload:     string(payload),
		CreatedAt:   e.CreatedAt,
	}
	if err := s.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to archive entry: %w", err)
	}
	// 错误提示不进入检索
	if s.indexer == nil || e.IsError() {
		return nil
	}
	doc := model.EsEntryDocument{
		EntryID:     e.ID,
		UserID:      userID,
		SessionID:   e.SessionID,
		Role:        string(e.Role),
		Content:     e.Content,
		MessageType: e.MessageType,
		CreatedAt:   e.CreatedAt,
	}
	if err := s.indexer.IndexEntry(ctx, doc); err != nil {
		return fmt.Errorf("failed to index entry: %w", err)
	}
	return nil
}

// History 分页返回用户的归档记录，page 从 1 开始。
func (s *archiveService) History(ctx context.Context, userID string, page, size int) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	entries, total, err := s.repo.ListByUser(ctx, userID, (page-1)*size, size)
	if err != nil {
		return HistoryPage{}, err
	}
	return HistoryPage{Entries: entries, Total: total, Page: page, Size: size}, nil
}
