package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shopchat-go/internal/model"
)

// ArchiveRepository 是 MySQL 中对话归档的持久化接口。
type ArchiveRepository interface {
	// Save 写入一条归档；同一 EntryID 重复写入时忽略，消费者重投是安全的。
	Save(ctx context.Context, entry *model.ArchivedEntry) error
	UpdateFeedback(ctx context.Context, entryID string, fb model.Feedback) error
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.ArchivedEntry, int64, error)
}

type archiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository 创建一个新的 ArchiveRepository 实例。
func NewArchiveRepository(db *gorm.DB) ArchiveRepository {
	return &archiveRepository{db: db}
}

func (r *archiveRepository) Save(ctx context.Context, entry *model.ArchivedEntry) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "entry_id"}}, DoNothing: true}).
		Create(entry).Error
}

func (r *archiveRepository) UpdateFeedback(ctx context.Context, entryID string, fb model.Feedback) error {
	value := string(fb)
	if fb == model.FeedbackNone {
		value = ""
	}
	return r.db.WithContext(ctx).Model(&model.ArchivedEntry{}).
		Where("entry_id = ?", entryID).
		Update("feedback", value).Error
}

// ListByUser 按时间顺序分页返回用户的归档记录以及总数。
func (r *archiveRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.ArchivedEntry, int64, error) {
	var entries []model.ArchivedEntry
	var total int64
	q := r.db.WithContext(ctx).Model(&model.ArchivedEntry{}).Where("user_id = ?", userID).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at ASC, id ASC").Offset(offset).Limit(limit).Find(&entries).Error
	return entries, total, err
}
